// Package boardimg renders a position (FEN) as a PNG for the ops
// surface.
package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// SquareSize is the default edge length of one board square.
	SquareSize = 64

	boardSquares = 8
	margin       = 20
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	backgroundColor = color.RGBA{38, 36, 33, 255}
	coordinateColor = color.NRGBA{R: 222, G: 222, B: 222, A: 255}
)

// Render draws the position described by fen into a PNG, white side at
// the bottom, with file and rank coordinates along the margins.
func Render(fen string, squareSize int) ([]byte, error) {
	if squareSize <= 0 {
		squareSize = SquareSize
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	board := nchess.NewGame(opt).Position().Board()

	boardSize := squareSize * boardSquares
	total := boardSize + margin*2
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	origin := image.Point{X: margin, Y: margin}
	drawSquares(img, squareSize, origin)
	if err := drawPieces(img, board, squareSize, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, squareSize, origin)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	rankOrder = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	fileOrder = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

func drawSquares(dst imagedraw.Image, squareSize int, origin image.Point) {
	for row, rank := range rankOrder {
		for col, file := range fileOrder {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize),
				image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(dst imagedraw.Image, board *nchess.Board, squareSize int, origin image.Point) error {
	boardMap := board.SquareMap()
	for row, rank := range rankOrder {
		for col, file := range fileOrder {
			piece := boardMap[nchess.NewSquare(file, rank)]
			if piece == nchess.NoPiece {
				continue
			}
			glyph, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), glyph, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawCoordinates(dst imagedraw.Image, squareSize int, origin image.Point) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(coordinateColor),
		Face: basicfont.Face7x13,
	}
	boardEndY := origin.Y + boardSquares*squareSize

	for row, rank := range rankOrder {
		baseline := origin.Y + row*squareSize + squareSize/2 + basicfont.Face7x13.Ascent/2
		drawer.Dot = fixed.P(origin.X-margin/2-3, baseline)
		drawer.DrawString(rank.String())
	}
	for col, file := range fileOrder {
		x := origin.X + col*squareSize + squareSize/2 - 3
		drawer.Dot = fixed.P(x, boardEndY+margin/2+basicfont.Face7x13.Ascent/2)
		drawer.DrawString(file.String())
	}
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

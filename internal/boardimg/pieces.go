package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece glyphs are generated from inline vector sources in a 45x45
// viewbox, colored per side at parse time.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<path d="M22.5 9a4.5 4.5 0 0 0-2.6 8.2c-2.8 1.3-4.7 4.1-4.7 7.3 0 1.9.7 3.7 1.8 5.1-3.9 1.6-6.5 5.4-6.5 9.9h24c0-4.5-2.6-8.3-6.5-9.9 1.1-1.4 1.8-3.2 1.8-5.1 0-3.2-1.9-6-4.7-7.3A4.5 4.5 0 0 0 22.5 9z"/>`,
	nchess.Rook: `<path d="M11 39h23v-4H11v4zm2-6h19l-1.5-12h-16L13 33zm-1-26v9h4v-3h3v3h7v-3h3v3h4v-9h-3v3h-3v-3h-4v3h-5v-3h-4v3h-2v-3h-3zm2 10h17l.5 3h-18l.5-3z"/>`,
	nchess.Knight: `<path d="M13 39h19c0-11-3-21-11-24l1-6-4 3-2-3-1 4c-4 2-6 6-6 9l4 2c1-2 2-3 4-4l-2 5c-3 4-2 9-2 14z"/>`,
	nchess.Bishop: `<path d="M22.5 7a3 3 0 0 0-1.6 5.5c-4 2.7-6.9 7.3-6.9 11.5 0 3.2 1.6 5.8 4 7.2L15 36h15l-3-4.8c2.4-1.4 4-4 4-7.2 0-4.2-2.9-8.8-6.9-11.5A3 3 0 0 0 22.5 7zM13 39h19v-2H13v2z"/>`,
	nchess.Queen: `<path d="M9 15l4 13-1 8h21l-1-8 4-13-6 6-3-8-4.5 7L18 13l-3 8-6-6zm3 24h21v-2H12v2z" transform="translate(0 1)"/>`,
	nchess.King: `<path d="M21 6h3v3h3v3h-3v3h-3v-3h-3V9h3V6zm1.5 10c-6 0-11 4-11 9 0 3 1.5 5.5 4 7l-2.5 5h19L29.5 32c2.5-1.5 4-4 4-7 0-5-5-9-11-9zM13 39h19v-2H13v2z"/>`,
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece nchess.Piece) string {
	fill, stroke := "#ffffff", "#1a1a1a"
	if piece.Color() == nchess.Black {
		fill, stroke = "#262421", "#e8e8e8"
	}
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45"><g fill="%s" stroke="%s" stroke-width="1.2">%s</g></svg>`,
		fill, stroke, pieceShapes[piece.Type()])
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(pieceSVG(piece))))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}

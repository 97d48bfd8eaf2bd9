// Package engine adapts the external chess rules library behind the
// fixed capability surface the session coordinator relies on: apply a
// move, expose the position representation, and report terminal status.
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalMove = errors.New("illegal move")

var squarePattern = regexp.MustCompile(`^[a-h][1-8]$`)

// Color is a chess side in wire form.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Short returns the single-letter color used in move records.
func (c Color) Short() string {
	if c == White {
		return "w"
	}
	return "b"
}

// Status is the terminal condition of a position, None while playable.
type Status string

const (
	StatusNone                 Status = "none"
	StatusCheckmate            Status = "checkmate"
	StatusStalemate            Status = "stalemate"
	StatusRepetition           Status = "repetition"
	StatusInsufficientMaterial Status = "insufficient_material"
	StatusDraw                 Status = "draw"
)

// MoveResult describes an accepted move.
type MoveResult struct {
	SAN      string
	UCI      string
	Color    Color
	Captured string // piece letter (p,n,b,r,q), empty when nothing was taken
	Check    bool
}

// Position owns one game's rules-engine state. It is not safe for
// concurrent use; the owning room serializes access.
type Position struct {
	game *nchess.Game
}

func NewPosition() *Position {
	return &Position{game: nchess.NewGame()}
}

// Reset reinitializes to the starting position.
func (p *Position) Reset() {
	p.game = nchess.NewGame()
}

// FEN returns the external position representation.
func (p *Position) FEN() string {
	return p.game.FEN()
}

// SideToMove reports whose turn it is.
func (p *Position) SideToMove() Color {
	if p.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// ApplyMove validates and applies a coordinate move. The promotion hint
// is optional and defaults to queen; pieces other than q/r/b/n are
// rejected. Library panics on malformed input are converted to
// ErrIllegalMove so they never cross this boundary.
func (p *Position) ApplyMove(from, to, promotion string) (res *MoveResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrIllegalMove, r)
		}
	}()

	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	if !squarePattern.MatchString(from) || !squarePattern.MatchString(to) {
		return nil, ErrIllegalMove
	}
	promo, ok := normalizePromotion(promotion)
	if !ok {
		return nil, ErrIllegalMove
	}

	pos := p.game.Position()
	mover := p.SideToMove()

	uci := from + to
	notation := nchess.UCINotation{}
	mv, err := notation.Decode(pos, uci+promo)
	if err != nil {
		if promo != "" {
			return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci+promo)
		}
		// bare coordinates may name a promotion move; auto-queen
		mv, err = notation.Decode(pos, uci+"q")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
		}
	}

	captured := capturedPiece(pos, mv)
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := p.game.Move(mv, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}

	return &MoveResult{
		SAN:      san,
		UCI:      mv.String(),
		Color:    mover,
		Captured: captured,
		Check:    mv.HasTag(nchess.Check),
	}, nil
}

// TerminalStatus reports the first matching terminal condition in the
// precedence checkmate > stalemate > repetition > insufficient material
// > other draw, with the winner for decisive results. Draws the library
// leaves optional (threefold, fifty-move) are claimed automatically.
func (p *Position) TerminalStatus() (Status, Color) {
	if p.game.Outcome() == nchess.NoOutcome {
		for _, m := range p.game.EligibleDraws() {
			if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
				_ = p.game.Draw(m)
				break
			}
		}
	}

	switch p.game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		winner := White
		if p.game.Outcome() == nchess.BlackWon {
			winner = Black
		}
		return StatusCheckmate, winner
	case nchess.Draw:
		switch p.game.Method() {
		case nchess.Stalemate:
			return StatusStalemate, ""
		case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
			return StatusRepetition, ""
		case nchess.InsufficientMaterial:
			return StatusInsufficientMaterial, ""
		default:
			return StatusDraw, ""
		}
	default:
		return StatusNone, ""
	}
}

func normalizePromotion(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", true
	case "q", "queen":
		return "q", true
	case "r", "rook":
		return "r", true
	case "b", "bishop":
		return "b", true
	case "n", "knight":
		return "n", true
	default:
		return "", false
	}
}

func capturedPiece(pos *nchess.Position, mv *nchess.Move) string {
	if !mv.HasTag(nchess.Capture) && !mv.HasTag(nchess.EnPassant) {
		return ""
	}
	if mv.HasTag(nchess.EnPassant) {
		return "p"
	}
	piece := pos.Board().Piece(mv.S2())
	if piece == nchess.NoPiece {
		return ""
	}
	switch piece.Type() {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	}
	return ""
}

// Package room owns the authoritative per-game state: the rules-engine
// position, seat assignments, spectators, and move/chat history. Every
// exported operation runs under the room mutex, so "check seat and turn,
// then mutate" is a single indivisible unit for callers.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/engine"
	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

var (
	ErrNotSeated   = errors.New("connection holds no seat in this room")
	ErrNotYourTurn = errors.New("not this seat's turn")
	ErrGameOver    = errors.New("game already finished")
	ErrNoOpponent  = errors.New("no opponent seated")
	ErrNoDrawOffer = errors.New("no pending draw offer")
)

// Role is a connection's standing inside a room.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

// IsSeat reports whether the role names one of the two playing seats.
func (r Role) IsSeat() bool { return r == RoleWhite || r == RoleBlack }

// Color maps a seat role onto the engine side.
func (r Role) Color() engine.Color {
	if r == RoleBlack {
		return engine.Black
	}
	return engine.White
}

func roleFor(c engine.Color) Role {
	if c == engine.Black {
		return RoleBlack
	}
	return RoleWhite
}

// JoinOutcome reports how a join resolved.
type JoinOutcome struct {
	Role Role
	// SeatTaken is set when the requested seat was occupied and the
	// connection fell back to spectating.
	SeatTaken bool
}

// MoveOutcome carries everything a successful move produced.
type MoveOutcome struct {
	Result *engine.MoveResult
	Record protocol.MoveRecord
	End    *protocol.GameEnd // nil while the game continues
}

// Room is the server-owned state for one game instance.
type Room struct {
	ID string

	mu         sync.Mutex
	position   *engine.Position
	seats      map[Role]string // seat -> connection id, absent when free
	spectators map[string]struct{}
	moves      []protocol.MoveRecord
	chat       []protocol.ChatEntry
	chatLimit  int
	finished   bool
	drawOffer  Role // seat with a pending offer, "" when none

	createdAt    time.Time
	lastActivity time.Time
}

func New(id string, chatLimit int, now time.Time) *Room {
	return &Room{
		ID:           id,
		position:     engine.NewPosition(),
		seats:        make(map[Role]string, 2),
		spectators:   make(map[string]struct{}),
		chatLimit:    chatLimit,
		createdAt:    now,
		lastActivity: now,
	}
}

// Join assigns the connection a role. A preferred free seat is taken; a
// preferred occupied seat falls back to spectator with SeatTaken set.
// With no preference the fallback order is white, black, spectator. Any
// previous membership of the same connection is released first.
func (r *Room) Join(connID string, preferred Role) JoinOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
	r.dropMember(connID)

	switch preferred {
	case RoleWhite, RoleBlack:
		if _, taken := r.seats[preferred]; taken {
			r.spectators[connID] = struct{}{}
			return JoinOutcome{Role: RoleSpectator, SeatTaken: true}
		}
		r.seats[preferred] = connID
		return JoinOutcome{Role: preferred}
	case RoleSpectator:
		r.spectators[connID] = struct{}{}
		return JoinOutcome{Role: RoleSpectator}
	default:
		for _, seat := range []Role{RoleWhite, RoleBlack} {
			if _, taken := r.seats[seat]; !taken {
				r.seats[seat] = connID
				return JoinOutcome{Role: seat}
			}
		}
		r.spectators[connID] = struct{}{}
		return JoinOutcome{Role: RoleSpectator}
	}
}

// Leave removes the connection and reports the role it held.
func (r *Room) Leave(connID string) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now()
	return r.dropMemberLocked(connID)
}

func (r *Room) dropMember(connID string) {
	r.dropMemberLocked(connID)
}

func (r *Room) dropMemberLocked(connID string) (Role, bool) {
	for seat, holder := range r.seats {
		if holder == connID {
			delete(r.seats, seat)
			return seat, true
		}
	}
	if _, ok := r.spectators[connID]; ok {
		delete(r.spectators, connID)
		return RoleSpectator, true
	}
	return "", false
}

// ReleaseSeatIf vacates the seat only while the given connection still
// holds it. Used by the grace-period expiry so it cannot race a
// reconnect that re-claimed the slot.
func (r *Room) ReleaseSeatIf(seat Role, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seats[seat] != connID {
		return false
	}
	delete(r.seats, seat)
	r.lastActivity = time.Now()
	return true
}

// ReplaceSeatIf hands the seat from oldConn to newConn in one step,
// only while oldConn still holds it. Used when a reconnect lands inside
// the disconnect grace window.
func (r *Room) ReplaceSeatIf(seat Role, oldConn, newConn string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seats[seat] != oldConn {
		return false
	}
	r.dropMemberLocked(newConn)
	r.seats[seat] = newConn
	r.lastActivity = time.Now()
	return true
}

// ClaimSeatIf occupies the seat for connID only while it is free.
func (r *Room) ClaimSeatIf(seat Role, connID string) bool {
	if !seat.IsSeat() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.seats[seat]; taken {
		return false
	}
	r.dropMemberLocked(connID)
	r.seats[seat] = connID
	r.lastActivity = time.Now()
	return true
}

// AddSpectator registers the connection as a spectator.
func (r *Room) AddSpectator(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropMemberLocked(connID)
	r.spectators[connID] = struct{}{}
	r.lastActivity = time.Now()
}

// RoleOf reports the connection's current role in the room.
func (r *Room) RoleOf(connID string) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for seat, holder := range r.seats {
		if holder == connID {
			return seat, true
		}
	}
	if _, ok := r.spectators[connID]; ok {
		return RoleSpectator, true
	}
	return "", false
}

// SeatHolder returns the connection occupying the seat, if any.
func (r *Room) SeatHolder(seat Role) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.seats[seat]
	return conn, ok
}

// Members lists every connection currently joined to the room.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.seats)+len(r.spectators))
	for _, conn := range r.seats {
		out = append(out, conn)
	}
	for conn := range r.spectators {
		out = append(out, conn)
	}
	return out
}

// Occupancy summarises seat state and spectator count.
func (r *Room) Occupancy() protocol.PlayersUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.occupancyLocked()
}

func (r *Room) occupancyLocked() protocol.PlayersUpdate {
	upd := protocol.PlayersUpdate{
		White:          protocol.SeatWaiting,
		Black:          protocol.SeatWaiting,
		SpectatorCount: len(r.spectators),
	}
	if _, ok := r.seats[RoleWhite]; ok {
		upd.White = protocol.SeatConnected
	}
	if _, ok := r.seats[RoleBlack]; ok {
		upd.Black = protocol.SeatConnected
	}
	return upd
}

// PlayMove validates seat ownership and turn order, applies the move,
// records it, and evaluates terminal conditions, all under one lock.
func (r *Room) PlayMove(connID, from, to, promotion string) (*MoveOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return nil, ErrGameOver
	}
	seat, ok := r.seatOfLocked(connID)
	if !ok {
		return nil, ErrNotSeated
	}
	if seat.Color() != r.position.SideToMove() {
		return nil, ErrNotYourTurn
	}

	res, err := r.position.ApplyMove(from, to, promotion)
	if err != nil {
		return nil, err
	}

	record := protocol.MoveRecord{
		Notation: res.SAN,
		Color:    res.Color.Short(),
		PlayedAt: time.Now(),
	}
	r.moves = append(r.moves, record)
	r.lastActivity = record.PlayedAt
	r.drawOffer = ""

	out := &MoveOutcome{Result: res, Record: record}
	if status, winner := r.position.TerminalStatus(); status != engine.StatusNone {
		r.finished = true
		out.End = gameEndFor(status, winner)
	}
	return out, nil
}

func (r *Room) seatOfLocked(connID string) (Role, bool) {
	for seat, holder := range r.seats {
		if holder == connID {
			return seat, true
		}
	}
	return "", false
}

func gameEndFor(status engine.Status, winner engine.Color) *protocol.GameEnd {
	end := &protocol.GameEnd{}
	switch status {
	case engine.StatusCheckmate:
		end.Type = protocol.EndCheckmate
		end.Winner = string(winner)
	case engine.StatusStalemate:
		end.Type = protocol.EndStalemate
	case engine.StatusRepetition:
		end.Type = protocol.EndRepetition
	case engine.StatusInsufficientMaterial:
		end.Type = protocol.EndInsufficientMaterial
	default:
		end.Type = protocol.EndDraw
	}
	return end
}

// AppendChat stores a sanitized chat line from a seated player and
// evicts the oldest entries beyond the history bound.
func (r *Room) AppendChat(connID, text string) (protocol.ChatEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seatOfLocked(connID)
	if !ok {
		return protocol.ChatEntry{}, ErrNotSeated
	}
	entry := protocol.ChatEntry{
		Author: string(seat),
		Color:  seat.Color().Short(),
		Text:   text,
		SentAt: time.Now(),
	}
	r.chat = append(r.chat, entry)
	if r.chatLimit > 0 && len(r.chat) > r.chatLimit {
		r.chat = r.chat[len(r.chat)-r.chatLimit:]
	}
	r.lastActivity = entry.SentAt
	return entry, nil
}

// Resign finishes the game in favor of the opponent.
func (r *Room) Resign(connID string) (engine.Color, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return "", ErrGameOver
	}
	seat, ok := r.seatOfLocked(connID)
	if !ok {
		return "", ErrNotSeated
	}
	r.finished = true
	r.drawOffer = ""
	r.lastActivity = time.Now()
	return seat.Color().Opponent(), nil
}

// OfferDraw records a pending offer and returns the opponent's
// connection id for the unicast notice.
func (r *Room) OfferDraw(connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return "", ErrGameOver
	}
	seat, ok := r.seatOfLocked(connID)
	if !ok {
		return "", ErrNotSeated
	}
	opponent, ok := r.seats[roleFor(seat.Color().Opponent())]
	if !ok {
		return "", ErrNoOpponent
	}
	r.drawOffer = seat
	r.lastActivity = time.Now()
	return opponent, nil
}

// RespondDraw resolves the pending offer. Accepting finishes the game;
// either way the offerer's connection id is returned for notification.
func (r *Room) RespondDraw(connID string, accepted bool) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seatOfLocked(connID)
	if !ok {
		return "", ErrNotSeated
	}
	if r.drawOffer == "" || r.drawOffer == seat {
		return "", ErrNoDrawOffer
	}
	offerer, ok := r.seats[r.drawOffer]
	r.drawOffer = ""
	r.lastActivity = time.Now()
	if !ok {
		return "", ErrNoDrawOffer
	}
	if accepted {
		r.finished = true
	}
	return offerer, nil
}

// ResetGame reinitializes the position and clears the move history.
// Chat history survives resets.
func (r *Room) ResetGame(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seatOfLocked(connID); !ok {
		return ErrNotSeated
	}
	r.position.Reset()
	r.moves = nil
	r.finished = false
	r.drawOffer = ""
	r.lastActivity = time.Now()
	return nil
}

// BoardState returns the current external position representation.
func (r *Room) BoardState() protocol.BoardState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boardStateLocked()
}

func (r *Room) boardStateLocked() protocol.BoardState {
	return protocol.BoardState{
		FEN:  r.position.FEN(),
		Turn: string(r.position.SideToMove()),
	}
}

// Snapshot returns board, move history, and chat history copies for the
// join delivery.
func (r *Room) Snapshot() (protocol.BoardState, []protocol.MoveRecord, []protocol.ChatEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	moves := append([]protocol.MoveRecord(nil), r.moves...)
	chat := append([]protocol.ChatEntry(nil), r.chat...)
	return r.boardStateLocked(), moves, chat
}

// MoveHistory returns a copy of the accepted moves since the last reset.
func (r *Room) MoveHistory() []protocol.MoveRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.MoveRecord(nil), r.moves...)
}

// ChatHistory returns a copy of the bounded chat log.
func (r *Room) ChatHistory() []protocol.ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.ChatEntry(nil), r.chat...)
}

// Finished reports whether the room is terminal until the next reset.
func (r *Room) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Touch marks room activity for idle tracking.
func (r *Room) Touch() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// LastActivity reports the most recent room-affecting action.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// CreatedAt reports when the room was lazily created.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Package session drives the client protocol. The coordinator routes
// commands onto rooms, tracks which room each connection belongs to,
// arms disconnect grace timers, issues reconnection tokens, and fans
// events out to room members through the Sender.
package session

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/archive"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/engine"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/msgcat"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/obslog"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/ratelimit"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/room"
	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

// Sender delivers one event to one connection. The transport layer
// implements it; delivery is best effort.
type Sender interface {
	Send(connID string, ev protocol.Event)
}

// Config bounds protocol behavior.
type Config struct {
	GracePeriod time.Duration
	ChatRule    ratelimit.Rule
	ChatMaxLen  int
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 30 * time.Second
	}
	if c.ChatRule.Limit <= 0 || c.ChatRule.Window <= 0 {
		c.ChatRule = ratelimit.Rule{Limit: 5, Window: 30 * time.Second}
	}
	if c.ChatMaxLen <= 0 {
		c.ChatMaxLen = 200
	}
	return c
}

type graceHold struct {
	connID string
	timer  *time.Timer
}

// Coordinator is the protocol state machine shared by all connections.
type Coordinator struct {
	reg     *room.Registry
	store   *TokenStore
	sender  Sender
	limiter *ratelimit.Limiter
	cat     *msgcat.Catalog
	rec     archive.Recorder
	cfg     Config

	mu         sync.Mutex
	membership map[string]string     // conn id -> room id
	grace      map[string]*graceHold // room id + "/" + seat
}

func NewCoordinator(reg *room.Registry, store *TokenStore, sender Sender, limiter *ratelimit.Limiter, cat *msgcat.Catalog, rec archive.Recorder, cfg Config) *Coordinator {
	return &Coordinator{
		reg:        reg,
		store:      store,
		sender:     sender,
		limiter:    limiter,
		cat:        cat,
		rec:        rec,
		cfg:        cfg.withDefaults(),
		membership: make(map[string]string),
		grace:      make(map[string]*graceHold),
	}
}

// Dispatch routes one decoded client command.
func (c *Coordinator) Dispatch(ctx context.Context, connID string, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.CmdJoinRoom:
		c.Join(ctx, connID, cmd.RoomID, cmd.PreferredRole)
	case protocol.CmdMove:
		c.Move(ctx, connID, cmd.From, cmd.To, cmd.Promotion)
	case protocol.CmdChatMessage:
		c.Chat(ctx, connID, cmd.Message)
	case protocol.CmdResign:
		c.Resign(ctx, connID)
	case protocol.CmdOfferDraw:
		c.OfferDraw(ctx, connID)
	case protocol.CmdRespondToDraw:
		c.RespondDraw(ctx, connID, cmd.Accepted)
	case protocol.CmdResetGame:
		c.Reset(ctx, connID)
	case protocol.CmdReconnect:
		c.Reconnect(ctx, connID, cmd.Token)
	default:
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.unknown_command")
	}
}

// Join places the connection into the room, creating the room on first
// use. Any previous membership of the connection is released first.
func (c *Coordinator) Join(ctx context.Context, connID, roomID, preferredRole string) {
	rm, err := c.reg.GetOrCreate(roomID)
	if err != nil {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.invalid_room")
		return
	}

	c.mu.Lock()
	if prev, ok := c.membership[connID]; ok && prev != rm.ID {
		c.leaveLocked(connID, prev)
	}
	out := rm.Join(connID, parseRole(preferredRole))
	c.membership[connID] = rm.ID
	c.mu.Unlock()

	if out.SeatTaken {
		c.sendError(connID, protocol.EvError, protocol.CodeForbidden, "notice.role_unavailable",
			"Role", displayColor(preferredRole))
	}
	c.sender.Send(connID, protocol.Event{Type: protocol.EvRoleAssigned, Payload: protocol.RoleAssigned{Role: string(out.Role)}})
	if out.Role.IsSeat() {
		c.issueToken(ctx, connID, rm.ID, out.Role)
	}
	c.sendSnapshot(connID, rm)
	c.broadcast(rm, protocol.Event{Type: protocol.EvPlayersUpdate, Payload: rm.Occupancy()})

	obslog.L().Info("room_join",
		zap.String("room_id", rm.ID),
		zap.String("conn_id", connID),
		zap.String("role", string(out.Role)))
}

// Move validates and applies a coordinate move from a seated player.
func (c *Coordinator) Move(ctx context.Context, connID, from, to, promotion string) {
	rm, ok := c.roomOf(connID)
	if !ok {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.not_in_room")
		return
	}

	out, err := rm.PlayMove(connID, from, to, promotion)
	if err != nil {
		switch {
		case errors.Is(err, room.ErrNotSeated):
			c.sendError(connID, protocol.EvMoveError, protocol.CodeForbidden, "error.not_seated")
		case errors.Is(err, room.ErrNotYourTurn):
			c.sendError(connID, protocol.EvMoveError, protocol.CodeForbidden, "error.not_your_turn")
		case errors.Is(err, room.ErrGameOver):
			c.sendError(connID, protocol.EvMoveError, protocol.CodeForbidden, "error.game_over")
		case errors.Is(err, engine.ErrIllegalMove):
			c.sendError(connID, protocol.EvMoveError, protocol.CodeIllegalMove, "error.illegal_move")
		default:
			c.sendError(connID, protocol.EvMoveError, protocol.CodeInvalidRequest, "error.invalid_request")
		}
		return
	}

	uci := out.Result.UCI
	played := protocol.MovePlayed{
		From:     uci[:2],
		To:       uci[2:4],
		Notation: out.Result.SAN,
		Color:    out.Result.Color.Short(),
		Captured: out.Result.Captured,
		Check:    out.Result.Check,
	}
	c.broadcast(rm, protocol.Event{Type: protocol.EvMove, Payload: played})
	c.broadcast(rm, protocol.Event{Type: protocol.EvBoardState, Payload: rm.BoardState()})
	c.broadcast(rm, protocol.Event{Type: protocol.EvMoveHistory, Payload: rm.MoveHistory()})
	if out.End != nil {
		c.finishGame(ctx, rm, out.End)
	}
}

// Chat sanitizes and broadcasts a seated player's message.
func (c *Coordinator) Chat(ctx context.Context, connID, message string) {
	rm, ok := c.roomOf(connID)
	if !ok {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.not_in_room")
		return
	}
	if role, ok := rm.RoleOf(connID); !ok || !role.IsSeat() {
		c.sendError(connID, protocol.EvChatError, protocol.CodeForbidden, "error.not_seated")
		return
	}
	if !c.limiter.Allow(connID+":chat", c.cfg.ChatRule) {
		c.sendError(connID, protocol.EvChatError, protocol.CodeRateLimited, "error.chat_rate")
		return
	}
	text := sanitizeChat(message, c.cfg.ChatMaxLen)
	if text == "" {
		c.sendError(connID, protocol.EvChatError, protocol.CodeInvalidContent, "error.chat_empty")
		return
	}

	entry, err := rm.AppendChat(connID, text)
	if err != nil {
		c.sendError(connID, protocol.EvChatError, protocol.CodeForbidden, "error.not_seated")
		return
	}
	c.broadcast(rm, protocol.Event{Type: protocol.EvChatMessage, Payload: entry})
}

// Resign finishes the game in favor of the opponent.
func (c *Coordinator) Resign(ctx context.Context, connID string) {
	rm, ok := c.roomOf(connID)
	if !ok {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.not_in_room")
		return
	}
	winner, err := rm.Resign(connID)
	if err != nil {
		c.sendRoomError(connID, err)
		return
	}
	c.finishGame(ctx, rm, &protocol.GameEnd{
		Type:   protocol.EndResignation,
		Winner: string(winner),
	})
}

// OfferDraw records a pending offer and notifies the opponent.
func (c *Coordinator) OfferDraw(ctx context.Context, connID string) {
	rm, ok := c.roomOf(connID)
	if !ok {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.not_in_room")
		return
	}
	opponent, err := rm.OfferDraw(connID)
	if err != nil {
		c.sendRoomError(connID, err)
		return
	}
	role, _ := rm.RoleOf(connID)
	c.sender.Send(opponent, protocol.Event{Type: protocol.EvDrawOfferReceived, Payload: protocol.DrawOffer{
		From:    string(role),
		Message: c.cat.Line("notice.draw_offer", map[string]string{"Role": displayColor(string(role))}),
	}})
}

// RespondDraw resolves a pending draw offer.
func (c *Coordinator) RespondDraw(ctx context.Context, connID string, accepted *bool) {
	rm, ok := c.roomOf(connID)
	if !ok {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.not_in_room")
		return
	}
	if accepted == nil {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.invalid_request")
		return
	}
	offerer, err := rm.RespondDraw(connID, *accepted)
	if err != nil {
		c.sendRoomError(connID, err)
		return
	}
	if *accepted {
		c.finishGame(ctx, rm, &protocol.GameEnd{Type: protocol.EndDrawAgreement})
		return
	}
	c.sender.Send(offerer, protocol.Event{Type: protocol.EvDrawOfferDeclined, Payload: protocol.Notice{
		Message: c.cat.Line("notice.draw_declined", nil),
	}})
}

// Reset reinitializes the board for a new game in the same room.
func (c *Coordinator) Reset(ctx context.Context, connID string) {
	rm, ok := c.roomOf(connID)
	if !ok {
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.not_in_room")
		return
	}
	if err := rm.ResetGame(connID); err != nil {
		c.sendRoomError(connID, err)
		return
	}
	c.broadcast(rm, protocol.Event{Type: protocol.EvBoardState, Payload: rm.BoardState()})
	c.broadcast(rm, protocol.Event{Type: protocol.EvMoveHistory, Payload: rm.MoveHistory()})
	obslog.L().Info("room_reset", zap.String("room_id", rm.ID))
}

// Reconnect restores a seat from a token. Inside the grace window the
// seat is handed over silently; after it, the seat is re-claimed if
// still free, otherwise the connection falls back to spectating.
func (c *Coordinator) Reconnect(ctx context.Context, connID, token string) {
	// reconnection races the idle sweep; an unknown token or a swept
	// room is a lenient no-op beyond logging
	tok, err := c.store.Load(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			obslog.L().Warn("session_load_failed", zap.Error(err))
		} else {
			obslog.L().Info("session_token_unknown", zap.String("conn_id", connID))
		}
		return
	}
	rm, ok := c.reg.Get(tok.RoomID)
	if !ok {
		_ = c.store.Delete(ctx, token)
		obslog.L().Info("session_room_gone", zap.String("room_id", tok.RoomID))
		return
	}

	seat := room.Role(tok.Seat)
	assigned := room.RoleSpectator
	inGrace := false

	c.mu.Lock()
	if prev, ok := c.membership[connID]; ok && prev != rm.ID {
		c.leaveLocked(connID, prev)
	}
	if seat.IsSeat() {
		key := graceKey(rm.ID, seat)
		if hold, ok := c.grace[key]; ok {
			hold.timer.Stop()
			delete(c.grace, key)
			if rm.ReplaceSeatIf(seat, hold.connID, connID) {
				assigned = seat
				inGrace = true
			}
		}
		if assigned == room.RoleSpectator && rm.ClaimSeatIf(seat, connID) {
			assigned = seat
		}
	}
	if assigned == room.RoleSpectator {
		rm.AddSpectator(connID)
	}
	c.membership[connID] = rm.ID
	c.mu.Unlock()

	if assigned == room.RoleSpectator {
		_ = c.store.Delete(ctx, token)
		c.sendError(connID, protocol.EvError, protocol.CodeForbidden, "notice.seat_lost")
	} else if err := c.store.Refresh(ctx, token); err == nil {
		c.sender.Send(connID, protocol.Event{Type: protocol.EvSessionID, Payload: protocol.SessionID{Token: token}})
	}
	c.sender.Send(connID, protocol.Event{Type: protocol.EvRoleAssigned, Payload: protocol.RoleAssigned{Role: string(assigned)}})
	c.sendSnapshot(connID, rm)
	// a grace-window handover changes nothing visible, so no occupancy
	// broadcast in that case
	if !inGrace {
		c.broadcast(rm, protocol.Event{Type: protocol.EvPlayersUpdate, Payload: rm.Occupancy()})
	}

	obslog.L().Info("room_reconnect",
		zap.String("room_id", rm.ID),
		zap.String("conn_id", connID),
		zap.String("role", string(assigned)),
		zap.Bool("in_grace", inGrace))
}

// Disconnect handles a dropped transport. Seats enter the grace window
// instead of being vacated immediately; spectators leave at once.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	roomID, ok := c.membership[connID]
	delete(c.membership, connID)
	c.mu.Unlock()
	c.limiter.Forget(connID + ":")
	if !ok {
		return
	}
	rm, found := c.reg.Get(roomID)
	if !found {
		return
	}
	role, member := rm.RoleOf(connID)
	if !member {
		return
	}

	if !role.IsSeat() {
		rm.Leave(connID)
		c.broadcast(rm, protocol.Event{Type: protocol.EvPlayersUpdate, Payload: rm.Occupancy()})
		return
	}

	key := graceKey(rm.ID, role)
	c.mu.Lock()
	if prev, ok := c.grace[key]; ok {
		prev.timer.Stop()
	}
	c.grace[key] = &graceHold{
		connID: connID,
		timer: time.AfterFunc(c.cfg.GracePeriod, func() {
			c.expireGrace(roomID, role, connID)
		}),
	}
	c.mu.Unlock()

	obslog.L().Debug("grace_armed",
		zap.String("room_id", rm.ID),
		zap.String("seat", string(role)),
		zap.String("conn_id", connID))
}

func (c *Coordinator) expireGrace(roomID string, seat room.Role, connID string) {
	key := graceKey(roomID, seat)
	c.mu.Lock()
	hold, ok := c.grace[key]
	if !ok || hold.connID != connID {
		c.mu.Unlock()
		return
	}
	delete(c.grace, key)
	c.mu.Unlock()

	rm, found := c.reg.Get(roomID)
	if !found {
		return
	}
	if rm.ReleaseSeatIf(seat, connID) {
		c.broadcast(rm, protocol.Event{Type: protocol.EvPlayersUpdate, Payload: rm.Occupancy()})
		obslog.L().Info("seat_released",
			zap.String("room_id", roomID),
			zap.String("seat", string(seat)))
	}
}

func (c *Coordinator) finishGame(ctx context.Context, rm *room.Room, end *protocol.GameEnd) {
	end.Message = c.endMessage(end)
	c.broadcast(rm, protocol.Event{Type: protocol.EvGameEnd, Payload: end})
	obslog.L().Info("game_end",
		zap.String("room_id", rm.ID),
		zap.String("type", string(end.Type)),
		zap.String("winner", end.Winner))

	if c.rec == nil {
		return
	}
	res := archive.Result{
		RoomID:     rm.ID,
		Outcome:    string(end.Type),
		Winner:     end.Winner,
		MoveCount:  len(rm.MoveHistory()),
		FinishedAt: time.Now(),
	}
	if err := c.rec.SaveResult(ctx, res); err != nil {
		obslog.L().Warn("archive_save_failed", zap.String("room_id", rm.ID), zap.Error(err))
	}
}

func (c *Coordinator) endMessage(end *protocol.GameEnd) string {
	data := map[string]string{"Winner": displayColor(end.Winner)}
	var key string
	switch end.Type {
	case protocol.EndCheckmate:
		key = "gameend.checkmate"
	case protocol.EndStalemate:
		key = "gameend.stalemate"
	case protocol.EndRepetition:
		key = "gameend.repetition"
	case protocol.EndInsufficientMaterial:
		key = "gameend.insufficient_material"
	case protocol.EndResignation:
		key = "gameend.resignation"
		data["Loser"] = displayColor(string(engine.Color(end.Winner).Opponent()))
	case protocol.EndDrawAgreement:
		key = "gameend.draw_agreement"
	default:
		key = "gameend.draw"
	}
	return c.cat.Line(key, data)
}

// leaveLocked releases a connection's membership in its previous room.
// Callers hold c.mu.
func (c *Coordinator) leaveLocked(connID, roomID string) {
	rm, ok := c.reg.Get(roomID)
	if !ok {
		return
	}
	if _, left := rm.Leave(connID); left {
		c.broadcast(rm, protocol.Event{Type: protocol.EvPlayersUpdate, Payload: rm.Occupancy()})
	}
}

func (c *Coordinator) issueToken(ctx context.Context, connID, roomID string, seat room.Role) {
	token := uuid.NewString()
	if err := c.store.Save(ctx, token, Token{RoomID: roomID, Seat: string(seat)}); err != nil {
		obslog.L().Warn("session_save_failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	c.sender.Send(connID, protocol.Event{Type: protocol.EvSessionID, Payload: protocol.SessionID{Token: token}})
}

func (c *Coordinator) sendSnapshot(connID string, rm *room.Room) {
	board, moves, chat := rm.Snapshot()
	c.sender.Send(connID, protocol.Event{Type: protocol.EvBoardState, Payload: board})
	c.sender.Send(connID, protocol.Event{Type: protocol.EvMoveHistory, Payload: moves})
	c.sender.Send(connID, protocol.Event{Type: protocol.EvChatHistory, Payload: chat})
}

func (c *Coordinator) roomOf(connID string) (*room.Room, bool) {
	c.mu.Lock()
	roomID, ok := c.membership[connID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return c.reg.Get(roomID)
}

func (c *Coordinator) broadcast(rm *room.Room, ev protocol.Event) {
	for _, member := range rm.Members() {
		c.sender.Send(member, ev)
	}
}

func (c *Coordinator) sendError(connID string, evType protocol.EventType, code protocol.ErrorCode, msgKey string, kv ...string) {
	var data map[string]string
	if len(kv) > 0 {
		data = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			data[kv[i]] = kv[i+1]
		}
	}
	c.sender.Send(connID, protocol.Event{Type: evType, Payload: protocol.ErrorPayload{
		Code:    code,
		Message: c.cat.Line(msgKey, data),
	}})
}

// sendRoomError maps room-level failures onto unicast error events.
func (c *Coordinator) sendRoomError(connID string, err error) {
	switch {
	case errors.Is(err, room.ErrNotSeated):
		c.sendError(connID, protocol.EvError, protocol.CodeForbidden, "error.not_seated")
	case errors.Is(err, room.ErrGameOver):
		c.sendError(connID, protocol.EvError, protocol.CodeForbidden, "error.game_over")
	case errors.Is(err, room.ErrNoOpponent):
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.no_opponent")
	case errors.Is(err, room.ErrNoDrawOffer):
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.no_draw_offer")
	default:
		c.sendError(connID, protocol.EvError, protocol.CodeInvalidRequest, "error.invalid_request")
	}
}

func graceKey(roomID string, seat room.Role) string {
	return roomID + "/" + string(seat)
}

// parseRole tolerates unknown role strings as spectator; only an
// absent preference gets the white-then-black fallback.
func parseRole(raw string) room.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "white":
		return room.RoleWhite
	case "black":
		return room.RoleBlack
	default:
		return room.RoleSpectator
	}
}

func displayColor(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "white":
		return "White"
	case "black":
		return "Black"
	}
	return c
}

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// sanitizeChat strips markup and control characters, collapses
// whitespace, and caps the result at maxLen runes.
func sanitizeChat(raw string, maxLen int) string {
	s := markupPattern.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		s = string(runes[:maxLen])
		s = strings.TrimSpace(s)
	}
	return s
}

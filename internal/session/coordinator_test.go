package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/archive"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/msgcat"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/ratelimit"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/room"
	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

type recordingSender struct {
	mu     sync.Mutex
	events map[string][]protocol.Event
}

func newRecordingSender() *recordingSender {
	return &recordingSender{events: make(map[string][]protocol.Event)}
}

func (s *recordingSender) Send(connID string, ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[connID] = append(s.events[connID], ev)
}

func (s *recordingSender) byType(connID string, t protocol.EventType) []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Event
	for _, ev := range s.events[connID] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSender) last(t *testing.T, connID string, typ protocol.EventType) protocol.Event {
	t.Helper()
	evs := s.byType(connID, typ)
	if len(evs) == 0 {
		t.Fatalf("no %s event delivered to %s", typ, connID)
	}
	return evs[len(evs)-1]
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *recordingSender, *archive.MemoryRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("load message catalog: %v", err)
	}
	sender := newRecordingSender()
	rec := archive.NewMemoryRecorder()
	co := NewCoordinator(room.NewRegistry(50), NewTokenStore(rdb, time.Hour), sender, ratelimit.New(), cat, rec, cfg)
	return co, sender, rec
}

func sessionToken(t *testing.T, sender *recordingSender, connID string) string {
	t.Helper()
	ev := sender.last(t, connID, protocol.EvSessionID)
	payload, ok := ev.Payload.(protocol.SessionID)
	if !ok {
		t.Fatalf("sessionId payload has type %T", ev.Payload)
	}
	return payload.Token
}

func TestJoinAssignsSeatsThenSpectator(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "c1", "lobby-1", "")
	co.Join(ctx, "c2", "lobby-1", "")
	co.Join(ctx, "c3", "lobby-1", "")

	for conn, want := range map[string]string{"c1": "white", "c2": "black", "c3": "spectator"} {
		ev := sender.last(t, conn, protocol.EvRoleAssigned)
		if got := ev.Payload.(protocol.RoleAssigned).Role; got != want {
			t.Fatalf("%s assigned %q, want %q", conn, got, want)
		}
	}

	upd := sender.last(t, "c1", protocol.EvPlayersUpdate).Payload.(protocol.PlayersUpdate)
	if upd.White != protocol.SeatConnected || upd.Black != protocol.SeatConnected || upd.SpectatorCount != 1 {
		t.Fatalf("unexpected occupancy: %+v", upd)
	}

	// spectators get no reconnection token
	if evs := sender.byType("c3", protocol.EvSessionID); len(evs) != 0 {
		t.Fatalf("spectator received %d session tokens", len(evs))
	}
}

func TestJoinPreferredSeatTakenFallsBack(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "c1", "abcd", "white")
	co.Join(ctx, "c2", "ABCD", "white") // ids are case-insensitive

	ev := sender.last(t, "c2", protocol.EvRoleAssigned)
	if got := ev.Payload.(protocol.RoleAssigned).Role; got != "spectator" {
		t.Fatalf("second white-preferrer assigned %q, want spectator", got)
	}
	if len(sender.byType("c2", protocol.EvError)) == 0 {
		t.Fatalf("expected a seat-taken notice")
	}
}

func TestMoveAcceptedAndEchoed(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "w", "game-1", "white")
	co.Join(ctx, "b", "game-1", "black")
	co.Move(ctx, "w", "e2", "e4", "")

	for _, conn := range []string{"w", "b"} {
		ev := sender.last(t, conn, protocol.EvMove)
		mp := ev.Payload.(protocol.MovePlayed)
		if mp.Notation != "e4" || mp.Color != "w" || mp.From != "e2" || mp.To != "e4" {
			t.Fatalf("unexpected move echo for %s: %+v", conn, mp)
		}
	}

	board := sender.last(t, "b", protocol.EvBoardState).Payload.(protocol.BoardState)
	if board.Turn != "black" {
		t.Fatalf("turn after e4 is %q, want black", board.Turn)
	}
}

func TestMoveOutOfTurnRejected(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "w", "game-2", "white")
	co.Join(ctx, "b", "game-2", "black")
	co.Move(ctx, "b", "e7", "e5", "")

	ev := sender.last(t, "b", protocol.EvMoveError)
	if code := ev.Payload.(protocol.ErrorPayload).Code; code != protocol.CodeForbidden {
		t.Fatalf("out-of-turn move got code %q, want forbidden", code)
	}
	if len(sender.byType("w", protocol.EvMove)) != 0 {
		t.Fatalf("rejected move must not be broadcast")
	}
}

func TestSpectatorCannotMoveOrChat(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "w", "game-3", "white")
	co.Join(ctx, "s", "game-3", "spectator")

	co.Move(ctx, "s", "e2", "e4", "")
	ev := sender.last(t, "s", protocol.EvMoveError)
	if code := ev.Payload.(protocol.ErrorPayload).Code; code != protocol.CodeForbidden {
		t.Fatalf("spectator move got code %q", code)
	}

	co.Chat(ctx, "s", "hello")
	cev := sender.last(t, "s", protocol.EvChatError)
	if code := cev.Payload.(protocol.ErrorPayload).Code; code != protocol.CodeForbidden {
		t.Fatalf("spectator chat got code %q", code)
	}
}

func TestChatRateLimitAndSanitization(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{
		ChatRule: ratelimit.Rule{Limit: 5, Window: 30 * time.Second},
	})
	ctx := context.Background()

	co.Join(ctx, "w", "game-4", "white")
	co.Join(ctx, "b", "game-4", "black")

	co.Chat(ctx, "w", "  <b>hi</b>  there  ")
	entry := sender.last(t, "b", protocol.EvChatMessage).Payload.(protocol.ChatEntry)
	if entry.Text != "hi there" {
		t.Fatalf("sanitized text %q, want %q", entry.Text, "hi there")
	}

	co.Chat(ctx, "w", "<script></script>")
	if code := sender.last(t, "w", protocol.EvChatError).Payload.(protocol.ErrorPayload).Code; code != protocol.CodeInvalidContent {
		t.Fatalf("markup-only message got code %q", code)
	}

	for i := 0; i < 4; i++ {
		co.Chat(ctx, "w", "spam")
	}
	co.Chat(ctx, "w", "one too many")
	if code := sender.last(t, "w", protocol.EvChatError).Payload.(protocol.ErrorPayload).Code; code != protocol.CodeRateLimited {
		t.Fatalf("sixth message in window got code %q, want rate_limited", code)
	}
}

func TestResignBroadcastsGameEndAndArchives(t *testing.T) {
	co, sender, rec := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "w", "game-5", "white")
	co.Join(ctx, "b", "game-5", "black")
	co.Resign(ctx, "w")

	for _, conn := range []string{"w", "b"} {
		end := sender.last(t, conn, protocol.EvGameEnd).Payload.(*protocol.GameEnd)
		if end.Type != protocol.EndResignation || end.Winner != "black" {
			t.Fatalf("unexpected game end for %s: %+v", conn, end)
		}
	}

	results := rec.Results()
	if len(results) != 1 || results[0].Outcome != string(protocol.EndResignation) || results[0].Winner != "black" {
		t.Fatalf("unexpected archive: %+v", results)
	}

	// room stays terminal until reset
	co.Move(ctx, "b", "e7", "e5", "")
	if code := sender.last(t, "b", protocol.EvMoveError).Payload.(protocol.ErrorPayload).Code; code != protocol.CodeForbidden {
		t.Fatalf("move after game end got code %q", code)
	}

	co.Reset(ctx, "b")
	board := sender.last(t, "w", protocol.EvBoardState).Payload.(protocol.BoardState)
	if board.Turn != "white" {
		t.Fatalf("turn after reset is %q", board.Turn)
	}
}

func TestDrawOfferDeclineAndAccept(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()

	co.Join(ctx, "w", "game-6", "white")
	co.Join(ctx, "b", "game-6", "black")

	co.OfferDraw(ctx, "w")
	offer := sender.last(t, "b", protocol.EvDrawOfferReceived).Payload.(protocol.DrawOffer)
	if offer.From != "white" {
		t.Fatalf("offer attributed to %q", offer.From)
	}

	no := false
	co.RespondDraw(ctx, "b", &no)
	if len(sender.byType("w", protocol.EvDrawOfferDeclined)) != 1 {
		t.Fatalf("offerer was not told about the decline")
	}

	// declined offer is spent
	co.RespondDraw(ctx, "b", &no)
	if code := sender.last(t, "b", protocol.EvError).Payload.(protocol.ErrorPayload).Code; code != protocol.CodeInvalidRequest {
		t.Fatalf("responding with no pending offer got code %q", code)
	}

	co.OfferDraw(ctx, "w")
	yes := true
	co.RespondDraw(ctx, "b", &yes)
	end := sender.last(t, "w", protocol.EvGameEnd).Payload.(*protocol.GameEnd)
	if end.Type != protocol.EndDrawAgreement {
		t.Fatalf("accepted offer ended as %q", end.Type)
	}
}

func TestReconnectInsideGraceKeepsSeatQuiet(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{GracePeriod: 200 * time.Millisecond})
	ctx := context.Background()

	co.Join(ctx, "w1", "game-7", "white")
	co.Join(ctx, "b", "game-7", "black")
	token := sessionToken(t, sender, "w1")

	updatesBefore := len(sender.byType("b", protocol.EvPlayersUpdate))
	co.Disconnect("w1")
	co.Reconnect(ctx, "w2", token)

	ev := sender.last(t, "w2", protocol.EvRoleAssigned)
	if got := ev.Payload.(protocol.RoleAssigned).Role; got != "white" {
		t.Fatalf("reconnect assigned %q, want white", got)
	}
	if got := len(sender.byType("b", protocol.EvPlayersUpdate)); got != updatesBefore {
		t.Fatalf("grace reconnect leaked %d occupancy updates", got-updatesBefore)
	}

	// the restored seat can keep playing
	co.Move(ctx, "w2", "e2", "e4", "")
	if len(sender.byType("b", protocol.EvMove)) != 1 {
		t.Fatalf("restored seat could not move")
	}
}

func TestGraceExpiryReleasesSeat(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{GracePeriod: 30 * time.Millisecond})
	ctx := context.Background()

	co.Join(ctx, "w1", "game-8", "white")
	co.Join(ctx, "b", "game-8", "black")
	token := sessionToken(t, sender, "w1")

	co.Disconnect("w1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		upd := sender.last(t, "b", protocol.EvPlayersUpdate).Payload.(protocol.PlayersUpdate)
		if upd.White == protocol.SeatWaiting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("seat was not released after the grace window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the token still restores the now-free seat
	co.Reconnect(ctx, "w2", token)
	ev := sender.last(t, "w2", protocol.EvRoleAssigned)
	if got := ev.Payload.(protocol.RoleAssigned).Role; got != "white" {
		t.Fatalf("post-grace reconnect assigned %q, want white", got)
	}
}

func TestReconnectSeatTakenFallsBackToSpectator(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{GracePeriod: 10 * time.Millisecond})
	ctx := context.Background()

	co.Join(ctx, "w1", "game-9", "white")
	co.Join(ctx, "b", "game-9", "black")
	token := sessionToken(t, sender, "w1")

	co.Disconnect("w1")
	time.Sleep(50 * time.Millisecond)
	co.Join(ctx, "w2", "game-9", "white") // someone else takes the freed seat

	co.Reconnect(ctx, "w3", token)
	ev := sender.last(t, "w3", protocol.EvRoleAssigned)
	if got := ev.Payload.(protocol.RoleAssigned).Role; got != "spectator" {
		t.Fatalf("reconnect into taken seat assigned %q, want spectator", got)
	}

	// the spent token no longer restores anything
	co.Reconnect(ctx, "w4", token)
	if evs := sender.byType("w4", protocol.EvRoleAssigned); len(evs) != 0 {
		t.Fatalf("spent token still assigned a role: %v", evs)
	}
}

func TestReconnectUnknownTokenIsNoop(t *testing.T) {
	co, sender, _ := newTestCoordinator(t, Config{})
	co.Reconnect(context.Background(), "c1", "no-such-token")
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if n := len(sender.events["c1"]); n != 0 {
		t.Fatalf("unknown token produced %d events, want none", n)
	}
}

func TestTokenSweepDropsOrphans(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewTokenStore(rdb, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "t1", Token{RoomID: "LIVE", Seat: "white"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "t2", Token{RoomID: "GONE", Seat: "black"}); err != nil {
		t.Fatal(err)
	}

	removed, err := store.SweepOrphans(ctx, func(roomID string) bool { return roomID == "LIVE" })
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("sweep removed %d tokens, want 1", removed)
	}
	if _, err := store.Load(ctx, "t1"); err != nil {
		t.Fatalf("live token must survive: %v", err)
	}
	if _, err := store.Load(ctx, "t2"); err != ErrTokenNotFound {
		t.Fatalf("orphan token still loadable: %v", err)
	}
}

// Package status is the HTTP ops surface: health, room occupancy, and
// board snapshots. It runs beside the game socket on its own listener.
package status

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/boardimg"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/obslog"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/room"
)

const (
	minBoardSquare = 16
	maxBoardSquare = 128
)

// ConnCounter reports live transport connections, implemented by the
// websocket hub.
type ConnCounter interface {
	Len() int
}

type Server struct {
	reg       *room.Registry
	conns     ConnCounter
	startedAt time.Time
	srv       *fasthttp.Server
}

func NewServer(reg *room.Registry, conns ConnCounter) *Server {
	s := &Server{
		reg:       reg,
		conns:     conns,
		startedAt: time.Now(),
	}
	s.srv = &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "royal-chess-status",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("status_listen", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown() error {
	return s.srv.Shutdown()
}

func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/healthz":
		s.handleHealth(ctx)
	case path == "/rooms":
		s.handleRooms(ctx)
	case strings.HasPrefix(path, "/rooms/") && strings.HasSuffix(path, "/board.png"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/rooms/"), "/board.png")
		s.handleBoard(ctx, id)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	payload := map[string]any{
		"status":      "ok",
		"rooms":       s.reg.Len(),
		"connections": s.conns.Len(),
		"uptime_s":    int(time.Since(s.startedAt).Seconds()),
	}
	writeJSON(ctx, payload)
}

func (s *Server) handleRooms(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, s.reg.Occupancies())
}

func (s *Server) handleBoard(ctx *fasthttp.RequestCtx, id string) {
	rm, ok := s.reg.Get(id)
	if !ok {
		ctx.Error("room not found", fasthttp.StatusNotFound)
		return
	}
	size := boardimg.SquareSize
	if raw := string(ctx.QueryArgs().Peek("size")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			size = clamp(n, minBoardSquare, maxBoardSquare)
		}
	}
	png, err := boardimg.Render(rm.BoardState().FEN, size)
	if err != nil {
		obslog.L().Warn("board_render_failed", zap.String("room_id", rm.ID), zap.Error(err))
		ctx.Error("render failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("image/png")
	ctx.SetBody(png)
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode failed", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

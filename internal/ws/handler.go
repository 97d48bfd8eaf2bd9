package ws

import (
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Prashantpareek-dev/Royal-Chess/internal/obslog"
	"github.com/Prashantpareek-dev/Royal-Chess/internal/session"
	"github.com/Prashantpareek-dev/Royal-Chess/pkg/protocol"
)

const maxCommandBytes = 4096

// Handler upgrades HTTP requests and runs the per-connection read loop.
type Handler struct {
	hub   *Hub
	coord *session.Coordinator
}

func NewHandler(hub *Hub, coord *session.Coordinator) *Handler {
	return &Handler{hub: hub, coord: coord}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxCommandBytes)

	client := newClient(conn)
	h.hub.add(client)
	obslog.L().Info("conn_open",
		zap.String("conn_id", client.ID),
		zap.String("remote", r.RemoteAddr))

	ctx := r.Context()
	go client.writePump(ctx)

	defer func() {
		h.hub.remove(client.ID)
		client.close()
		h.coord.Disconnect(client.ID)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		obslog.L().Info("conn_close", zap.String("conn_id", client.ID))
	}()

	for {
		var cmd protocol.Command
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return
		}
		h.coord.Dispatch(ctx, client.ID, cmd)
	}
}

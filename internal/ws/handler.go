package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/hub"
	"github.com/DoyleJ11/oxo-escrow/internal/table"
	"github.com/DoyleJ11/oxo-escrow/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errUnknownType = errors.New("unknown type")

func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}

		tb, err := h.Get(r.Context(), id)
		if err != nil {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		if tb == nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan table.Snapshot, 8)
		clientID := uuid.NewString()
		log := logger.With(zap.String("game", id), zap.String("client", clientID))

		select {
		case tb.Inbox() <- table.Join{ClientID: clientID, Outbox: out}:
		case <-tb.Done():
			return
		case <-r.Context().Done():
			return
		}
		defer func() {
			select {
			case tb.Inbox() <- table.Leave{ClientID: clientID}:
			case <-tb.Done():
			}
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			// No more snapshots will come once this returns, so end the connection.
			defer conn.Close(websocket.StatusGoingAway, "stream closed")
			for {
				select {
				case snap, ok := <-out:
					if !ok {
						return
					}
					view := types.NewGameView(snap.ID, snap.Version, snap.State)
					send(writeCtx, conn, types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &view})
				case <-tb.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("websocket read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				send(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}

			if err := dispatch(r.Context(), tb, cm); err != nil {
				send(r.Context(), conn, types.ServerMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

// dispatch applies one client command. Successful commands are reported
// through the snapshot stream, so only errors come back here.
func dispatch(ctx context.Context, tb *table.Table, m types.ClientMessage) error {
	switch m.Type {
	case "Accept":
		return tb.Accept(ctx, engine.Player(m.Player), m.Value)
	case "Move":
		return tb.Move(ctx, engine.Player(m.Player), m.Row, m.Col)
	default:
		return errUnknownType
	}
}

func send(parent context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/oxo-escrow/internal/hub"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"github.com/DoyleJ11/oxo-escrow/internal/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readMsg(t *testing.T, ctx context.Context, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMsg(t *testing.T, ctx context.Context, conn *websocket.Conn, m types.ClientMessage) {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func TestHandler_StreamsSnapshotsAndErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bank := ledger.NewMemory()
	require.NoError(t, bank.Credit(ctx, "alice", 10))
	require.NoError(t, bank.Credit(ctx, "bob", 10))

	h := hub.NewHub(ctx, hub.Options{Bank: bank})
	_, err := h.Create(ctx, "ZED123", "alice", 5)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(h, zap.NewNop()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?id=ZED123"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readMsg(t, ctx, conn)
	require.Equal(t, "StateSnapshot", first.Type)
	require.NotNil(t, first.State)
	require.Equal(t, "awaiting_opponent", string(first.State.Phase))

	writeMsg(t, ctx, conn, types.ClientMessage{Type: "Move", Player: "alice", Row: 0, Col: 0})
	rejected := readMsg(t, ctx, conn)
	require.Equal(t, "Error", rejected.Type)
	require.Contains(t, rejected.Error, "invalid phase")

	writeMsg(t, ctx, conn, types.ClientMessage{Type: "Accept", Player: "bob", Value: 5})
	accepted := readMsg(t, ctx, conn)
	require.Equal(t, "StateSnapshot", accepted.Type)
	require.Equal(t, 1, accepted.Version)
	require.Equal(t, uint64(10), accepted.State.Pot)
	require.Equal(t, "alice", accepted.State.Turn)

	writeMsg(t, ctx, conn, types.ClientMessage{Type: "Resign", Player: "alice"})
	unknown := readMsg(t, ctx, conn)
	require.Equal(t, "Error", unknown.Type)
}

func TestHandler_UnknownGame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := hub.NewHub(ctx, hub.Options{Bank: ledger.NewMemory()})

	rec := httptest.NewRecorder()
	Handler(h, zap.NewNop())(rec, httptest.NewRequest("GET", "/ws?id=NOPE", nil))
	require.Equal(t, 404, rec.Code)

	rec = httptest.NewRecorder()
	Handler(h, zap.NewNop())(rec, httptest.NewRequest("GET", "/ws", nil))
	require.Equal(t, 400, rec.Code)
}

func TestHandler_HubClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := hub.NewHub(ctx, hub.Options{Bank: ledger.NewMemory()})
	require.NoError(t, h.Shutdown(ctx))

	rec := httptest.NewRecorder()
	Handler(h, zap.NewNop())(rec, httptest.NewRequest("GET", "/ws?id=ZED123", nil))
	require.Equal(t, 503, rec.Code)
}

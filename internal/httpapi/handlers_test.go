package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/escrow"
	"github.com/DoyleJ11/oxo-escrow/internal/hub"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"github.com/DoyleJ11/oxo-escrow/internal/types"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	hub    *hub.Hub
	server http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bank := ledger.NewMemory()
	h := hub.NewHub(ctx, hub.Options{Bank: bank})
	return &harness{t: t, hub: h, server: SetupRoutes(h, bank, nil)}
}

func (hs *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	hs.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(hs.t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	hs.server.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func (hs *harness) view(rec *httptest.ResponseRecorder) types.GameView {
	hs.t.Helper()
	var v types.GameView
	require.NoError(hs.t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (hs *harness) errCode(rec *httptest.ResponseRecorder) string {
	hs.t.Helper()
	var e errorResponse
	require.NoError(hs.t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Code
}

func (hs *harness) balance(account string) uint64 {
	hs.t.Helper()
	rec := hs.do(http.MethodGet, "/accounts/"+account, nil)
	require.Equal(hs.t, http.StatusOK, rec.Code)
	var a accountResponse
	require.NoError(hs.t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a.Balance
}

func (hs *harness) move(id, player string, row, col int) *httptest.ResponseRecorder {
	hs.t.Helper()
	return hs.do(http.MethodPost, fmt.Sprintf("/games/%s/moves", id),
		map[string]any{"player": player, "row": row, "col": col})
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	require.Len(t, code, 6)
}

func TestHealthz(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/healthz", nil).Code)
}

func TestFullGameOverHTTP(t *testing.T) {
	hs := newHarness(t)

	require.Equal(t, http.StatusOK, hs.do(http.MethodPost, "/accounts/alice/deposit", depositRequest{Amount: 20}).Code)
	require.Equal(t, http.StatusOK, hs.do(http.MethodPost, "/accounts/bob/deposit", depositRequest{Amount: 20}).Code)

	rec := hs.do(http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := hs.view(rec)
	id := created.ID
	require.Len(t, id, 6)
	require.Equal(t, uint64(5), created.Pot)
	require.Equal(t, uint64(15), hs.balance("alice"))

	rec = hs.do(http.MethodPost, "/games/"+id+"/accept", acceptRequest{Player: "alice", Value: 5})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Unauthorized", hs.errCode(rec))

	rec = hs.do(http.MethodPost, "/games/"+id+"/accept", acceptRequest{Player: "bob", Value: 4})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "WrongStake", hs.errCode(rec))

	rec = hs.do(http.MethodPost, "/games/"+id+"/accept", acceptRequest{Player: "bob", Value: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := hs.view(rec)
	require.Equal(t, uint64(10), accepted.Pot)
	require.Equal(t, engine.PhaseInProgress, accepted.Phase)

	rec = hs.move(id, "alice", 3, 0)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "OutOfBounds", hs.errCode(rec))

	rec = hs.move(id, "bob", 0, 0)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "OutOfTurn", hs.errCode(rec))

	require.Equal(t, http.StatusOK, hs.move(id, "alice", 0, 0).Code)

	rec = hs.move(id, "bob", 0, 0)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "CellOccupied", hs.errCode(rec))

	require.Equal(t, http.StatusOK, hs.move(id, "bob", 1, 0).Code)
	require.Equal(t, http.StatusOK, hs.move(id, "alice", 0, 1).Code)
	require.Equal(t, http.StatusOK, hs.move(id, "bob", 2, 0).Code)

	rec = hs.move(id, "alice", 0, 2)
	require.Equal(t, http.StatusOK, rec.Code)
	final := hs.view(rec)
	require.Equal(t, engine.PhaseFinished, final.Phase)
	require.Equal(t, engine.ResultCreatorWon, final.Result)
	require.Zero(t, final.Pot)
	require.Equal(t, []string{"X", "X", "X"}, final.Board[0])
	require.Equal(t, uint64(25), hs.balance("alice"))

	rec = hs.move(id, "bob", 2, 2)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "GameOver", hs.errCode(rec))

	rec = hs.do(http.MethodGet, "/games/"+id+"/winner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"winner":0}`, rec.Body.String())

	rec = hs.do(http.MethodGet, "/games", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, fmt.Sprintf(`{"games":[%q]}`, id), rec.Body.String())

	rec = hs.do(http.MethodDelete, "/games/"+id, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, http.StatusNotFound, hs.do(http.MethodGet, "/games/"+id, nil).Code)
}

func TestRemoveGame_RefusesHeldPot(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.do(http.MethodPost, "/accounts/alice/deposit", depositRequest{Amount: 5}).Code)
	id := hs.view(hs.do(http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 5})).ID

	rec := hs.do(http.MethodDelete, "/games/"+id, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "PotHeld", hs.errCode(rec))
	require.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/games/"+id, nil).Code)
}

func TestRoutes_UnavailableAfterHubShutdown(t *testing.T) {
	hs := newHarness(t)
	require.Equal(t, http.StatusOK, hs.do(http.MethodPost, "/accounts/alice/deposit", depositRequest{Amount: 5}).Code)
	id := hs.view(hs.do(http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 5})).ID

	require.NoError(t, hs.hub.Shutdown(context.Background()))

	for _, req := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/games/" + id, nil},
		{http.MethodGet, "/games/ABC123", nil},
		{http.MethodGet, "/games", nil},
		{http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 5}},
	} {
		codes := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			var buf bytes.Buffer
			if req.body != nil {
				_ = json.NewEncoder(&buf).Encode(req.body)
			}
			rec := httptest.NewRecorder()
			hs.server.ServeHTTP(rec, httptest.NewRequest(req.method, req.path, &buf))
			codes <- rec
		}()

		select {
		case rec := <-codes:
			require.Equal(t, http.StatusServiceUnavailable, rec.Code, req.method+" "+req.path)
			require.Equal(t, "Unavailable", hs.errCode(rec))
		case <-time.After(time.Second):
			t.Fatalf("%s %s blocked after hub shutdown", req.method, req.path)
		}
	}
}

func TestCreateGame_Errors(t *testing.T) {
	hs := newHarness(t)

	rec := hs.do(http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 5})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.Equal(t, "InsufficientFunds", hs.errCode(rec))

	rec = hs.do(http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "InvalidStake", hs.errCode(rec))

	rec = hs.do(http.MethodPost, "/games", map[string]any{"player": "alice", "bet": 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BadRequest", hs.errCode(rec))
}

func TestGameRoutes_NotFoundAndMissingCoordinates(t *testing.T) {
	hs := newHarness(t)

	rec := hs.do(http.MethodGet, "/games/NOPE00", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, hs.do(http.MethodPost, "/accounts/alice/deposit", depositRequest{Amount: 5}).Code)
	id := hs.view(hs.do(http.MethodPost, "/games", createGameRequest{Player: "alice", Stake: 5})).ID

	rec = hs.do(http.MethodPost, "/games/"+id+"/moves", map[string]any{"player": "alice", "row": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(http.MethodGet, "/games/"+id+"/winner", nil)
	require.JSONEq(t, `{"winner":3}`, rec.Body.String())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{engine.ErrGameOver, http.StatusConflict, "GameOver"},
		{fmt.Errorf("%w: %w", escrow.ErrIntakeFailed, ledger.ErrInsufficientFunds), http.StatusPaymentRequired, "InsufficientFunds"},
		{fmt.Errorf("%w: %w", escrow.ErrPayoutFailed, errors.New("down")), http.StatusBadGateway, "PayoutFailed"},
		{hub.ErrHubClosed, http.StatusServiceUnavailable, "Unavailable"},
		{hub.ErrGameHasPot, http.StatusConflict, "PotHeld"},
		{errors.New("boom"), http.StatusInternalServerError, "Internal"},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.Equal(t, tc.code, code, tc.err.Error())
	}
}

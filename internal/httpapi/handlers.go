package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/DoyleJ11/oxo-escrow/internal/engine"
	"github.com/DoyleJ11/oxo-escrow/internal/escrow"
	"github.com/DoyleJ11/oxo-escrow/internal/hub"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"github.com/DoyleJ11/oxo-escrow/internal/table"
	"github.com/DoyleJ11/oxo-escrow/internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxCodeAttempts bounds the retry loop on id collisions.
const maxCodeAttempts = 8

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type createGameRequest struct {
	Player string `json:"player"`
	Stake  uint64 `json:"stake"`
}

type acceptRequest struct {
	Player string `json:"player"`
	Value  uint64 `json:"value"`
}

type moveRequest struct {
	Player string `json:"player"`
	Row    *int   `json:"row"`
	Col    *int   `json:"col"`
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type accountResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func CreateGame(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if !decode(w, r, &req) {
			return
		}

		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := GenerateCode()
			if err != nil {
				writeError(w, err)
				return
			}

			tb, err := h.Create(r.Context(), code, engine.Player(req.Player), req.Stake)
			if errors.Is(err, hub.ErrGameExists) {
				logger.Debug("collision on code, regenerating", zap.String("code", code))
				continue
			}
			if err != nil {
				writeError(w, err)
				return
			}

			writeView(w, r, tb, http.StatusCreated)
			return
		}
		writeError(w, hub.ErrGameExists)
	}
}

func ListGames(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Games []string `json:"games"`
		}{Games: ids})
	}
}

func GetGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tb, ok := lookup(w, r, h)
		if !ok {
			return
		}
		writeView(w, r, tb, http.StatusOK)
	}
}

// Winner serves the legacy numeric winner: 0 creator, 1 opponent, 3 none.
func Winner(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tb, ok := lookup(w, r, h)
		if !ok {
			return
		}
		v, err := tb.View(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Winner int `json:"winner"`
		}{Winner: v.State.WinnerIndex()})
	}
}

func AcceptGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tb, ok := lookup(w, r, h)
		if !ok {
			return
		}
		var req acceptRequest
		if !decode(w, r, &req) {
			return
		}
		if err := tb.Accept(r.Context(), engine.Player(req.Player), req.Value); err != nil {
			writeError(w, err)
			return
		}
		writeView(w, r, tb, http.StatusOK)
	}
}

func PlayMove(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tb, ok := lookup(w, r, h)
		if !ok {
			return
		}
		var req moveRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Row == nil || req.Col == nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BadRequest", Error: "row and col are required"})
			return
		}
		if err := tb.Move(r.Context(), engine.Player(req.Player), *req.Row, *req.Col); err != nil {
			writeError(w, err)
			return
		}
		writeView(w, r, tb, http.StatusOK)
	}
}

// RemoveGame drops a game from the hub. Only games with an empty pot can go.
func RemoveGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tb, ok := lookup(w, r, h)
		if !ok {
			return
		}
		if err := h.Remove(r.Context(), tb.ID()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Deposit(l ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := chi.URLParam(r, "account")
		var req depositRequest
		if !decode(w, r, &req) {
			return
		}
		if err := l.Credit(r.Context(), account, req.Amount); err != nil {
			writeError(w, err)
			return
		}
		writeBalance(w, r, l, account)
	}
}

func Balance(l ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeBalance(w, r, l, chi.URLParam(r, "account"))
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func lookup(w http.ResponseWriter, r *http.Request, h *hub.Hub) (*table.Table, bool) {
	tb, err := h.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if tb == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "NotFound", Error: "game not found"})
		return nil, false
	}
	return tb, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BadRequest", Error: "bad json"})
		return false
	}
	return true
}

func writeView(w http.ResponseWriter, r *http.Request, tb *table.Table, status int) {
	v, err := tb.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	gv := types.NewGameView(v.ID, v.Version, v.State)
	gv.Events = types.NewEventViews(v.Events)
	writeJSON(w, status, gv)
}

func writeBalance(w http.ResponseWriter, r *http.Request, l ledger.Ledger, account string) {
	bal, err := l.Balance(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Account: account, Balance: bal})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

// classify maps domain errors to an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrInvalidStake):
		return http.StatusBadRequest, "InvalidStake"
	case errors.Is(err, engine.ErrWrongStake):
		return http.StatusBadRequest, "WrongStake"
	case errors.Is(err, engine.ErrOutOfBounds):
		return http.StatusBadRequest, "OutOfBounds"
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden, "Unauthorized"
	case errors.Is(err, engine.ErrInvalidPhase):
		return http.StatusConflict, "InvalidPhase"
	case errors.Is(err, engine.ErrOutOfTurn):
		return http.StatusConflict, "OutOfTurn"
	case errors.Is(err, engine.ErrCellOccupied):
		return http.StatusConflict, "CellOccupied"
	case errors.Is(err, engine.ErrGameOver):
		return http.StatusConflict, "GameOver"
	case errors.Is(err, hub.ErrGameExists):
		return http.StatusConflict, "GameExists"
	case errors.Is(err, hub.ErrGameHasPot):
		return http.StatusConflict, "PotHeld"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "InsufficientFunds"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "InvalidAmount"
	case errors.Is(err, ledger.ErrInvalidAccount):
		return http.StatusBadRequest, "InvalidAccount"
	case errors.Is(err, escrow.ErrPayoutFailed):
		return http.StatusBadGateway, "PayoutFailed"
	case errors.Is(err, escrow.ErrIntakeFailed):
		return http.StatusBadGateway, "IntakeFailed"
	case errors.Is(err, table.ErrTableClosed):
		return http.StatusServiceUnavailable, "TableClosed"
	case errors.Is(err, hub.ErrHubClosed):
		return http.StatusServiceUnavailable, "Unavailable"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

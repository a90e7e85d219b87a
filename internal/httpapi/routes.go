package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/oxo-escrow/internal/hub"
	"github.com/DoyleJ11/oxo-escrow/internal/ledger"
	"github.com/DoyleJ11/oxo-escrow/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, l ledger.Ledger, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, logger))

	r.Route("/games", func(r chi.Router) {
		r.Post("/", CreateGame(h, logger))
		r.Get("/", ListGames(h))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", GetGame(h))
			r.Delete("/", RemoveGame(h))
			r.Get("/winner", Winner(h))
			r.Post("/accept", AcceptGame(h))
			r.Post("/moves", PlayMove(h))
		})
	})

	r.Route("/accounts/{account}", func(r chi.Router) {
		r.Get("/", Balance(l))
		r.Post("/deposit", Deposit(l))
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

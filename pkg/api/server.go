package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

// NewServer mounts the trading surface. streamHandler, when non-nil,
// serves the websocket event feed; devFaucet mounts the mint endpoints
// for running against the in-memory asset ledgers.
func NewServer(handler *Handler, streamHandler http.HandlerFunc, devFaucet bool) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/approvals", func(r chi.Router) {
		r.Post("/credit", handler.ApproveGreenCredit)
		r.Post("/stablecoin", handler.ApproveStablecoin)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.PlaceOrder)
		r.Get("/{orderID}", handler.GetOrder)
		r.Get("/{orderID}/active", handler.IsOrderActive)
		r.Post("/{orderID}/fills", handler.FillOrder)
		r.Delete("/{orderID}", handler.CancelOrder)
	})

	r.Get("/book", handler.GetBook)
	r.Get("/history", handler.GetHistory)
	r.Get("/next-order-id", handler.NextOrderID)

	if streamHandler != nil {
		r.Get("/ws", streamHandler)
	}

	if devFaucet {
		r.Route("/faucet", func(r chi.Router) {
			r.Post("/stablecoin", handler.MintStablecoin)
			r.Post("/credit", handler.MintCredit)
		})
	}

	return &Server{Router: r}
}

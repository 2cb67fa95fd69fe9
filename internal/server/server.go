package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"paisapro/cartworker/logger"
	pkgerr "paisapro/cartworker/pkg/errors"
)

// Server is the HTTP surface over the comparison, cart, and scheduler
// services.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// New builds the server with all routes registered.
func New(addr string, h *Handlers) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/compare", h.Compare)
	mux.HandleFunc("GET /api/sources", h.Sources)

	mux.HandleFunc("POST /api/cart", h.CreateList)
	mux.HandleFunc("GET /api/user/{id}/lists", h.UserLists)
	mux.HandleFunc("POST /api/cart/{id}/items", h.AddItem)
	mux.HandleFunc("GET /api/cart/{id}/optimized", h.OptimizedCart)
	mux.HandleFunc("DELETE /api/cart/{id}", h.DeleteList)

	mux.HandleFunc("PUT /api/items/{id}", h.UpdateItemQuantity)
	mux.HandleFunc("DELETE /api/items/{id}", h.DeleteItem)
	mux.HandleFunc("POST /api/items/{id}/purchased", h.MarkPurchased)

	mux.HandleFunc("GET /api/price-history/{product}", h.PriceHistory)

	mux.HandleFunc("GET /api/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /api/scheduler/refresh-now", h.RefreshNow)
	mux.HandleFunc("POST /api/scheduler/refresh-list/{id}", h.RefreshList)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.ForCart().WithField("component", "server"),
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// envelope is the uniform response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// writeError maps the error taxonomy to HTTP status codes: not found to
// 404, validation and duplicates to 400, everything else to 500.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case pkgerr.IsNotFound(err):
		status = http.StatusNotFound
	case pkgerr.IsDuplicate(err), pkgerr.IsType(err, pkgerr.ErrorTypeValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
}

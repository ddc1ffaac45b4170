// Package api exposes the order intake REST surface and the WebSocket
// subscription gateway.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/meridian-labs/swapd/pkg/order"
	"github.com/meridian-labs/swapd/pkg/pubsub"
	"github.com/meridian-labs/swapd/pkg/queue"
	"github.com/meridian-labs/swapd/pkg/storage"
)

// Server handles REST and WebSocket connections.
type Server struct {
	store          storage.OrderStore
	queue          *queue.Queue
	subscriber     pubsub.Subscriber
	router         *mux.Router
	allowedOrigins []string
	log            *zap.SugaredLogger
}

// NewServer wires the API against its injected collaborators.
func NewServer(store storage.OrderStore, q *queue.Queue, sub pubsub.Subscriber, allowedOrigins []string, log *zap.SugaredLogger) *Server {
	s := &Server{
		store:          store,
		queue:          q,
		subscriber:     sub,
		router:         mux.NewRouter(),
		allowedOrigins: allowedOrigins,
		log:            log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Order intake and inspection
	api.HandleFunc("/orders/execute", s.handleExecuteOrder).Methods("POST")

	// WebSocket endpoint for live order updates; registered before the
	// {id} route so the literal path is matched first.
	api.HandleFunc("/orders/ws", s.handleOrderSocket)

	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the full HTTP handler, CORS included.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// ==============================
// REST Handlers
// ==============================

// handleExecuteOrder validates the request, creates the PENDING record, and
// enqueues exactly one job for it. Validation failures never touch the store.
func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	var req ExecuteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.InputToken == "" || req.OutputToken == "" {
		respondError(w, http.StatusBadRequest, "missing required fields", "inputToken and outputToken are required")
		return
	}
	if req.InputToken == req.OutputToken {
		respondError(w, http.StatusBadRequest, "invalid pair", "inputToken and outputToken must differ")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid amount", "amount must be positive")
		return
	}

	o := order.New(req.InputToken, req.OutputToken, req.Amount)
	if err := s.store.Create(r.Context(), o); err != nil {
		s.log.Errorw("order create failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to create order", "")
		return
	}

	err := s.queue.Enqueue(r.Context(), queue.Job{
		OrderID:     o.ID,
		InputToken:  o.InputToken,
		OutputToken: o.OutputToken,
		Amount:      o.Amount,
	})
	if errors.Is(err, queue.ErrDuplicateJob) {
		respondError(w, http.StatusConflict, "order already queued", "")
		return
	}
	if err != nil {
		s.log.Errorw("order enqueue failed", "order_id", o.ID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to enqueue order", "")
		return
	}

	s.log.Infow("order accepted",
		"order_id", o.ID, "pair", o.InputToken+"/"+o.OutputToken, "amount", o.Amount)
	respondJSON(w, ExecuteOrderResponse{OrderID: o.ID, Status: o.Status})
}

// handleGetOrder returns the full durable record, logs included. This is the
// authoritative, inspectable account of what happened to an order.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		s.log.Errorw("order read failed", "order_id", id, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to read order", "")
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-booking/internal/dispatch"
	"github.com/example/ride-booking/internal/geo"
	"github.com/example/ride-booking/internal/matcher"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
	"github.com/example/ride-booking/internal/storage"
)

// PaymentGateway is the payment provider behind the create-intent and pay endpoints.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req models.IntentRequest) (models.IntentResponse, error)
	Pay(ctx context.Context, req models.PayRequest) (models.PayResponse, error)
}

type Publisher interface {
	PublishLocation(ctx context.Context, d models.Driver) error
	PublishRideBooked(ctx context.Context, ev models.RideBooked) error
}

type Notifier interface {
	RideBooked(ctx context.Context, ev models.RideBooked) error
}

// Deps are the collaborators a Server is built from. Payments, Publisher,
// Notifier and Idempotency are optional.
type Deps struct {
	Logger      *slog.Logger
	Drivers     geo.Directory
	Quotes      *matcher.Service
	Rides       storage.RideStore
	Payments    PaymentGateway
	Publisher   Publisher
	Notifier    Notifier
	WSReg       *dispatch.WSRegistry
	Idempotency IdempotencyStore
}

type Server struct {
	Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.WSReg == nil {
		d.WSReg = dispatch.NewWSRegistry()
	}
	if d.Idempotency == nil {
		d.Idempotency = NewMemoryIdempotency()
	}
	s := &Server{Deps: d, logger: d.Logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers", s.handleListDrivers).Methods("GET")
	s.mux.HandleFunc("/api/v1/map/region", s.handleRegion).Methods("POST")
	s.mux.HandleFunc("/api/v1/map/quote", s.handleQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/stripe/create", s.handleCreateIntent).Methods("POST")
	s.mux.HandleFunc("/api/v1/stripe/pay", s.handlePay).Methods("POST")
	s.mux.Handle("/api/v1/rides", s.idempotent(http.HandlerFunc(s.handleCreateRide))).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/user/{user_id}", s.handleUserRides).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if d.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	d.Online = true
	if s.Publisher != nil {
		if err := s.Publisher.PublishLocation(r.Context(), d); err != nil {
			s.requestLog(r.Context()).Warn("publish location failed", "driver_id", d.ID, "error", err)
		}
	}
	if err := s.Drivers.Upsert(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store location")
		return
	}
	observability.DriversOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.Drivers.List(r.Context())
	if err != nil {
		s.requestLog(r.Context()).Error("list drivers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list drivers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": drivers})
}

type mapRequest struct {
	User        *models.Location `json:"user"`
	Destination *models.Location `json:"destination"`
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	region, err := geo.ComputeRegion(req.User, req.Destination)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, region)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := s.Quotes.Quote(r.Context(), req.User, req.Destination)
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.requestLog(r.Context()).Error("quote failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch drivers")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	if s.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}
	var req models.IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "email and a positive amount are required")
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}
	out, err := s.Payments.CreateIntent(r.Context(), req)
	if err != nil {
		observability.PaymentErrors.WithLabelValues("create_intent").Inc()
		s.requestLog(r.Context()).Error("create intent failed", "email", req.Email, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create payment intent")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	if s.Payments == nil {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}
	var req models.PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PaymentMethodID == "" || req.PaymentIntentID == "" || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "payment_method_id, payment_intent_id and customer_id are required")
		return
	}
	out, err := s.Payments.Pay(r.Context(), req)
	if err != nil {
		observability.PaymentErrors.WithLabelValues("pay").Inc()
		s.requestLog(r.Context()).Error("pay failed", "payment_intent", req.PaymentIntentID, "error", err)
		writeError(w, http.StatusPaymentRequired, "payment failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var ride models.Ride
	if err := json.NewDecoder(r.Body).Decode(&ride); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := ride.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ride.ID = uuid.NewString()
	ride.CreatedAt = time.Now().UTC()
	if err := s.Rides.CreateRide(r.Context(), &ride); err != nil {
		s.requestLog(r.Context()).Error("create ride failed", "driver_id", ride.DriverID, "user_id", ride.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create ride")
		return
	}
	observability.RidesCreated.Inc()

	// the ride exists; fan-out failures are logged, not returned
	ev := ride.BookedEvent()
	if s.Publisher != nil {
		if err := s.Publisher.PublishRideBooked(r.Context(), ev); err != nil {
			s.requestLog(r.Context()).Warn("publish ride booked failed", "ride_id", ride.ID, "error", err)
		}
	}
	if s.Notifier != nil {
		if err := s.Notifier.RideBooked(r.Context(), ev); err != nil && !errors.Is(err, dispatch.ErrNoSession) {
			s.requestLog(r.Context()).Warn("notify driver failed", "ride_id", ride.ID, "driver_id", ride.DriverID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.Rides.GetRide(r.Context(), mux.Vars(r)["ride_id"])
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to load ride")
	default:
		writeJSON(w, http.StatusOK, ride)
	}
}

func (s *Server) handleUserRides(w http.ResponseWriter, r *http.Request) {
	rides, err := s.Rides.ListRidesByUser(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.requestLog(r.Context()).Error("list rides failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rides")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": rides})
}

var upgrader = websocket.Upgrader{}

// handleWS keeps the driver session registered until the socket closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.WSReg.Add(id, conn)
	defer func() {
		s.WSReg.Remove(id, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newID() string { return uuid.NewString() }

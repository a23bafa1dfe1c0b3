package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/roomlife/pkg/auth"
	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/hub"
	"github.com/diagnosis/roomlife/services/rooms/internal/response"
	"github.com/diagnosis/roomlife/services/rooms/internal/service"
)

type contextKey string

const claimsKey contextKey = "claims"

// EventStream is the subscription side of the notification hub.
type EventStream interface {
	Subscribe(name string, l hub.Listener) (hub.Subscription, error)
	Unsubscribe(sub hub.Subscription)
}

type Handlers struct {
	lifecycle service.LifecycleService
	stream    EventStream
	jwtSecret string
}

func New(lifecycle service.LifecycleService, stream EventStream, jwtSecret string) *Handlers {
	return &Handlers{
		lifecycle: lifecycle,
		stream:    stream,
		jwtSecret: jwtSecret,
	}
}

// Routes builds the /v1 API. idempotency wraps booking creation; nil leaves it unwrapped.
func (h *Handlers) Routes(idempotency func(http.Handler) http.Handler) chi.Router {
	if idempotency == nil {
		idempotency = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()

	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", h.ListRooms)
		r.Get("/{id}", h.GetRoom)
		r.Get("/{id}/status", h.GetRoomStatus)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Use(h.RequireJWT(""))
		r.With(idempotency).Post("/", h.CreateBooking)
		r.Get("/", h.ListMyBookings)
		r.Get("/{id}", h.GetBooking)
		r.Post("/{id}/check-in", h.CheckIn)
		r.Post("/{id}/check-out", h.CheckOut)
		r.Post("/{id}/cancel", h.CancelBooking)
		r.Post("/{id}/extend", h.ExtendBooking)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleAdmin))
		r.Get("/bookings", h.ListAllBookings)
		r.Post("/rooms", h.AddRoom)
	})

	r.With(h.RequireJWT("")).Get("/events", h.StreamEvents)
	return r
}

// RequireJWT authenticates the caller from the Authorization header, or from the access_token
// query parameter for clients such as EventSource that cannot set headers. Admins pass every
// role check.
func (h *Handlers) RequireJWT(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			} else {
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}

			claims, err := auth.Parse(token, h.jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid token")
				return
			}
			if requiredRole != "" && claims.Role != requiredRole && !claims.IsAdmin() {
				response.Forbidden(w, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.UserID())
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

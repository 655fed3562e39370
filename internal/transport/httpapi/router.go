package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"patchtriage/internal/bootstrap/logging"
	domain "patchtriage/internal/domain/triage"
	"patchtriage/internal/ports"
	triageusecase "patchtriage/internal/usecase/triage"
)

const (
	// UserHeader carries the caller's user id. The identity provider in front
	// of the API is expected to set it.
	UserHeader      = "X-Triage-User"
	requestIDHeader = "X-Request-ID"
)

type callerKey struct{}

type handler struct {
	triage *triageusecase.Service
	users  ports.UserDirectory
}

// NewRouter builds the JSON API.
func NewRouter(svc *triageusecase.Service, users ports.UserDirectory) http.Handler {
	h := &handler{triage: svc, users: users}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/downloads/{token}", h.download)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/patches", h.listPatches)
		r.Get("/patches/next", h.nextPatch)
		r.Route("/patches/{id}", func(r chi.Router) {
			r.Get("/", h.showPatch)
			r.Post("/rate", h.rate)
			r.Post("/claim", h.claim)
			r.Delete("/claim", h.unclaim)
			r.Post("/download-token", h.downloadToken)

			r.With(h.requireAdmin).Post("/resolve", h.resolve)
			r.With(h.requireAdmin).Post("/unresolve", h.unresolve)
		})
		r.Get("/stats", h.stats)
		r.Get("/leaderboard", h.leaderboard)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/recount", h.recountAll)
			r.Post("/patches/{id}/toggle-active", h.toggleActive)
			r.Delete("/patches/{id}", h.deletePatch)
		})
	})

	return r
}

// requestContext tags the request context with a request id and logs one
// line per request.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := logging.WithAttrs(r.Context(), slog.String("component", "transport.httpapi"))
		ctx = logging.WithRequest(ctx, requestID, 0)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Info(
			ctx,
			"http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserHeader))
		userID, err := strconv.ParseUint(raw, 10, 64)
		if raw == "" || err != nil || userID == 0 {
			writeMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := h.users.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}
			writeError(r.Context(), w, err)
			return
		}

		ctx := logging.WithRequest(r.Context(), "", user.ID)
		ctx = context.WithValue(ctx, callerKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.triage.RequireAdmin(r.Context(), caller(r).ID); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func caller(r *http.Request) domain.User {
	user, _ := r.Context().Value(callerKey{}).(domain.User)
	return user
}

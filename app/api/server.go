// Package api provides the HTTP surface of the service: routing,
// authentication and mapping domain errors to response classes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-pkgz/rest"
	logger "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/savkin/prefeed/app/news"
	"github.com/savkin/prefeed/app/store"
	"github.com/savkin/prefeed/app/users"
	"github.com/savkin/prefeed/pkg/logx"
	"golang.org/x/exp/slog"
)

// Rest provides routes and handlers for the REST API.
type Rest struct {
	Logger  *slog.Logger
	Users   *users.Service
	News    *news.Service
	Version string
}

// Router returns the mux with all routes and middlewares attached.
func (s *Rest) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(
		rest.AppInfo("prefeed", "savkin", s.Version),
		rest.Ping,
		rest.RealIP,
		s.requestID,
		rest.Recoverer(logger.Func(func(format string, args ...interface{}) {
			s.Logger.Error(fmt.Sprintf(format, args...))
		})),
		rest.SizeLimit(64*1024),
		rest.Throttle(100),
	)

	router.Route("/users", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.auth)
			r.Get("/preferences", s.getPreferences)
			r.Put("/preferences", s.updatePreferences)
		})
	})

	router.Route("/news", func(r chi.Router) {
		r.Use(s.auth)

		r.Get("/", s.getFeed)
		r.Get("/read", s.getReadArticles)
		r.Get("/favorite", s.getFavoriteArticles)
		r.Post("/{id}/read", s.markRead)
		r.Post("/{id}/favorite", s.markFavorite)
		r.Get("/search/{keyword}", s.search)
	})

	return router
}

func (s *Rest) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(logx.ContextWithRequestID(r.Context(), reqID)))
	})
}

// auth requires a bearer token issued by the users service and puts its
// claims into the request context.
func (s *Rest) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			s.sendError(w, r, http.StatusUnauthorized, "ServerError",
				errors.New("auth token not found"))
			return
		}

		claims, err := s.Users.VerifyToken(token)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, users.ErrTokenExpired) {
				status = http.StatusUnauthorized
			}
			s.sendError(w, r, status, "ServerError", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
	})
}

func (s *Rest) sendJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.WarnCtx(r.Context(), "failed to write response", slog.Any("err", err))
	}
}

func (s *Rest) sendError(w http.ResponseWriter, r *http.Request, status int, name string, err error) {
	s.sendJSON(w, r, status, rest.JSON{
		"status":  "error",
		"error":   name,
		"message": err.Error(),
	})
}

// sendDomainError maps known domain errors to response classes;
// everything else is logged and surfaced generically.
func (s *Rest) sendDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, news.ErrFeedGone):
		s.sendError(w, r, http.StatusGone, "ServerError",
			errors.New("the resource once existed but has now been removed (expired)"))
	case errors.Is(err, news.ErrArticleNotFound):
		s.sendError(w, r, http.StatusNotFound, "ServerError",
			errors.New("article with the given id is not found"))
	case errors.Is(err, news.ErrUpstream):
		s.sendError(w, r, http.StatusInternalServerError, "ServerError",
			errors.New("something went wrong on our side, please try after sometime"))
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, r, http.StatusNotFound, "ServerError",
			errors.New("user does not exist, please signup and try again"))
	case errors.Is(err, store.ErrAlreadyExists):
		s.sendError(w, r, http.StatusConflict, "ServerError",
			errors.New("user with this email already exists"))
	case errors.Is(err, users.ErrBadCredentials):
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("bad login credentials, please try again"))
	default:
		s.Logger.ErrorCtx(r.Context(), "unexpected failure", slog.Any("err", err))
		s.sendError(w, r, http.StatusInternalServerError, "Unknown",
			errors.New("something went wrong"))
	}
}

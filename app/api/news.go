package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-pkgz/rest"
	"github.com/savkin/prefeed/app/news"
)

// articleIDLen is the length of assembled article and bucket ids.
const articleIDLen = 36

func (s *Rest) getFeed(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("auth token not found"))
		return
	}

	feed, err := s.News.Feed(r.Context(), claims.UserID)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success", "news": feed})
}

func (s *Rest) getReadArticles(w http.ResponseWriter, r *http.Request) {
	s.flagged(w, r, news.FlagRead)
}

func (s *Rest) getFavoriteArticles(w http.ResponseWriter, r *http.Request) {
	s.flagged(w, r, news.FlagFavorite)
}

func (s *Rest) flagged(w http.ResponseWriter, r *http.Request, flag news.StateFlag) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("auth token not found"))
		return
	}

	feed, err := s.News.Flagged(r.Context(), claims.UserID, flag)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success", "news": feed})
}

func (s *Rest) markRead(w http.ResponseWriter, r *http.Request) {
	s.mark(w, r, news.FlagRead)
}

func (s *Rest) markFavorite(w http.ResponseWriter, r *http.Request) {
	s.mark(w, r, news.FlagFavorite)
}

func (s *Rest) mark(w http.ResponseWriter, r *http.Request, flag news.StateFlag) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("auth token not found"))
		return
	}

	articleID := chi.URLParam(r, "id")
	if len(articleID) != articleIDLen {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("article id is not valid"))
		return
	}

	var err error
	switch flag {
	case news.FlagFavorite:
		err = s.News.MarkFavorite(r.Context(), claims.UserID, articleID)
	default:
		err = s.News.MarkRead(r.Context(), claims.UserID, articleID)
	}
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success"})
}

func (s *Rest) search(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("auth token not found"))
		return
	}

	keyword := strings.TrimSpace(chi.URLParam(r, "keyword"))
	if keyword == "" {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("keyword must not be empty"))
		return
	}

	feed, err := s.News.Search(r.Context(), claims.UserID, keyword)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success", "news": feed})
}

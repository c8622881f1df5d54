package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-pkgz/rest"
	"github.com/samber/lo"
)

type signupRequest struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Preferences []string `json:"preferences"`
}

func (req signupRequest) validate() error {
	if len(strings.TrimSpace(req.Name)) < 3 {
		return errors.New("name must be at least 3 characters long")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return errors.New("email is not valid")
	}
	if len(req.Password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	if lo.SomeBy(req.Preferences, func(topic string) bool {
		return strings.TrimSpace(topic) == ""
	}) {
		return errors.New("preferences must not contain empty topics")
	}
	return nil
}

func (s *Rest) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("malformed request body"))
		return
	}

	if err := req.validate(); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError", err)
		return
	}

	err := s.Users.Register(r.Context(), req.Name, req.Email, req.Password, req.Preferences)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Rest) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("malformed request body"))
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("email is not valid"))
		return
	}
	if req.Password == "" {
		s.sendError(w, r, http.StatusUnauthorized, "ValidationError",
			errors.New("password must not be empty"))
		return
	}

	token, err := s.Users.Login(r.Context(), req.Email, req.Password, r.Host)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success", "token": token})
}

func (s *Rest) getPreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("auth token not found"))
		return
	}

	topics, err := s.Users.Preferences(r.Context(), claims.UserID)
	if err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	if topics == nil {
		topics = []string{}
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success", "preferences": topics})
}

type preferencesRequest struct {
	Preferences []string `json:"preferences"`
}

func (s *Rest) updatePreferences(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		s.sendError(w, r, http.StatusUnauthorized, "ServerError",
			errors.New("auth token not found"))
		return
	}

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("malformed request body"))
		return
	}

	if lo.SomeBy(req.Preferences, func(topic string) bool {
		return strings.TrimSpace(topic) == ""
	}) {
		s.sendError(w, r, http.StatusBadRequest, "ValidationError",
			errors.New("preferences must not contain empty topics"))
		return
	}

	if err := s.Users.UpdatePreferences(r.Context(), claims.UserID, req.Preferences); err != nil {
		s.sendDomainError(w, r, err)
		return
	}

	s.sendJSON(w, r, http.StatusOK, rest.JSON{"status": "success"})
}

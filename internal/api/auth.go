package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/countrelay/internal/auth"
)

// tokenCookie carries the session JWT for browsers and viewer sockets.
const tokenCookie = "token"

// credentialsRequest is the body of register and login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is returned by register and login alongside the cookie.
type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
	User        *auth.User `json:"user"`
}

func decodeCredentials(r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Password = strings.TrimSpace(req.Password)
	return req, true
}

// handleRegister creates an account and starts a session for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	_, err := s.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidUsername):
		writeValidation(w, "username must be 1-64 letters, digits, '.', '_' or '-'")
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		writeValidation(w, "password is too short")
		return
	case errors.Is(err, auth.ErrUsernameExists):
		writeConflict(w, "username already taken")
		return
	case err != nil:
		s.logger.Error("registering user failed", "error", err)
		writeInternalError(w, "failed to register user")
		return
	}

	s.startSession(w, r, req, http.StatusCreated)
}

// handleLogin checks credentials and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.startSession(w, r, req, http.StatusOK)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, req credentialsRequest, status int) {
	token, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		clearSessionCookie(w)
		writeUnauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		writeInternalError(w, "failed to start session")
		return
	}

	ttl := s.auth.SessionTTL()
	setSessionCookie(w, token, ttl)
	s.logger.Info("session started", "user_id", user.ID)
	writeJSON(w, status, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl / time.Second),
		User:        user,
	})
}

// handleLogout clears the session cookie. Tokens are stateless, so an
// already issued token stays valid until it expires.
func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// meResponse describes the caller.
type meResponse struct {
	UserID         int64    `json:"user_id"`
	Username       string   `json:"username"`
	RFIDRegistered bool     `json:"rfid_registered"`
	Pins           []string `json:"pins"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	uid := userIDFromContext(r.Context())

	user, err := s.auth.User(r.Context(), uid)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeUnauthorized(w, "missing or invalid token")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load user")
		return
	}

	pins, err := s.owners.ListOwnedPins(r.Context(), uid)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:         user.ID,
		Username:       user.Username,
		RFIDRegistered: user.RFIDUID != "",
		Pins:           pins,
	})
}

type rfidRequest struct {
	RFIDUID string `json:"rfid_uid"`
}

// handleSetRFID stores the caller's badge UID. An empty value clears it.
func (s *Server) handleSetRFID(w http.ResponseWriter, r *http.Request) {
	var req rfidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	uid := userIDFromContext(r.Context())
	err := s.auth.RegisterRFID(r.Context(), uid, req.RFIDUID)
	switch {
	case errors.Is(err, auth.ErrInvalidRFID):
		writeValidation(w, "rfid_uid is too long")
		return
	case errors.Is(err, auth.ErrUserNotFound):
		writeUnauthorized(w, "missing or invalid token")
		return
	case err != nil:
		s.logger.Error("registering rfid failed", "user_id", uid, "error", err)
		writeInternalError(w, "failed to register badge")
		return
	}

	registered := auth.NormalizeRFID(req.RFIDUID) != ""
	s.logger.Info("badge updated", "user_id", uid, "registered", registered)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"rfid_registered": registered,
	})
}

func setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

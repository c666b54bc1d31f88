package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/countrelay/internal/device"
	"github.com/nerrad567/countrelay/internal/ownership"
)

const ctxKeyPin contextKey = "pin"

// ownedPinMiddleware answers 403 unless the caller owns {pin}.
func (s *Server) ownedPinMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pin := strings.TrimSpace(chi.URLParam(r, "pin"))
		owned, err := s.owners.IsOwned(r.Context(), userIDFromContext(r.Context()), pin)
		if err != nil {
			s.logger.Error("ownership check failed", "pin", pin, "error", err)
			writeInternalError(w, "failed to check ownership")
			return
		}
		if !owned {
			writeForbidden(w, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPin, pin)))
	})
}

func pinFromContext(ctx context.Context) string {
	pin, _ := ctx.Value(ctxKeyPin).(string) //nolint:errcheck // empty when unset
	return pin
}

// handleListDevices returns the caller's devices ordered by pin.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.owners.ListOwnedDevices(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

type linkRequest struct {
	Pin string `json:"pin"`
}

// handleLinkDevice makes the caller an owner of a pin, creating the
// device on first reference.
func (s *Server) handleLinkDevice(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	pin := strings.TrimSpace(req.Pin)
	if pin == "" {
		writeValidation(w, "pin required")
		return
	}

	uid := userIDFromContext(r.Context())
	created, err := s.owners.Link(r.Context(), uid, pin)
	if err != nil {
		s.logger.Error("linking device failed", "pin", pin, "user_id", uid, "error", err)
		writeInternalError(w, "failed to link device")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Info("device linked", "pin", pin, "user_id", uid)
	}
	writeJSON(w, status, map[string]any{"ok": true, "pin": pin, "created": created})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	pin := pinFromContext(r.Context())
	d, err := s.devices.Get(r.Context(), pin)
	if errors.Is(err, device.ErrDeviceNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		writeInternalError(w, "failed to load device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUnlinkDevice removes the caller's link. When no owner remains the
// device and its logs are purged and the device is told to reset.
func (s *Server) handleUnlinkDevice(w http.ResponseWriter, r *http.Request) {
	pin := pinFromContext(r.Context())
	uid := userIDFromContext(r.Context())

	purged, err := s.owners.Unlink(r.Context(), uid, pin)
	if errors.Is(err, ownership.ErrNotLinked) {
		writeNotFound(w, "device not linked")
		return
	}
	if err != nil {
		s.logger.Error("unlinking device failed", "pin", pin, "user_id", uid, "error", err)
		writeInternalError(w, "failed to unlink device")
		return
	}

	resetSent := false
	if purged && s.resetter != nil {
		if err := s.resetter.PublishReset(pin); err != nil {
			s.logger.Warn("device purged but reset not sent", "pin", pin, "error", err)
		} else {
			resetSent = true
		}
	}

	s.logger.Info("device unlinked", "pin", pin, "user_id", uid, "purged", purged)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "purged": purged, "reset_sent": resetSent})
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pin := pinFromContext(r.Context())
	mode, err := s.devices.SetMode(r.Context(), pin, req.Mode)
	if errors.Is(err, device.ErrInvalidMode) {
		writeValidation(w, "mode must be increment or decrement")
		return
	}
	if err != nil {
		s.logger.Error("setting mode failed", "pin", pin, "error", err)
		writeInternalError(w, "failed to set mode")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pin": pin, "mode": mode})
}

// handleLogs returns the pin's newest log entries. limit defaults to 50
// and is clamped to [1, 500].
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := device.DefaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeValidation(w, "limit must be an integer")
			return
		}
		limit = n
	}

	pin := pinFromContext(r.Context())
	logs, err := s.devices.Logs(r.Context(), pin, limit)
	if err != nil {
		s.logger.Error("reading logs failed", "pin", pin, "error", err)
		writeInternalError(w, "failed to read logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

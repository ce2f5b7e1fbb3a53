package session

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"blog-platform/internal/web"
)

type Handler struct {
	sessions *Manager
}

func NewHandler(sessions *Manager) *Handler {
	return &Handler{sessions: sessions}
}

// ListDevices handles GET /security/devices.
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := web.ReadRefreshToken(r)
	if !ok {
		web.Error(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	sessions, err := h.sessions.List(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			web.Error(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	web.JSON(w, http.StatusOK, sessions)
}

// RevokeDevice handles DELETE /security/devices/{deviceId}.
func (h *Handler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := web.ReadRefreshToken(r)
	if !ok {
		web.Error(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	deviceID := r.PathValue("deviceId")
	if _, err := uuid.Parse(deviceID); err != nil {
		web.Error(w, http.StatusBadRequest, "device id is not a valid uuid")
		return
	}

	err := h.sessions.RevokeDevice(r.Context(), refreshToken, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRefreshToken):
			web.Error(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, ErrForbidden):
			web.Error(w, http.StatusForbidden, "device belongs to another user")
		case errors.Is(err, ErrNotFound):
			web.Error(w, http.StatusNotFound, "device not found")
		default:
			sentry.CaptureException(err)
			web.Error(w, http.StatusInternalServerError, "failed to revoke device")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeOtherDevices handles DELETE /security/devices.
func (h *Handler) RevokeOtherDevices(w http.ResponseWriter, r *http.Request) {
	refreshToken, ok := web.ReadRefreshToken(r)
	if !ok {
		web.Error(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	if err := h.sessions.RevokeOthers(r.Context(), refreshToken); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			web.Error(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		web.Error(w, http.StatusInternalServerError, "failed to revoke devices")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

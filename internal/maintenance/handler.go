package maintenance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"blog-platform/internal/web"
)

// SessionSweeper deletes sessions past their absolute expiry.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, batchSize int) (int64, error)
}

// RequestSweeper deletes rate-limit request records older than the cutoff.
type RequestSweeper interface {
	DeleteBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CleanupHandler serves the cron-triggered sweep of expired sessions and aged
// rate-limit rows. Guarded by a shared secret; without one configured the
// endpoint pretends not to exist.
type CleanupHandler struct {
	sessions         SessionSweeper
	requests         RequestSweeper
	logger           *zap.Logger
	cronSecret       string
	requestRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	sessions SessionSweeper,
	requests RequestSweeper,
	logger *zap.Logger,
	cronSecret string,
	requestRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	if requestRetention <= 0 {
		requestRetention = time.Hour
	}

	return &CleanupHandler{
		sessions:         sessions,
		requests:         requests,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		requestRetention: requestRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		web.Error(w, http.StatusNotFound, "not found")
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		web.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	deletedSessions, err := h.sessions.DeleteExpired(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("session_cleanup_failed", zap.Error(err))
		web.Error(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	cutoff := time.Now().UTC().Add(-h.requestRetention)
	deletedRequests, err := h.requests.DeleteBefore(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("request_cleanup_failed", zap.Error(err))
		web.Error(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("cleanup_completed",
		zap.Int64("deleted_sessions", deletedSessions),
		zap.Int64("deleted_requests", deletedRequests),
	)

	web.JSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"deleted_sessions": deletedSessions,
		"deleted_requests": deletedRequests,
	})
}

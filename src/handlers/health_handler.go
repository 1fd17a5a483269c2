package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/username/ledgerdesk/backend/src/logger"
	"github.com/username/ledgerdesk/backend/src/services"
	"github.com/username/ledgerdesk/backend/src/utils"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	store *services.SessionStore
}

func NewHealthHandler(db Pinger, store *services.SessionStore) *HealthHandler {
	return &HealthHandler{db: db, store: store}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok", "database": "ok"}
	if h.store != nil {
		status["sessions"] = h.store.Len()
	}
	code := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			logger.FromContext(r.Context()).Error("Health check: database ping failed", "error", err)
			status["status"] = "degraded"
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	utils.SendJSON(w, status, code)
}

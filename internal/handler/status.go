package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matricare/sync-client/internal/store"
	"github.com/matricare/sync-client/internal/syncer"
	"go.uber.org/zap"
)

// StatusHandler exposes app-wide state and the manual sync trigger
type StatusHandler struct {
	status   *store.StatusStore
	readings *store.ReadingStore
	patients *store.PatientCache
	syncer   *syncer.Manager
	logger   *zap.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(status *store.StatusStore, readings *store.ReadingStore, patients *store.PatientCache, syncer *syncer.Manager, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		status:   status,
		readings: readings,
		patients: patients,
		syncer:   syncer,
		logger:   logger,
	}
}

// GetStatus returns connectivity, sync state and the risk alert feed
func (h *StatusHandler) GetStatus(c *gin.Context) {
	syncStatus, syncMessage := h.status.SyncStatus()

	c.JSON(http.StatusOK, gin.H{
		"offline":           h.status.Offline(),
		"syncStatus":        syncStatus,
		"syncMessage":       syncMessage,
		"lastSyncAt":        h.status.LastSyncAt(),
		"selectedPatientId": h.status.SelectedPatient(),
		"alerts":            h.status.Alerts(),
		"unsyncedCount":     len(h.readings.Unsynced()),
	})
}

// PostSync runs a sync attempt now. A failed attempt reports the advisory
// status rather than a hard error; nothing is lost locally. A trigger while
// a sync is already running uploads nothing and says so.
func (h *StatusHandler) PostSync(c *gin.Context) {
	if err := h.syncer.Sync(c.Request.Context()); err != nil {
		if errors.Is(err, syncer.ErrSyncInFlight) {
			c.JSON(http.StatusConflict, gin.H{
				"synced":  false,
				"message": err.Error(),
			})
			return
		}
		_, message := h.status.SyncStatus()
		c.JSON(http.StatusBadGateway, gin.H{
			"synced":  false,
			"message": message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"synced":     true,
		"lastSyncAt": h.status.LastSyncAt(),
	})
}

// GetHealth implements the health check endpoint
func (h *StatusHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "matricare-sync-client",
		"offline":  h.status.Offline(),
		"readings": h.readings.Count(),
		"patients": h.patients.Count(),
	})
}

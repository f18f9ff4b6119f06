package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matricare/sync-client/internal/store"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// DefaultBatchSize is how many readings go into one upload call.
const DefaultBatchSize = 25

// RetryAdvisory is the user-facing message recorded when an upload fails.
const RetryAdvisory = "upload failed, will retry automatically"

// ErrSyncInFlight reports that a trigger was dropped because a sync was
// already running. Nothing was uploaded by the dropped call; the running
// sync re-reads the unsynced set after every batch, so its readings are
// still picked up.
var ErrSyncInFlight = errors.New("sync already in progress")

// Uploader is the remote reading collaborator consumed by the manager.
type Uploader interface {
	UploadReadings(ctx context.Context, readings []model.Reading) error
}

// Manager drains unsynced readings to the backend in fixed-size batches.
// At most one sync runs at a time; a call while one is in flight is a
// no-op returning ErrSyncInFlight. A failed batch aborts the whole
// attempt, leaving every not-yet-uploaded reading untouched for the next
// trigger.
type Manager struct {
	readings  *store.ReadingStore
	status    *store.StatusStore
	uploader  Uploader
	batchSize int
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewManager creates a sync manager. batchSize values below 1 fall back to
// the default.
func NewManager(readings *store.ReadingStore, status *store.StatusStore, uploader Uploader, batchSize int, logger *zap.Logger) *Manager {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Manager{
		readings:  readings,
		status:    status,
		uploader:  uploader,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sync uploads all unsynced readings in order. Batches are strictly
// sequential; after each successful batch the unsynced set is re-read so
// readings captured mid-sync are picked up in the same run. The zero-batch
// case still counts as a successful sync and stamps lastSyncAt.
func (m *Manager) Sync(ctx context.Context) error {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		m.logger.Debug("sync already in progress, ignoring trigger")
		return ErrSyncInFlight
	}
	m.inFlight = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	m.status.SetSyncStatus(model.SyncStatusSyncing, "")

	uploaded := 0
	pending := m.readings.Unsynced()
	for len(pending) > 0 {
		batch := pending
		if len(batch) > m.batchSize {
			batch = batch[:m.batchSize]
		}

		if err := m.uploader.UploadReadings(ctx, batch); err != nil {
			m.status.SetSyncStatus(model.SyncStatusError, RetryAdvisory)
			m.logger.Error("sync aborted on failed batch",
				zap.Error(err),
				zap.Int("batch_size", len(batch)),
				zap.Int("uploaded_before_failure", uploaded),
			)
			return fmt.Errorf("sync aborted: %w", err)
		}

		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		m.readings.MarkUploaded(ids, time.Now())
		uploaded += len(batch)

		// Re-read so local writes that arrived during the upload are
		// included in this run instead of waiting for the next trigger.
		pending = m.readings.Unsynced()
	}

	now := time.Now()
	m.status.SetSyncStatus(model.SyncStatusIdle, "")
	m.status.SetLastSyncAt(now)

	m.logger.Info("sync completed",
		zap.Int("uploaded", uploaded),
		zap.Time("last_sync_at", now),
	)
	return nil
}

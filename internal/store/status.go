package store

import (
	"sort"
	"sync"
	"time"

	"github.com/matricare/sync-client/internal/persist"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// maxAlerts caps the risk feed; older low-severity items fall off first.
const maxAlerts = 50

// StatusStore tracks app-wide state: connectivity, the sync state machine's
// observable status, the selected patient and the bounded risk-alert feed.
// The selected patient and last sync time are persisted in the app-state
// partition; everything else is session-scoped.
type StatusStore struct {
	mu                sync.Mutex
	offline           bool
	syncStatus        model.SyncStatus
	syncMessage       string
	lastSyncAt        *time.Time
	selectedPatientID string
	alerts            []model.RiskFeedItem
	partition         *persist.AppPartition
	logger            *zap.Logger
}

// NewStatusStore creates a status store in the idle, online state.
// partition may be nil for a memory-only session.
func NewStatusStore(partition *persist.AppPartition, logger *zap.Logger) *StatusStore {
	return &StatusStore{
		syncStatus: model.SyncStatusIdle,
		partition:  partition,
		logger:     logger,
	}
}

// Restore loads persisted app state. Intended for process start.
func (s *StatusStore) Restore(snap persist.AppSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedPatientID = snap.SelectedPatientID
	s.lastSyncAt = snap.LastSyncAt
}

// SetOffline records the connectivity flag and reports whether it changed.
func (s *StatusStore) SetOffline(offline bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline == offline {
		return false
	}
	s.offline = offline
	return true
}

// Offline reports the current connectivity flag.
func (s *StatusStore) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// SetSyncStatus records the sync state machine's observable status together
// with an advisory message for the display surfaces.
func (s *StatusStore) SetSyncStatus(status model.SyncStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncStatus = status
	s.syncMessage = message
}

// SyncStatus returns the current sync status and advisory message.
func (s *StatusStore) SyncStatus() (model.SyncStatus, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncStatus, s.syncMessage
}

// SetLastSyncAt stamps a successful sync and flushes the app partition.
func (s *StatusStore) SetLastSyncAt(t time.Time) {
	s.mu.Lock()
	s.lastSyncAt = &t
	snap := s.appSnapshotLocked()
	s.mu.Unlock()

	s.flush(snap)
}

// LastSyncAt returns the time of the last successful sync, if any.
func (s *StatusStore) LastSyncAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt
}

// SelectPatient records the patient the display surfaces are focused on and
// flushes the app partition.
func (s *StatusStore) SelectPatient(id string) {
	s.mu.Lock()
	s.selectedPatientID = id
	snap := s.appSnapshotLocked()
	s.mu.Unlock()

	s.flush(snap)
}

// SelectedPatient returns the currently selected patient id.
func (s *StatusStore) SelectedPatient() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedPatientID
}

// PushAlert inserts a risk feed item. The feed stays ordered by descending
// severity with recency breaking ties (new items are prepended before the
// stable sort) and is truncated to its cap on every insert.
func (s *StatusStore) PushAlert(item model.RiskFeedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append([]model.RiskFeedItem{item}, s.alerts...)
	sort.SliceStable(s.alerts, func(i, j int) bool {
		return s.alerts[i].Risk.Severity() > s.alerts[j].Risk.Severity()
	})
	if len(s.alerts) > maxAlerts {
		s.alerts = s.alerts[:maxAlerts]
	}
}

// Alerts returns a copy of the current feed.
func (s *StatusStore) Alerts() []model.RiskFeedItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.RiskFeedItem, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ClearAlerts empties the feed. Called when the live feed is disabled.
func (s *StatusStore) ClearAlerts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
}

func (s *StatusStore) appSnapshotLocked() persist.AppSnapshot {
	return persist.AppSnapshot{
		SelectedPatientID: s.selectedPatientID,
		LastSyncAt:        s.lastSyncAt,
	}
}

func (s *StatusStore) flush(snap persist.AppSnapshot) {
	if s.partition == nil {
		return
	}
	s.partition.Set(snap)
}

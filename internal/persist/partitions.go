package persist

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// Partition keys. The two partitions are persisted independently so a large
// reading history never delays an app-state flush.
const (
	healthDataKey = "health_data"
	appStateKey   = "app_state"
)

// Store is the durable keyed storage consumed by the partitions. *KV is the
// production implementation.
type Store interface {
	Save(key string, value []byte) error
	Load(key string) ([]byte, error)
}

// HealthSnapshot is the persisted shape of the health-data partition.
type HealthSnapshot struct {
	Readings []model.Reading                `json:"readings"`
	Patients map[string]model.PatientRecord `json:"patients"`
}

// AppSnapshot is the persisted shape of the app-state partition.
type AppSnapshot struct {
	SelectedPatientID string     `json:"selectedPatientId"`
	LastSyncAt        *time.Time `json:"lastSyncAt,omitempty"`
}

// HealthPartition persists readings and patients as one blob. The reading
// store and patient cache each push their own half after a mutation; the
// partition keeps the latest of both and flushes the combined snapshot.
// Flush failures are logged and swallowed: in-memory state stays
// authoritative for the session and the next successful flush catches up.
type HealthPartition struct {
	mu     sync.Mutex
	store  Store
	logger *zap.Logger
	snap   HealthSnapshot
}

// NewHealthPartition creates a health-data partition over store.
func NewHealthPartition(store Store, logger *zap.Logger) *HealthPartition {
	return &HealthPartition{
		store:  store,
		logger: logger,
	}
}

// Load restores the persisted snapshot, if any. The second return reports
// whether a snapshot existed.
func (p *HealthPartition) Load() (HealthSnapshot, bool) {
	raw, err := p.store.Load(healthDataKey)
	if err != nil {
		p.logger.Warn("failed to load health data partition, starting empty", zap.Error(err))
		return HealthSnapshot{}, false
	}
	if raw == nil {
		return HealthSnapshot{}, false
	}

	var snap HealthSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		p.logger.Warn("corrupt health data partition, starting empty", zap.Error(err))
		return HealthSnapshot{}, false
	}

	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()

	return snap, true
}

// SetReadings replaces the readings half of the snapshot and flushes.
func (p *HealthPartition) SetReadings(readings []model.Reading) {
	p.mu.Lock()
	p.snap.Readings = readings
	p.flushLocked()
	p.mu.Unlock()
}

// SetPatients replaces the patients half of the snapshot and flushes.
func (p *HealthPartition) SetPatients(patients map[string]model.PatientRecord) {
	p.mu.Lock()
	p.snap.Patients = patients
	p.flushLocked()
	p.mu.Unlock()
}

func (p *HealthPartition) flushLocked() {
	raw, err := json.Marshal(p.snap)
	if err != nil {
		p.logger.Warn("failed to encode health data partition", zap.Error(err))
		return
	}
	if err := p.store.Save(healthDataKey, raw); err != nil {
		p.logger.Warn("failed to flush health data partition, continuing in memory",
			zap.Error(err),
			zap.Int("readings", len(p.snap.Readings)),
			zap.Int("patients", len(p.snap.Patients)),
		)
	}
}

// AppPartition persists the small app-state blob (selected patient and last
// sync time). Same degrade-to-memory policy as the health partition.
type AppPartition struct {
	mu     sync.Mutex
	store  Store
	logger *zap.Logger
}

// NewAppPartition creates an app-state partition over store.
func NewAppPartition(store Store, logger *zap.Logger) *AppPartition {
	return &AppPartition{
		store:  store,
		logger: logger,
	}
}

// Load restores the persisted app state, if any.
func (p *AppPartition) Load() (AppSnapshot, bool) {
	raw, err := p.store.Load(appStateKey)
	if err != nil {
		p.logger.Warn("failed to load app state partition, starting empty", zap.Error(err))
		return AppSnapshot{}, false
	}
	if raw == nil {
		return AppSnapshot{}, false
	}

	var snap AppSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		p.logger.Warn("corrupt app state partition, starting empty", zap.Error(err))
		return AppSnapshot{}, false
	}
	return snap, true
}

// Set replaces and flushes the app state.
func (p *AppPartition) Set(snap AppSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		p.logger.Warn("failed to encode app state partition", zap.Error(err))
		return
	}
	if err := p.store.Save(appStateKey, raw); err != nil {
		p.logger.Warn("failed to flush app state partition, continuing in memory", zap.Error(err))
	}
}

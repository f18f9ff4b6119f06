package store

import (
	"sort"
	"sync"

	"github.com/matricare/sync-client/internal/persist"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// PatientCache holds the merged local view of patients. It is populated by
// remote list and detail fetches and by inference from arriving readings,
// and is what the display surfaces fall back to while offline.
type PatientCache struct {
	mu        sync.Mutex
	byID      map[string]model.PatientRecord
	partition *persist.HealthPartition
	logger    *zap.Logger
}

// NewPatientCache creates an empty cache. partition may be nil for a
// memory-only session.
func NewPatientCache(partition *persist.HealthPartition, logger *zap.Logger) *PatientCache {
	return &PatientCache{
		byID:      make(map[string]model.PatientRecord),
		partition: partition,
		logger:    logger,
	}
}

// Restore loads a persisted snapshot. Intended for process start.
func (c *PatientCache) Restore(patients map[string]model.PatientRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byID = make(map[string]model.PatientRecord, len(patients))
	for id, rec := range patients {
		c.byID[id] = rec
	}
}

// UpsertMany merges a batch of partial summaries. Empty input and entries
// without an id are no-ops, not errors.
func (c *PatientCache) UpsertMany(items []model.PatientPatch) {
	if len(items) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	merged := 0
	for i := range items {
		if items[i].ID == "" {
			continue
		}
		c.mergeLocked(&items[i])
		merged++
	}
	if merged > 0 {
		c.flushLocked()
	}
}

// UpsertDetail merges a single richer record. A detail without an id means
// "not yet loaded" and is a no-op.
func (c *PatientCache) UpsertDetail(detail model.PatientPatch) {
	if detail.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mergeLocked(&detail)
	c.flushLocked()
}

func (c *PatientCache) mergeLocked(patch *model.PatientPatch) {
	rec, ok := c.byID[patch.ID]
	if !ok {
		rec = model.NewPatientRecord(patch.ID)
	}
	patch.Apply(&rec)
	c.byID[patch.ID] = rec
}

// Get returns the cached record for id.
func (c *PatientCache) Get(id string) (model.PatientRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.byID[id]
	return rec, ok
}

// List returns all cached records sorted by name, id as tiebreak.
func (c *PatientCache) List() []model.PatientRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.PatientRecord, 0, len(c.byID))
	for _, rec := range c.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of cached patients.
func (c *PatientCache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

func (c *PatientCache) flushLocked() {
	if c.partition == nil {
		return
	}
	snapshot := make(map[string]model.PatientRecord, len(c.byID))
	for id, rec := range c.byID {
		snapshot[id] = rec
	}
	c.partition.SetPatients(snapshot)
}

package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matricare/sync-client/internal/persist"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// ReadingStore is the durable local buffer of vital-sign readings. Every
// reading lands here first regardless of connectivity; the sync manager
// drains the unsynced ones later. Mutations are serialized by a mutex and
// flushed to the health-data partition afterwards; a failed flush degrades
// to in-memory operation without surfacing an error.
type ReadingStore struct {
	mu        sync.Mutex
	order     []string // storage order, newest prepended
	byID      map[string]*model.Reading
	partition *persist.HealthPartition
	logger    *zap.Logger
}

// NewReadingStore creates an empty reading store. partition may be nil for a
// memory-only session.
func NewReadingStore(partition *persist.HealthPartition, logger *zap.Logger) *ReadingStore {
	return &ReadingStore{
		byID:      make(map[string]*model.Reading),
		partition: partition,
		logger:    logger,
	}
}

// Restore loads a persisted snapshot, preserving its storage order.
// Intended for process start, before any concurrent access.
func (s *ReadingStore) Restore(readings []model.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.byID = make(map[string]*model.Reading, len(readings))
	for i := range readings {
		r := readings[i]
		if _, ok := s.byID[r.ID]; ok {
			continue
		}
		s.order = append(s.order, r.ID)
		s.byID[r.ID] = &r
	}
}

// Add inserts a reading and returns its id. An explicit id wins over the
// reading's own; with neither, an id is derived from the patient, the
// capture time and a random salt. Inserting an id that is already present
// is a no-op returning the existing id.
func (s *ReadingStore) Add(r model.Reading, explicitID string) string {
	s.mu.Lock()

	id := explicitID
	if id == "" {
		id = r.ID
	}
	if id == "" {
		id = generateReadingID(&r)
	}

	if _, ok := s.byID[id]; ok {
		s.mu.Unlock()
		return id
	}

	r.ID = id
	s.order = append([]string{id}, s.order...)
	s.byID[id] = &r
	s.flushLocked()
	s.mu.Unlock()

	s.logger.Debug("reading stored",
		zap.String("reading_id", id),
		zap.String("patient_id", r.PatientID),
		zap.Bool("uploaded", r.Uploaded),
	)
	return id
}

// generateReadingID builds a best-effort stable id for a device-captured
// reading. The random salt keeps concurrent captures apart; exact duplicate
// suppression across restarts is probabilistic, not guaranteed.
func generateReadingID(r *model.Reading) string {
	captured, err := r.CapturedAt()
	if err != nil {
		captured = time.Now()
	}
	return fmt.Sprintf("%s-%d-%s", r.PatientID, captured.Unix(), uuid.NewString()[:8])
}

// MarkUploaded flips uploaded on every reading whose id is in ids and stamps
// syncedAt. Unknown ids are ignored without error.
func (s *ReadingStore) MarkUploaded(ids []string, syncedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, id := range ids {
		r, ok := s.byID[id]
		if !ok {
			continue
		}
		r.Uploaded = true
		t := syncedAt
		r.SyncedAt = &t
		changed++
	}

	if changed > 0 {
		s.flushLocked()
	}
}

// Readings returns all readings for a patient, sorted descending by capture
// time. Readings with unparseable timestamps sort last.
func (s *ReadingStore) Readings(patientID string) []model.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredLocked(patientID, nil)
}

// maxWindowDays caps the query window at a century. Larger values would
// overflow the duration math, wrapping the cutoff into nonsense.
const maxWindowDays = 36500

// ReadingsWithin returns readings for a patient captured within the last
// days*24h, sorted descending by capture time. days is clamped to the range
// [0, maxWindowDays]; readings with unparseable timestamps are excluded
// because they cannot be placed against the cutoff.
func (s *ReadingStore) ReadingsWithin(patientID string, days int) []model.Reading {
	if days < 0 {
		days = 0
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredLocked(patientID, &cutoff)
}

func (s *ReadingStore) filteredLocked(patientID string, cutoff *time.Time) []model.Reading {
	type keyed struct {
		reading model.Reading
		at      time.Time
	}

	var result []keyed
	for _, id := range s.order {
		r := s.byID[id]
		if r.PatientID != patientID {
			continue
		}
		at, err := r.CapturedAt()
		if cutoff != nil {
			if err != nil || at.Before(*cutoff) {
				continue
			}
		}
		result = append(result, keyed{reading: *r, at: at})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].at.After(result[j].at)
	})

	out := make([]model.Reading, len(result))
	for i, k := range result {
		out[i] = k.reading
	}
	return out
}

// Unsynced returns all readings not yet uploaded, in storage order.
func (s *ReadingStore) Unsynced() []model.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Reading
	for _, id := range s.order {
		if r := s.byID[id]; !r.Uploaded {
			out = append(out, *r)
		}
	}
	return out
}

// Count returns the number of stored readings.
func (s *ReadingStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *ReadingStore) flushLocked() {
	if s.partition == nil {
		return
	}
	snapshot := make([]model.Reading, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, *s.byID[id])
	}
	s.partition.SetReadings(snapshot)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matricare/sync-client/internal/remote"
	"github.com/matricare/sync-client/internal/store"
	"github.com/matricare/sync-client/internal/syncer"
	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// PatientAPI is the remote patient collaborator consumed by the service.
type PatientAPI interface {
	ListPatients(ctx context.Context) ([]model.PatientPatch, error)
	GetPatientDetail(ctx context.Context, id string) (*remote.PatientDetail, error)
}

// Syncer kicks a background sync after a device capture.
type Syncer interface {
	Sync(ctx context.Context) error
}

// PatientService orchestrates patient fetches and reading ingestion. Remote
// fetches merge into the cache on success; on failure the cached view is
// served instead, which is the show-cached-data-while-offline behavior.
type PatientService struct {
	api      PatientAPI
	patients *store.PatientCache
	readings *store.ReadingStore
	status   *store.StatusStore
	syncer   Syncer
	logger   *zap.Logger
}

// NewPatientService creates a new PatientService.
func NewPatientService(api PatientAPI, patients *store.PatientCache, readings *store.ReadingStore, status *store.StatusStore, syncer Syncer, logger *zap.Logger) *PatientService {
	return &PatientService{
		api:      api,
		patients: patients,
		readings: readings,
		status:   status,
		syncer:   syncer,
		logger:   logger,
	}
}

// ListPatients refreshes the cache from the backend and returns the merged
// list. When the fetch fails the cached list is returned with fromCache set;
// a failed refresh is a degraded read, not an error.
func (s *PatientService) ListPatients(ctx context.Context) ([]model.PatientRecord, bool) {
	summaries, err := s.api.ListPatients(ctx)
	if err != nil {
		s.logger.Warn("patient list fetch failed, serving cache",
			zap.Error(err),
			zap.Int("cached", s.patients.Count()),
		)
		return s.patients.List(), true
	}

	s.patients.UpsertMany(summaries)
	s.logger.Info("patient list refreshed", zap.Int("count", len(summaries)))
	return s.patients.List(), false
}

// GetPatient refreshes one patient's detail and returns the merged record.
// Embedded readings arrive already uploaded (the server is their origin) and
// are deduplicated by the reading store. When the fetch fails the cached
// record is served instead.
func (s *PatientService) GetPatient(ctx context.Context, id string) (model.PatientRecord, bool, error) {
	if id == "" {
		return model.PatientRecord{}, false, fmt.Errorf("patient id is required")
	}

	detail, err := s.api.GetPatientDetail(ctx, id)
	if err != nil {
		s.logger.Warn("patient detail fetch failed, serving cache",
			zap.Error(err),
			zap.String("patient_id", id),
		)
		rec, ok := s.patients.Get(id)
		if !ok {
			return model.PatientRecord{}, true, fmt.Errorf("patient %s not available offline", id)
		}
		return rec, true, nil
	}

	patch := detail.Patient
	if patch.ID == "" {
		patch.ID = id
	}
	s.patients.UpsertDetail(patch)

	for _, r := range detail.Readings {
		r.Uploaded = true
		s.ingestReading(r)
	}

	rec, _ := s.patients.Get(id)
	return rec, false, nil
}

// IngestDeviceReading stores a wearable-captured reading. It is buffered as
// unsynced and a background sync is kicked when the client is online; when
// offline the reading simply waits for the reconnect trigger.
func (s *PatientService) IngestDeviceReading(ctx context.Context, r model.Reading) (string, error) {
	if r.PatientID == "" {
		return "", fmt.Errorf("patient id is required")
	}
	if r.Timestamp == "" {
		r.Timestamp = time.Now().Format(time.RFC3339)
	}
	r.Uploaded = false
	r.SyncedAt = nil

	id := s.ingestReading(r)

	if !s.status.Offline() {
		go func() {
			err := s.syncer.Sync(context.WithoutCancel(ctx))
			if err != nil && !errors.Is(err, syncer.ErrSyncInFlight) {
				s.logger.Warn("post-capture sync failed", zap.Error(err))
			}
		}()
	}

	s.logger.Info("device reading buffered",
		zap.String("reading_id", id),
		zap.String("patient_id", r.PatientID),
		zap.Bool("offline", s.status.Offline()),
	)
	return id, nil
}

// ingestReading stores the reading and infers patient-cache updates from it:
// an unseen patientId creates a stub record, and a parseable capture time
// bumps lastReadingAt.
func (s *PatientService) ingestReading(r model.Reading) string {
	id := s.readings.Add(r, "")

	patch := model.PatientPatch{ID: r.PatientID}
	if at, err := r.CapturedAt(); err == nil {
		if rec, ok := s.patients.Get(r.PatientID); !ok || rec.LastReadingAt == nil || at.After(*rec.LastReadingAt) {
			patch.LastReadingAt = &at
		}
	}
	s.patients.UpsertDetail(patch)

	return id
}

// AlertRouter fans one inbound risk alert into the status store's bounded
// feed and the patient cache's risk level. It is the sink the live feed
// client writes to.
type AlertRouter struct {
	status   *store.StatusStore
	patients *store.PatientCache
}

// NewAlertRouter creates an alert router over the two stores.
func NewAlertRouter(status *store.StatusStore, patients *store.PatientCache) *AlertRouter {
	return &AlertRouter{
		status:   status,
		patients: patients,
	}
}

// PushAlert records the alert and bumps the cached patient's risk level.
func (r *AlertRouter) PushAlert(item model.RiskFeedItem) {
	r.status.PushAlert(item)

	risk := item.Risk
	patch := model.PatientPatch{ID: item.PatientID, RiskLevel: &risk}
	if item.PatientName != "" {
		patch.Name = &item.PatientName
	}
	r.patients.UpsertDetail(patch)
}

// ClearAlerts empties the feed. Patient risk levels are left as last seen.
func (r *AlertRouter) ClearAlerts() {
	r.status.ClearAlerts()
}

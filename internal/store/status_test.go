package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/matricare/sync-client/internal/persist"
	"github.com/matricare/sync-client/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStatusStore() *StatusStore {
	return NewStatusStore(nil, zap.NewNop())
}

func alert(patientID string, risk model.RiskLevel) model.RiskFeedItem {
	return model.RiskFeedItem{
		PatientID:  patientID,
		Risk:       risk,
		ReceivedAt: time.Now(),
	}
}

func TestPushAlert_SeverityOrderWithRecencyTiebreak(t *testing.T) {
	s := newTestStatusStore()

	risks := []model.RiskLevel{
		model.RiskLevelLow,
		model.RiskLevelHigh,
		model.RiskLevelModerate,
		model.RiskLevelHigh,
		model.RiskLevelLow,
		model.RiskLevelModerate,
	}
	for i, r := range risks {
		s.PushAlert(alert(fmt.Sprintf("p%d", i), r))
	}

	got := s.Alerts()
	require.Len(t, got, 6)

	assert.Equal(t, model.RiskLevelHigh, got[0].Risk)
	assert.Equal(t, model.RiskLevelHigh, got[1].Risk)
	assert.Equal(t, model.RiskLevelModerate, got[2].Risk)
	assert.Equal(t, model.RiskLevelModerate, got[3].Risk)
	assert.Equal(t, model.RiskLevelLow, got[4].Risk)
	assert.Equal(t, model.RiskLevelLow, got[5].Risk)

	// Within equal severity the newer item comes first
	assert.Equal(t, "p3", got[0].PatientID)
	assert.Equal(t, "p1", got[1].PatientID)
	assert.Equal(t, "p5", got[2].PatientID)
	assert.Equal(t, "p2", got[3].PatientID)
	assert.Equal(t, "p4", got[4].PatientID)
	assert.Equal(t, "p0", got[5].PatientID)
}

func TestPushAlert_CapsFeedAtFifty(t *testing.T) {
	s := newTestStatusStore()

	for i := 0; i < 60; i++ {
		s.PushAlert(alert(fmt.Sprintf("p%d", i), model.RiskLevelModerate))
	}
	s.PushAlert(alert("urgent", model.RiskLevelHigh))

	got := s.Alerts()
	require.Len(t, got, maxAlerts)
	assert.Equal(t, "urgent", got[0].PatientID, "a HIGH alert always survives the truncation")
}

func TestPushAlert_UnknownRiskSortsLast(t *testing.T) {
	s := newTestStatusStore()
	s.PushAlert(alert("weird", model.RiskLevel("BANANAS")))
	s.PushAlert(alert("low", model.RiskLevelLow))

	got := s.Alerts()
	require.Len(t, got, 2)
	assert.Equal(t, "low", got[0].PatientID)
	assert.Equal(t, "weird", got[1].PatientID)
}

func TestClearAlerts(t *testing.T) {
	s := newTestStatusStore()
	s.PushAlert(alert("p1", model.RiskLevelHigh))
	s.ClearAlerts()

	assert.Empty(t, s.Alerts())
}

func TestSetOffline_ReportsTransitions(t *testing.T) {
	s := newTestStatusStore()

	assert.False(t, s.Offline(), "store starts online")
	assert.False(t, s.SetOffline(false), "no transition when already online")
	assert.True(t, s.SetOffline(true))
	assert.False(t, s.SetOffline(true), "no transition when already offline")
	assert.True(t, s.SetOffline(false))
}

func TestSyncStatusLifecycle(t *testing.T) {
	s := newTestStatusStore()

	status, message := s.SyncStatus()
	assert.Equal(t, model.SyncStatusIdle, status)
	assert.Empty(t, message)

	s.SetSyncStatus(model.SyncStatusError, "upload failed, will retry automatically")
	status, message = s.SyncStatus()
	assert.Equal(t, model.SyncStatusError, status)
	assert.Equal(t, "upload failed, will retry automatically", message)
}

func TestRestore_AppState(t *testing.T) {
	s := newTestStatusStore()
	lastSync := time.Date(2026, 7, 3, 12, 0, 0, 0, time.UTC)
	s.Restore(persist.AppSnapshot{
		SelectedPatientID: "p9",
		LastSyncAt:        &lastSync,
	})

	assert.Equal(t, "p9", s.SelectedPatient())
	require.NotNil(t, s.LastSyncAt())
	assert.True(t, s.LastSyncAt().Equal(lastSync))
}

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matricare/sync-client/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("", time.Second, zap.NewNop())
	assert.Error(t, err)
}

func TestUploadReadings_PostsBatch(t *testing.T) {
	var gotPath string
	var gotBody uploadRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	readings := []model.Reading{
		{ID: "r1", PatientID: "p1", Timestamp: "2026-08-01T10:00:00Z"},
		{ID: "r2", PatientID: "p1", Timestamp: "2026-08-01T10:05:00Z"},
	}
	err := c.UploadReadings(context.Background(), readings)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/readings/upload", gotPath)
	require.Len(t, gotBody.Readings, 2)
	assert.Equal(t, "r1", gotBody.Readings[0].ID)
}

func TestUploadReadings_ServerErrorIsReturned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := c.UploadReadings(context.Background(), []model.Reading{{ID: "r1"}})
	assert.Error(t, err)
}

func TestListPatients_ParsesSummaries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"patients":[{"id":"p1","name":"Amina","riskLevel":"MODERATE"}]}`))
	})

	patients, err := c.ListPatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "p1", patients[0].ID)
	require.NotNil(t, patients[0].Name)
	assert.Equal(t, "Amina", *patients[0].Name)
	require.NotNil(t, patients[0].RiskLevel)
	assert.Equal(t, model.RiskLevelModerate, *patients[0].RiskLevel)
}

func TestGetPatientDetail_ParsesEmbeddedReadings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patients/p1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"patient": {"id":"p1","name":"Amina","village":"Mahiga"},
			"readings": [{"id":"r1","patientId":"p1","heartRate":90,"timestamp":"2026-08-01T10:00:00Z"}]
		}`))
	})

	detail, err := c.GetPatientDetail(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", detail.Patient.ID)
	require.Len(t, detail.Readings, 1)
	assert.Equal(t, 90, detail.Readings[0].HeartRate)
}

func TestGetPatientDetail_RequiresID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.GetPatientDetail(context.Background(), "")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	healthy := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.NoError(t, c.Ping(context.Background()))

	healthy = false
	assert.Error(t, c.Ping(context.Background()))
}

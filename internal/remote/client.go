package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matricare/sync-client/pkg/model"
	"go.uber.org/zap"
)

// Client talks to the remote maternal-health backend. The backend is an
// opaque collaborator: uploads are assumed idempotent on its side, so the
// same logical readings can be retried safely.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

type uploadRequest struct {
	Readings []model.Reading `json:"readings"`
}

// UploadReadings sends one batch of readings to the backend. Any non-2xx
// response or transport error is returned as a single error; callers treat
// it as a transient failure and retry later.
func (c *Client) UploadReadings(ctx context.Context, readings []model.Reading) error {
	body, err := json.Marshal(uploadRequest{Readings: readings})
	if err != nil {
		return fmt.Errorf("failed to encode readings: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/readings/upload", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("upload rejected by backend",
			zap.Int("status", resp.StatusCode),
			zap.Int("batch_size", len(readings)),
			zap.ByteString("response", payload),
		)
		return fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}

	return nil
}

type listPatientsResponse struct {
	Patients []model.PatientPatch `json:"patients"`
}

// ListPatients fetches the patient summaries visible to this client.
func (c *Client) ListPatients(ctx context.Context) ([]model.PatientPatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/patients", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list patients request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list patients failed with status %d", resp.StatusCode)
	}

	var parsed listPatientsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode patient list: %w", err)
	}
	return parsed.Patients, nil
}

// PatientDetail is the richer single-patient payload, optionally carrying
// the patient's recent readings.
type PatientDetail struct {
	Patient  model.PatientPatch `json:"patient"`
	Readings []model.Reading    `json:"readings,omitempty"`
}

// GetPatientDetail fetches one patient's detail record.
func (c *Client) GetPatientDetail(ctx context.Context, id string) (*PatientDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("patient id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/patients/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create detail request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patient detail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("patient detail failed with status %d", resp.StatusCode)
	}

	var parsed PatientDetail
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode patient detail: %w", err)
	}
	return &parsed, nil
}

// Ping checks backend reachability. Used by the network monitor's prober.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

package model

import "time"

// RiskLevel classifies how urgently a patient needs attention
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelModerate RiskLevel = "MODERATE"
	RiskLevelHigh     RiskLevel = "HIGH"
)

// Severity maps a risk level to a sortable weight. Unknown levels weigh zero
// so malformed inbound data never outranks a real alert.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskLevelHigh:
		return 3
	case RiskLevelModerate:
		return 2
	case RiskLevelLow:
		return 1
	default:
		return 0
	}
}

// SyncStatus represents the app-wide state of the reading sync pipeline
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

// Reading represents a single vital-sign sample captured by the wearable or
// returned by the backend
type Reading struct {
	ID           string     `json:"id"`
	PatientID    string     `json:"patientId"`
	HeartRate    int        `json:"heartRate"`
	SpO2         float64    `json:"spo2"`
	HRV          float64    `json:"hrv"`
	Systolic     int        `json:"systolic"`
	Diastolic    int        `json:"diastolic"`
	Temperature  float64    `json:"temperature"`
	BabyMovement *int       `json:"babyMovement,omitempty"`
	StressLevel  *int       `json:"stressLevel,omitempty"`
	Timestamp    string     `json:"timestamp"`
	Uploaded     bool       `json:"uploaded"`
	SyncedAt     *time.Time `json:"syncedAt,omitempty"`
}

// CapturedAt parses the sample's capture time. The timestamp travels as an
// ISO-8601 string because device firmwares occasionally emit stamps Go
// cannot round-trip; callers decide how to treat unparseable ones.
func (r *Reading) CapturedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Timestamp)
}

// PatientRecord is the merged local view of a patient, built up from list
// fetches, detail fetches and inference from arriving readings
type PatientRecord struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Age           int        `json:"age"`
	Gender        string     `json:"gender"`
	Village       string     `json:"village"`
	RiskLevel     RiskLevel  `json:"riskLevel"`
	LastReadingAt *time.Time `json:"lastReadingAt,omitempty"`
	Phone         string     `json:"phone"`
	Notes         string     `json:"notes"`
}

// NewPatientRecord creates a record with the documented defaults
func NewPatientRecord(id string) PatientRecord {
	return PatientRecord{
		ID:        id,
		RiskLevel: RiskLevelLow,
	}
}

// PatientPatch is a partial patient update. Only non-nil fields are applied,
// so a thin list summary never erases fields populated by a richer detail
// fetch, and vice versa.
type PatientPatch struct {
	ID            string     `json:"id"`
	Name          *string    `json:"name,omitempty"`
	Age           *int       `json:"age,omitempty"`
	Gender        *string    `json:"gender,omitempty"`
	Village       *string    `json:"village,omitempty"`
	RiskLevel     *RiskLevel `json:"riskLevel,omitempty"`
	LastReadingAt *time.Time `json:"lastReadingAt,omitempty"`
	Phone         *string    `json:"phone,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// Apply overlays the patch onto an existing record. Incoming non-nil fields
// win; absent fields preserve whatever the record already holds.
func (p *PatientPatch) Apply(rec *PatientRecord) {
	if p.Name != nil {
		rec.Name = *p.Name
	}
	if p.Age != nil {
		rec.Age = *p.Age
	}
	if p.Gender != nil {
		rec.Gender = *p.Gender
	}
	if p.Village != nil {
		rec.Village = *p.Village
	}
	if p.RiskLevel != nil {
		rec.RiskLevel = *p.RiskLevel
	}
	if p.LastReadingAt != nil {
		rec.LastReadingAt = p.LastReadingAt
	}
	if p.Phone != nil {
		rec.Phone = *p.Phone
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
}

// RiskFeedItem is an inbound alert from the live risk feed
type RiskFeedItem struct {
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName,omitempty"`
	Risk        RiskLevel `json:"risk"`
	Message     string    `json:"message,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

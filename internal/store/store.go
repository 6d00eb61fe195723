package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Prediction types stored by the predictions assistant.
const (
	PredictionShortTerm    = "short_term"
	PredictionLongTerm     = "long_term"
	PredictionRiskAnalysis = "risk_analysis"
)

type Profile struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Height    string `json:"height"`
	Weight    string `json:"weight"`
	BloodType string `json:"bloodType"`
}

type Medication struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Frequency string    `json:"frequency"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Appointment struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Date  string `json:"date"` // YYYY-MM-DD
	Notes string `json:"notes,omitempty"`
}

// AnomalyRecord is the stored form of an analysed anomaly. Data holds the
// samples it was derived from as {"ecg": [...], "eeg": [...]}.
type AnomalyRecord struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Indicators  []string        `json:"indicators"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Prediction struct {
	ID             string          `json:"id"`
	AnomalyID      string          `json:"anomaly_id,omitempty"`
	PredictionType string          `json:"prediction_type"`
	PredictionData json.RawMessage `json:"prediction_data"`
	Confidence     float64         `json:"confidence"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store is the persistence collaborator. Every call may fail; callers that
// must keep going wrap it in a Service.
type Store interface {
	Ping(ctx context.Context) error

	GetProfile(ctx context.Context) (*Profile, error)
	UpsertProfile(ctx context.Context, p Profile) (*Profile, error)

	ListMedications(ctx context.Context) ([]Medication, error)
	AddMedication(ctx context.Context, m Medication) (*Medication, error)
	UpdateMedication(ctx context.Context, id string, m Medication) (*Medication, error)
	DeleteMedication(ctx context.Context, id string) error

	ListAppointments(ctx context.Context) ([]Appointment, error)
	AddAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id string, a Appointment) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id string) error

	InsertAnomaly(ctx context.Context, a AnomalyRecord) (*AnomalyRecord, error)
	ListAnomalies(ctx context.Context, limit int) ([]AnomalyRecord, error)

	InsertPrediction(ctx context.Context, p Prediction) (*Prediction, error)
	LatestPrediction(ctx context.Context, predictionType string) (*Prediction, error)
}

// PersistenceError records a failed storage operation that was replaced by an
// in-memory default.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

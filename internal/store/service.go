package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/metrics"
	"github.com/Skufu/vitalwatch/internal/vitals"
)

func DefaultProfile() Profile {
	return Profile{
		UserID:    "123",
		Name:      "John Doe",
		Age:       45,
		Gender:    "Male",
		Height:    "180",
		Weight:    "75",
		BloodType: "O+",
	}
}

func DefaultMedications() []Medication {
	return []Medication{
		{ID: "1", Name: "Lisinopril", Dosage: "10mg", Frequency: "Daily"},
		{ID: "2", Name: "Aspirin", Dosage: "81mg", Frequency: "Daily"},
	}
}

func DefaultAppointments() []Appointment {
	return []Appointment{
		{ID: "1", Type: "Checkup", Date: "2025-05-15", Notes: "Regular checkup"},
		{ID: "2", Type: "Cardiology", Date: "2025-06-01", Notes: "Follow-up appointment"},
	}
}

// Service keeps the application running when storage is degraded: reads fall
// back to defaults and writes are echoed back with a generated id. Failures
// are logged and counted, never returned, except where noted.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(s Store, log *zap.Logger) *Service {
	return &Service{
		store: s,
		log:   logger.Module(log, "store"),
		now:   time.Now,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) fail(op string, err error) *PersistenceError {
	perr := &PersistenceError{Op: op, Err: err}
	metrics.RecordPersistenceFailure(op)
	s.log.Warn("storage operation failed, using in-memory fallback", zap.String("op", op), zap.Error(err))
	return perr
}

func (s *Service) Profile(ctx context.Context) Profile {
	p, err := s.store.GetProfile(ctx)
	if err != nil {
		s.fail("get_profile", err)
		return DefaultProfile()
	}
	return *p
}

func (s *Service) UpdateProfile(ctx context.Context, p Profile) Profile {
	out, err := s.store.UpsertProfile(ctx, p)
	if err != nil {
		s.fail("upsert_profile", err)
		return echoProfile(p)
	}
	return *out
}

// echoProfile returns the attempted write with unset fields taken from the
// default profile.
func echoProfile(p Profile) Profile {
	d := DefaultProfile()
	if p.UserID == "" {
		p.UserID = d.UserID
	}
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Age == 0 {
		p.Age = d.Age
	}
	if p.Gender == "" {
		p.Gender = d.Gender
	}
	if p.Height == "" {
		p.Height = d.Height
	}
	if p.Weight == "" {
		p.Weight = d.Weight
	}
	if p.BloodType == "" {
		p.BloodType = d.BloodType
	}
	return p
}

func (s *Service) Medications(ctx context.Context) []Medication {
	meds, err := s.store.ListMedications(ctx)
	if err != nil {
		s.fail("list_medications", err)
		return DefaultMedications()
	}
	return meds
}

func (s *Service) AddMedication(ctx context.Context, m Medication) Medication {
	out, err := s.store.AddMedication(ctx, m)
	if err != nil {
		s.fail("add_medication", err)
		m.ID = uuid.NewString()
		return m
	}
	return *out
}

// UpdateMedication returns ErrNotFound unwrapped so callers can answer 404;
// other failures echo the update.
func (s *Service) UpdateMedication(ctx context.Context, id string, m Medication) (Medication, error) {
	out, err := s.store.UpdateMedication(ctx, id, m)
	if errors.Is(err, ErrNotFound) {
		return Medication{}, ErrNotFound
	}
	if err != nil {
		s.fail("update_medication", err)
		m.ID = id
		return m, nil
	}
	return *out, nil
}

func (s *Service) DeleteMedication(ctx context.Context, id string) {
	if err := s.store.DeleteMedication(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		s.fail("delete_medication", err)
	}
}

func (s *Service) Appointments(ctx context.Context) []Appointment {
	appts, err := s.store.ListAppointments(ctx)
	if err != nil {
		s.fail("list_appointments", err)
		return DefaultAppointments()
	}
	return appts
}

func (s *Service) AddAppointment(ctx context.Context, a Appointment) Appointment {
	out, err := s.store.AddAppointment(ctx, a)
	if err != nil {
		s.fail("add_appointment", err)
		a.ID = uuid.NewString()
		return a
	}
	return *out
}

func (s *Service) UpdateAppointment(ctx context.Context, id string, a Appointment) (Appointment, error) {
	out, err := s.store.UpdateAppointment(ctx, id, a)
	if errors.Is(err, ErrNotFound) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		s.fail("update_appointment", err)
		a.ID = id
		return a, nil
	}
	return *out, nil
}

func (s *Service) DeleteAppointment(ctx context.Context, id string) {
	if err := s.store.DeleteAppointment(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		s.fail("delete_appointment", err)
	}
}

// SaveAnomaly stores one analysed anomaly together with its source samples.
// The error is returned for logging only.
func (s *Service) SaveAnomaly(ctx context.Context, a anomaly.Anomaly, ecg []vitals.Sample, eeg []vitals.EEGSample) error {
	data, err := json.Marshal(struct {
		ECG []vitals.Sample    `json:"ecg"`
		EEG []vitals.EEGSample `json:"eeg"`
	}{ECG: ecg, EEG: eeg})
	if err != nil {
		return s.fail("insert_anomaly", err)
	}

	_, err = s.store.InsertAnomaly(ctx, AnomalyRecord{
		ID:          a.ID,
		Type:        string(a.Type),
		Data:        data,
		Severity:    string(a.Severity),
		Description: a.Description,
		Status:      string(a.Status),
		Indicators:  a.RiskTypes(),
	})
	if err != nil {
		return s.fail("insert_anomaly", err)
	}
	return nil
}

func (s *Service) AnomalyHistory(ctx context.Context, limit int) []AnomalyRecord {
	out, err := s.store.ListAnomalies(ctx, limit)
	if err != nil {
		s.fail("list_anomalies", err)
		return []AnomalyRecord{}
	}
	return out
}

func (s *Service) SavePrediction(ctx context.Context, p Prediction) Prediction {
	out, err := s.store.InsertPrediction(ctx, p)
	if err != nil {
		s.fail("insert_prediction", err)
		p.ID = uuid.NewString()
		p.CreatedAt = s.now()
		return p
	}
	return *out
}

// LatestPrediction returns nil when none is stored or storage is unavailable.
func (s *Service) LatestPrediction(ctx context.Context, predictionType string) *Prediction {
	p, err := s.store.LatestPrediction(ctx, predictionType)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.fail("latest_prediction", err)
		}
		return nil
	}
	return p
}

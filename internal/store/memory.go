package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs the server when no
// database is configured and doubles as a test fake.
type MemoryStore struct {
	mu           sync.RWMutex
	profile      *Profile
	medications  []Medication
	appointments []Appointment
	anomalies    []AnomalyRecord
	predictions  []Prediction
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SeedDefaults loads the default profile, medications and appointments.
func (s *MemoryStore) SeedDefaults() {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := DefaultProfile()
	s.profile = &p
	s.medications = DefaultMedications()
	s.appointments = DefaultAppointments()
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) GetProfile(ctx context.Context) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil, ErrNotFound
	}
	p := *s.profile
	return &p, nil
}

func (s *MemoryStore) UpsertProfile(ctx context.Context, p Profile) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profile != nil && p.UserID == "" {
		p.UserID = s.profile.UserID
	}
	if p.UserID == "" {
		p.UserID = uuid.NewString()
	}
	s.profile = &p
	out := p
	return &out, nil
}

// ListMedications returns medications newest first.
func (s *MemoryStore) ListMedications(ctx context.Context) ([]Medication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Medication, len(s.medications))
	copy(out, s.medications)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddMedication(ctx context.Context, m Medication) (*Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = uuid.NewString()
	m.CreatedAt = s.now()
	s.medications = append(s.medications, m)
	return &m, nil
}

func (s *MemoryStore) UpdateMedication(ctx context.Context, id string, m Medication) (*Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.medications {
		cur := &s.medications[i]
		if cur.ID != id {
			continue
		}
		if m.Name != "" {
			cur.Name = m.Name
		}
		if m.Dosage != "" {
			cur.Dosage = m.Dosage
		}
		if m.Frequency != "" {
			cur.Frequency = m.Frequency
		}
		out := *cur
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteMedication(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.medications {
		if s.medications[i].ID == id {
			s.medications = append(s.medications[:i], s.medications[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListAppointments returns appointments by date, earliest first.
func (s *MemoryStore) ListAppointments(ctx context.Context) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Appointment, len(s.appointments))
	copy(out, s.appointments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *MemoryStore) AddAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = uuid.NewString()
	s.appointments = append(s.appointments, a)
	return &a, nil
}

func (s *MemoryStore) UpdateAppointment(ctx context.Context, id string, a Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.appointments {
		cur := &s.appointments[i]
		if cur.ID != id {
			continue
		}
		if a.Type != "" {
			cur.Type = a.Type
		}
		if a.Date != "" {
			cur.Date = a.Date
		}
		if a.Notes != "" {
			cur.Notes = a.Notes
		}
		out := *cur
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteAppointment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.appointments {
		if s.appointments[i].ID == id {
			s.appointments = append(s.appointments[:i], s.appointments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) InsertAnomaly(ctx context.Context, a AnomalyRecord) (*AnomalyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = s.now()
	s.anomalies = append(s.anomalies, a)
	return &a, nil
}

// ListAnomalies returns up to limit records, newest first.
func (s *MemoryStore) ListAnomalies(ctx context.Context, limit int) ([]AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.anomalies)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AnomalyRecord, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.anomalies[i])
	}
	return out, nil
}

func (s *MemoryStore) InsertPrediction(ctx context.Context, p Prediction) (*Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.NewString()
	p.CreatedAt = s.now()
	s.predictions = append(s.predictions, p)
	return &p, nil
}

func (s *MemoryStore) LatestPrediction(ctx context.Context, predictionType string) (*Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.predictions) - 1; i >= 0; i-- {
		if s.predictions[i].PredictionType == predictionType {
			p := s.predictions[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

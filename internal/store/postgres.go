package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool, verifies it with a ping and returns it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, name, age, gender, height, weight, blood_type
		FROM patient_profiles
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&p.UserID, &p.Name, &p.Age, &p.Gender, &p.Height, &p.Weight, &p.BloodType)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p Profile) (*Profile, error) {
	if p.UserID == "" {
		p.UserID = uuid.NewString()
	}

	var out Profile
	err := s.pool.QueryRow(ctx, `
		INSERT INTO patient_profiles (user_id, name, age, gender, height, weight, blood_type, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			height = EXCLUDED.height,
			weight = EXCLUDED.weight,
			blood_type = EXCLUDED.blood_type,
			updated_at = NOW()
		RETURNING user_id, name, age, gender, height, weight, blood_type
	`, p.UserID, p.Name, p.Age, p.Gender, p.Height, p.Weight, p.BloodType).
		Scan(&out.UserID, &out.Name, &out.Age, &out.Gender, &out.Height, &out.Weight, &out.BloodType)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) ListMedications(ctx context.Context) ([]Medication, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, dosage, frequency, created_at
		FROM medications
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Medication{}
	for rows.Next() {
		var m Medication
		if err := rows.Scan(&m.ID, &m.Name, &m.Dosage, &m.Frequency, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMedication(ctx context.Context, m Medication) (*Medication, error) {
	var out Medication
	err := s.pool.QueryRow(ctx, `
		INSERT INTO medications (id, name, dosage, frequency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, dosage, frequency, created_at
	`, uuid.NewString(), m.Name, m.Dosage, m.Frequency).
		Scan(&out.ID, &out.Name, &out.Dosage, &out.Frequency, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMedication applies the non-empty fields of m.
func (s *PostgresStore) UpdateMedication(ctx context.Context, id string, m Medication) (*Medication, error) {
	var out Medication
	err := s.pool.QueryRow(ctx, `
		UPDATE medications SET
			name = COALESCE(NULLIF($2, ''), name),
			dosage = COALESCE(NULLIF($3, ''), dosage),
			frequency = COALESCE(NULLIF($4, ''), frequency)
		WHERE id = $1
		RETURNING id, name, dosage, frequency, created_at
	`, id, m.Name, m.Dosage, m.Frequency).
		Scan(&out.ID, &out.Name, &out.Dosage, &out.Frequency, &out.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (s *PostgresStore) DeleteMedication(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM medications WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, to_char(date, 'YYYY-MM-DD'), notes
		FROM appointments
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.Type, &a.Date, &a.Notes); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var out Appointment
	err := s.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, type, date, notes)
		VALUES ($1, $2, $3::date, $4)
		RETURNING id, type, to_char(date, 'YYYY-MM-DD'), notes
	`, uuid.NewString(), a.Type, a.Date, a.Notes).
		Scan(&out.ID, &out.Type, &out.Date, &out.Notes)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) UpdateAppointment(ctx context.Context, id string, a Appointment) (*Appointment, error) {
	var out Appointment
	err := s.pool.QueryRow(ctx, `
		UPDATE appointments SET
			type = COALESCE(NULLIF($2, ''), type),
			date = COALESCE(NULLIF($3, '')::date, date),
			notes = COALESCE(NULLIF($4, ''), notes)
		WHERE id = $1
		RETURNING id, type, to_char(date, 'YYYY-MM-DD'), notes
	`, id, a.Type, a.Date, a.Notes).
		Scan(&out.ID, &out.Type, &out.Date, &out.Notes)
	if err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (s *PostgresStore) DeleteAppointment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertAnomaly(ctx context.Context, a AnomalyRecord) (*AnomalyRecord, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	data := []byte(a.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	indicators := a.Indicators
	if indicators == nil {
		indicators = []string{}
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO anomalies (id, type, data, severity, description, status, indicators)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			indicators = EXCLUDED.indicators
		RETURNING created_at
	`, a.ID, a.Type, data, a.Severity, a.Description, a.Status, indicators).Scan(&a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, limit int) ([]AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, data, severity, description, status, indicators, created_at
		FROM anomalies
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AnomalyRecord{}
	for rows.Next() {
		var a AnomalyRecord
		var data []byte
		if err := rows.Scan(&a.ID, &a.Type, &data, &a.Severity, &a.Description, &a.Status, &a.Indicators, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Data = data
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertPrediction(ctx context.Context, p Prediction) (*Prediction, error) {
	p.ID = uuid.NewString()
	data := []byte(p.PredictionData)
	if len(data) == 0 {
		data = []byte("null")
	}
	var anomalyID *string
	if p.AnomalyID != "" {
		anomalyID = &p.AnomalyID
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO health_predictions (id, anomaly_id, prediction_type, prediction_data, confidence)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, p.ID, anomalyID, p.PredictionType, data, p.Confidence).Scan(&p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) LatestPrediction(ctx context.Context, predictionType string) (*Prediction, error) {
	var p Prediction
	var anomalyID *string
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, anomaly_id, prediction_type, prediction_data, confidence, created_at
		FROM health_predictions
		WHERE prediction_type = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, predictionType).Scan(&p.ID, &anomalyID, &p.PredictionType, &data, &p.Confidence, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if anomalyID != nil {
		p.AnomalyID = *anomalyID
	}
	p.PredictionData = data
	return &p, nil
}

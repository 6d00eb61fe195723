package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTime() time.Time {
	return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
}

// Runs only when TEST_DATABASE_URL points at a disposable Postgres database.
func TestPostgresStoreIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrations are idempotent")

	s := NewPostgresStore(pool)
	require.NoError(t, s.Ping(ctx))

	t.Run("profile upsert", func(t *testing.T) {
		p, err := s.UpsertProfile(ctx, Profile{UserID: "it-user", Name: "Jane", Age: 40})
		require.NoError(t, err)
		assert.Equal(t, "Jane", p.Name)

		p, err = s.UpsertProfile(ctx, Profile{UserID: "it-user", Name: "Jane Roe", Age: 41})
		require.NoError(t, err)
		assert.Equal(t, 41, p.Age)
	})

	t.Run("medication lifecycle", func(t *testing.T) {
		m, err := s.AddMedication(ctx, Medication{Name: "Lisinopril", Dosage: "10mg", Frequency: "Daily"})
		require.NoError(t, err)

		u, err := s.UpdateMedication(ctx, m.ID, Medication{Dosage: "20mg"})
		require.NoError(t, err)
		assert.Equal(t, "Lisinopril", u.Name)
		assert.Equal(t, "20mg", u.Dosage)

		require.NoError(t, s.DeleteMedication(ctx, m.ID))
		assert.ErrorIs(t, s.DeleteMedication(ctx, m.ID), ErrNotFound)
	})

	t.Run("appointment dates", func(t *testing.T) {
		a, err := s.AddAppointment(ctx, Appointment{Type: "Checkup", Date: "2025-05-15"})
		require.NoError(t, err)
		assert.Equal(t, "2025-05-15", a.Date)
		require.NoError(t, s.DeleteAppointment(ctx, a.ID))
	})

	t.Run("anomaly and prediction", func(t *testing.T) {
		rec, err := s.InsertAnomaly(ctx, AnomalyRecord{
			Type:       "ECG",
			Data:       json.RawMessage(`{"ecg":[],"eeg":[]}`),
			Severity:   "low",
			Status:     "active",
			Indicators: []string{"Stress Response"},
		})
		require.NoError(t, err)

		list, err := s.ListAnomalies(ctx, 5)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		assert.Equal(t, rec.ID, list[0].ID)

		_, err = s.InsertPrediction(ctx, Prediction{
			AnomalyID:      rec.ID,
			PredictionType: PredictionRiskAnalysis,
			PredictionData: json.RawMessage(`["hypertension"]`),
			Confidence:     0.8,
		})
		require.NoError(t, err)

		latest, err := s.LatestPrediction(ctx, PredictionRiskAnalysis)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, latest.AnomalyID)
		assert.JSONEq(t, `["hypertension"]`, string(latest.PredictionData))
	})
}

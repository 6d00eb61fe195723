package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProfileUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetProfile(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	saved, err := s.UpsertProfile(ctx, Profile{Name: "Jane", Age: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.UserID)

	updated, err := s.UpsertProfile(ctx, Profile{Name: "Jane Roe", Age: 51})
	require.NoError(t, err)
	assert.Equal(t, saved.UserID, updated.UserID)

	got, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", got.Name)
}

func TestMemoryMedicationsCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	first, err := s.AddMedication(ctx, Medication{Name: "Lisinopril", Dosage: "10mg", Frequency: "Daily"})
	require.NoError(t, err)
	second, err := s.AddMedication(ctx, Medication{Name: "Aspirin", Dosage: "81mg", Frequency: "Daily"})
	require.NoError(t, err)

	list, err := s.ListMedications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	updated, err := s.UpdateMedication(ctx, first.ID, Medication{Dosage: "20mg"})
	require.NoError(t, err)
	assert.Equal(t, "Lisinopril", updated.Name)
	assert.Equal(t, "20mg", updated.Dosage)

	_, err = s.UpdateMedication(ctx, "missing", Medication{Dosage: "1mg"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteMedication(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteMedication(ctx, first.ID), ErrNotFound)

	list, _ = s.ListMedications(ctx)
	assert.Len(t, list, 1)
}

func TestMemoryAppointmentsOrderedByDate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, _ = s.AddAppointment(ctx, Appointment{Type: "Cardiology", Date: "2025-06-01"})
	_, _ = s.AddAppointment(ctx, Appointment{Type: "Checkup", Date: "2025-05-15"})

	list, err := s.ListAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Checkup", list[0].Type)
}

func TestMemoryAnomaliesNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.InsertAnomaly(ctx, AnomalyRecord{ID: id, Type: "ECG"})
		require.NoError(t, err)
	}

	list, err := s.ListAnomalies(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestMemoryLatestPrediction(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.LatestPrediction(ctx, PredictionShortTerm)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _ = s.InsertPrediction(ctx, Prediction{PredictionType: PredictionShortTerm, Confidence: 0.5})
	_, _ = s.InsertPrediction(ctx, Prediction{PredictionType: PredictionLongTerm, Confidence: 0.75})
	_, _ = s.InsertPrediction(ctx, Prediction{PredictionType: PredictionShortTerm, Confidence: 0.85})

	got, err := s.LatestPrediction(ctx, PredictionShortTerm)
	require.NoError(t, err)
	assert.Equal(t, 0.85, got.Confidence)
}

func TestMemorySeedDefaults(t *testing.T) {
	s := NewMemoryStore()
	s.SeedDefaults()

	p, err := s.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "John Doe", p.Name)

	meds, _ := s.ListMedications(context.Background())
	assert.Equal(t, "Lisinopril", meds[0].Name)
}

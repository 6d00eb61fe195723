package anomaly

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/vitalwatch/internal/vitals"
)

type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

type fakeWriter struct {
	mu    sync.Mutex
	saved []Anomaly
	err   error
	done  chan struct{}
	want  int
}

func newFakeWriter(want int, err error) *fakeWriter {
	return &fakeWriter{done: make(chan struct{}), want: want, err: err}
}

func (w *fakeWriter) SaveAnomaly(ctx context.Context, a Anomaly, ecg []vitals.Sample, eeg []vitals.EEGSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved = append(w.saved, a)
	if len(w.saved) == w.want {
		close(w.done)
	}
	return w.err
}

func clock() time.Time {
	return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
}

var (
	oneECG = []vitals.Sample{{Timestamp: 0, Value: 0.1}}
	oneEEG = []vitals.EEGSample{{Timestamp: 0, Alpha: 0.2, Beta: 0.1, Theta: 0.05, Delta: 0.02}}
)

func TestAnalyzeRemoteFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}
	a := NewAnalyzer(gen, WithClock(clock))

	res := a.Analyze(context.Background(), oneECG, oneEEG, nil)

	require.True(t, res.Fallback())
	require.Len(t, res.Anomalies, 4)
	assert.Equal(t, "1", res.Anomalies[0].ID)
	assert.Equal(t, SeverityHigh, res.Anomalies[0].Severity)
	assert.Equal(t, TypeCombined, res.Anomalies[0].Type)

	severities := []Severity{}
	for _, an := range res.Anomalies {
		severities = append(severities, an.Severity)
	}
	assert.Equal(t, []Severity{SeverityHigh, SeverityMedium, SeverityLow, SeverityNormal}, severities)

	var ae *AnalysisError
	require.True(t, errors.As(res.Err, &ae))
	assert.Equal(t, "generate", ae.Stage)
}

func TestAnalyzeWithoutGeneratorFallsBack(t *testing.T) {
	res := NewAnalyzer(nil).Analyze(context.Background(), oneECG, oneEEG, nil)
	assert.True(t, res.Fallback())
	assert.Len(t, res.Anomalies, 4)
}

func TestAnalyzeMalformedResponses(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		stage string
	}{
		{"not json", "I think the patient is fine.", "parse"},
		{"missing anomalies field", `{"riskAssessment":"low"}`, "parse"},
		{"wrong shape", `{"anomalies":"none"}`, "parse"},
		{"bad severity", `{"anomalies":[{"id":"a","type":"ECG","severity":"critical","status":"active"}]}`, "validate"},
		{"bad type", `{"anomalies":[{"id":"a","type":"EMG","severity":"low","status":"active"}]}`, "validate"},
		{"bad status", `{"anomalies":[{"id":"a","type":"ECG","severity":"low","status":"open"}]}`, "validate"},
		{"probability out of range", `{"anomalies":[{"id":"a","type":"ECG","severity":"low","status":"active","risks":[{"type":"x","probability":1.5,"severity":"low"}]}]}`, "validate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAnalyzer(&fakeGenerator{text: tc.text}, WithClock(clock))
			res := a.Analyze(context.Background(), oneECG, oneEEG, nil)

			require.True(t, res.Fallback())
			assert.Equal(t, "1", res.Anomalies[0].ID)

			var ae *AnalysisError
			require.True(t, errors.As(res.Err, &ae))
			assert.Equal(t, tc.stage, ae.Stage)
		})
	}
}

func TestAnalyzeRemoteSuccess(t *testing.T) {
	text := "```json\n" + `{
		"anomalies": [
			{"id":"x","type":"ECG","severity":"medium","description":"PVC","details":"d","status":"active",
			 "risks":[{"type":"Arrhythmia","probability":0.6,"severity":"medium","indicators":["PVC"]}]},
			{"id":"x","type":"EEG","severity":"low","description":"Spike","details":"d","status":"resolved"},
			{"type":"Combined","severity":"normal","description":"Ok","details":"d","status":"normal"}
		],
		"riskAssessment": "moderate"
	}` + "\n```"
	gen := &fakeGenerator{text: text}
	writer := newFakeWriter(3, nil)
	a := NewAnalyzer(gen, WithClock(clock), WithWriter(writer))

	res := a.Analyze(context.Background(), oneECG, oneEEG, []Anomaly{{ID: "prev"}})

	require.NoError(t, res.Err)
	assert.Equal(t, BranchRemote, res.Branch)
	require.Len(t, res.Anomalies, 3)

	ids := map[string]bool{}
	for _, an := range res.Anomalies {
		assert.NotEmpty(t, an.ID)
		assert.False(t, ids[an.ID], "duplicate id %s", an.ID)
		ids[an.ID] = true
	}
	assert.Equal(t, "x", res.Anomalies[0].ID)
	assert.Equal(t, "2025-05-01T12:00:00.000Z", res.Anomalies[2].Timestamp)

	assert.Contains(t, gen.prompt, "Previous Anomalies:")
	assert.Contains(t, gen.prompt, `"id":"prev"`)

	select {
	case <-writer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("anomalies were not persisted")
	}
}

func TestAnalyzePersistenceErrorKeepsResult(t *testing.T) {
	gen := &fakeGenerator{text: `{"anomalies":[{"id":"a","type":"ECG","severity":"low","status":"active"}]}`}
	writer := newFakeWriter(1, errors.New("db down"))
	a := NewAnalyzer(gen, WithWriter(writer))

	res := a.Analyze(context.Background(), oneECG, oneEEG, nil)

	require.NoError(t, res.Err)
	require.Len(t, res.Anomalies, 1)
	<-writer.done
}

func TestAnalyzeEmptyRemoteSet(t *testing.T) {
	res := NewAnalyzer(&fakeGenerator{text: `{"anomalies":[]}`}).Analyze(context.Background(), nil, nil, nil)

	require.NoError(t, res.Err)
	assert.False(t, res.Fallback())
	assert.Empty(t, res.Anomalies)
}

func TestAnalyzeAcceptsFreeTextRiskSeverity(t *testing.T) {
	text := `{"anomalies":[{"id":"x","type":"ECG","severity":"high","description":"AF","details":"d","status":"active",
		"risks":[{"type":"Arrhythmia","probability":0.7,"severity":"moderate","indicators":["irregular RR"]},
		         {"type":"Stroke","probability":0.2,"severity":"critical"}]}]}`
	res := NewAnalyzer(&fakeGenerator{text: text}, WithClock(clock)).Analyze(context.Background(), oneECG, oneEEG, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, BranchRemote, res.Branch)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, "x", res.Anomalies[0].ID)
	require.Len(t, res.Anomalies[0].Risks, 2)
	assert.Equal(t, "moderate", res.Anomalies[0].Risks[0].Severity)
	assert.Equal(t, "critical", res.Anomalies[0].Risks[1].Severity)
}

func TestFallbackTimestampsFollowClock(t *testing.T) {
	got := NewAnalyzer(nil, WithClock(clock)).Fallback()

	assert.Equal(t, "2025-05-01T12:00:00.000Z", got[0].Timestamp)
	assert.Equal(t, "2025-05-01T11:30:00.000Z", got[1].Timestamp)
	assert.Equal(t, "2025-05-01T11:15:00.000Z", got[2].Timestamp)
	assert.Equal(t, "2025-05-01T11:00:00.000Z", got[3].Timestamp)
	assert.Equal(t, StatusNormal, got[3].Status)
}

func TestRiskTypes(t *testing.T) {
	ref := Reference(clock())
	assert.Equal(t, []string{"Hypertensive Crisis"}, ref[0].RiskTypes())
	assert.True(t, strings.HasPrefix(ref[0].Description, "Critical"))
}

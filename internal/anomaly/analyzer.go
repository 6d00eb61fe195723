package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/gemini"
	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/metrics"
	"github.com/Skufu/vitalwatch/internal/vitals"
)

const (
	BranchRemote   = "remote"
	BranchFallback = "fallback"

	defaultPersistTimeout = 5 * time.Second
)

var errNoGenerator = errors.New("no generative client configured")

// Generator is the generative-AI completion call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Writer persists one remotely detected anomaly with the samples it was
// derived from.
type Writer interface {
	SaveAnomaly(ctx context.Context, a Anomaly, ecg []vitals.Sample, eeg []vitals.EEGSample) error
}

// Result is the outcome of Analyze. Err holds the *AnalysisError that caused
// a fallback, if any; Anomalies is always usable.
type Result struct {
	Anomalies []Anomaly
	Branch    string
	Err       error
}

func (r Result) Fallback() bool {
	return r.Branch == BranchFallback
}

type Analyzer struct {
	gen            Generator
	writer         Writer
	now            func() time.Time
	log            *zap.Logger
	persistTimeout time.Duration
}

type Option func(*Analyzer)

func WithWriter(w Writer) Option {
	return func(a *Analyzer) { a.writer = w }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(a *Analyzer) { a.log = logger.Module(log, "anomaly") }
}

// NewAnalyzer builds an analyzer. gen may be nil, in which case every
// analysis takes the fallback branch.
func NewAnalyzer(gen Generator, opts ...Option) *Analyzer {
	a := &Analyzer{
		gen:            gen,
		now:            time.Now,
		log:            zap.NewNop(),
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze correlates the buffered samples. It never fails: any remote problem
// yields the reference set with the cause recorded in Result.Err.
func (a *Analyzer) Analyze(ctx context.Context, ecg []vitals.Sample, eeg []vitals.EEGSample, previous []Anomaly) Result {
	anomalies, err := a.Remote(ctx, ecg, eeg, previous)
	if err != nil {
		a.log.Warn("remote analysis failed, using reference anomalies", zap.Error(err))
		metrics.RecordAnalysis(BranchFallback)
		return Result{Anomalies: a.Fallback(), Branch: BranchFallback, Err: err}
	}

	metrics.RecordAnalysis(BranchRemote)
	a.persist(ctx, anomalies, ecg, eeg)
	return Result{Anomalies: anomalies, Branch: BranchRemote}
}

// Remote asks the generative service for an anomaly set and validates it.
func (a *Analyzer) Remote(ctx context.Context, ecg []vitals.Sample, eeg []vitals.EEGSample, previous []Anomaly) ([]Anomaly, error) {
	if a.gen == nil {
		return nil, &AnalysisError{Stage: "generate", Err: errNoGenerator}
	}

	prompt, err := buildPrompt(ecg, eeg, previous)
	if err != nil {
		return nil, &AnalysisError{Stage: "generate", Err: err}
	}

	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, &AnalysisError{Stage: "generate", Err: err}
	}

	var parsed struct {
		Anomalies *[]Anomaly `json:"anomalies"`
	}
	if err := json.Unmarshal([]byte(gemini.StripFences(text)), &parsed); err != nil {
		return nil, &AnalysisError{Stage: "parse", Err: err}
	}
	if parsed.Anomalies == nil {
		return nil, &AnalysisError{Stage: "parse", Err: errors.New(`response has no "anomalies" field`)}
	}

	anomalies := *parsed.Anomalies
	if err := a.normalize(anomalies); err != nil {
		return nil, &AnalysisError{Stage: "validate", Err: err}
	}
	return anomalies, nil
}

// Fallback returns the reference anomaly set stamped relative to now.
func (a *Analyzer) Fallback() []Anomaly {
	return Reference(a.now())
}

// normalize checks anomaly enums and risk probabilities, fills missing timestamps and makes
// ids unique within the set.
func (a *Analyzer) normalize(anomalies []Anomaly) error {
	seen := make(map[string]bool, len(anomalies))
	stamp := formatTime(a.now())

	for i := range anomalies {
		an := &anomalies[i]
		if !an.Type.Valid() {
			return fmt.Errorf("anomaly %d: invalid type %q", i, an.Type)
		}
		if !an.Severity.Valid() {
			return fmt.Errorf("anomaly %d: invalid severity %q", i, an.Severity)
		}
		if !an.Status.Valid() {
			return fmt.Errorf("anomaly %d: invalid status %q", i, an.Status)
		}
		for j, r := range an.Risks {
			if r.Probability < 0 || r.Probability > 1 {
				return fmt.Errorf("anomaly %d risk %d: probability %v out of range", i, j, r.Probability)
			}
		}

		if an.ID == "" || seen[an.ID] {
			an.ID = uuid.NewString()
		}
		seen[an.ID] = true
		if an.Timestamp == "" {
			an.Timestamp = stamp
		}
	}
	return nil
}

func (a *Analyzer) persist(ctx context.Context, anomalies []Anomaly, ecg []vitals.Sample, eeg []vitals.EEGSample) {
	if a.writer == nil || len(anomalies) == 0 {
		return
	}

	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.persistTimeout)
		defer cancel()

		for _, an := range anomalies {
			if err := a.writer.SaveAnomaly(pctx, an, ecg, eeg); err != nil {
				a.log.Warn("store anomaly failed", zap.String("anomaly_id", an.ID), zap.Error(err))
			}
		}
	}()
}

func buildPrompt(ecg []vitals.Sample, eeg []vitals.EEGSample, previous []Anomaly) (string, error) {
	if previous == nil {
		previous = []Anomaly{}
	}
	ecgJSON, err := json.Marshal(ecg)
	if err != nil {
		return "", err
	}
	eegJSON, err := json.Marshal(eeg)
	if err != nil {
		return "", err
	}
	prevJSON, err := json.Marshal(previous)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Analyze the following health data and provide insights:
ECG Data: %s
EEG Data: %s
Previous Anomalies: %s

Provide analysis in JSON format with:
1. Anomalies detected, as an "anomalies" array of objects with fields id, timestamp, type (ECG|EEG|Combined), severity (normal|low|medium|high), description, details, status (active|resolved|normal) and risks (type, probability 0-1, severity, indicators)
2. Risk assessment
3. Recommendations`, ecgJSON, eegJSON, prevJSON), nil
}

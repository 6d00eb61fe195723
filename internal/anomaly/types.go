package anomaly

import (
	"fmt"
	"time"
)

// TimeLayout renders timestamps the way browsers emit ISO-8601.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Type string

const (
	TypeECG      Type = "ECG"
	TypeEEG      Type = "EEG"
	TypeCombined Type = "Combined"
)

type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusNormal   Status = "normal"
)

// Risk severity is free text from the analysis service ("moderate",
// "critical"), unlike the anomaly-level Severity enum.
type Risk struct {
	Type        string   `json:"type"`
	Probability float64  `json:"probability"`
	Severity    string   `json:"severity"`
	Indicators  []string `json:"indicators"`
}

type Anomaly struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Type        Type     `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Details     string   `json:"details"`
	Status      Status   `json:"status"`
	Risks       []Risk   `json:"risks"`
}

// RiskTypes lists the type of every risk, in order.
func (a Anomaly) RiskTypes() []string {
	out := make([]string, 0, len(a.Risks))
	for _, r := range a.Risks {
		out = append(out, r.Type)
	}
	return out
}

func (t Type) Valid() bool {
	switch t {
	case TypeECG, TypeEEG, TypeCombined:
		return true
	}
	return false
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityNormal, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusResolved, StatusNormal:
		return true
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// AnalysisError wraps a failure of the remote branch. Stage is one of
// "generate", "parse" or "validate".
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("anomaly analysis %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

package assistant

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/backend"
	"github.com/Skufu/vitalwatch/internal/screening"
)

type HealthRequest struct {
	Vitals      map[string]any `json:"vitals"`
	Conditions  []string       `json:"conditions"`
	Medications []any          `json:"medications"`
}

type HealthAnalysis struct {
	Success   bool              `json:"success"`
	Analysis  string            `json:"analysis"`
	Source    string            `json:"source"`
	Screening *screening.Result `json:"screening,omitempty"`
}

// AnalyzeHealth asks the backend for a narrative analysis and falls back to
// the local screening rules. The screening result is always attached.
func (a *Assistant) AnalyzeHealth(ctx context.Context, req HealthRequest) HealthAnalysis {
	result := screening.Evaluate(screening.Input{
		Vitals:      screening.VitalsFromMap(req.Vitals),
		Conditions:  req.Conditions,
		Medications: medicationNames(req.Medications),
	})

	if a.backend != nil {
		resp, err := a.backend.AnalyzeHealth(ctx, backend.AnalyzeRequest{
			Vitals:      req.Vitals,
			Conditions:  req.Conditions,
			Medications: req.Medications,
		})
		if err == nil && resp.Success && resp.Analysis != "" {
			return HealthAnalysis{Success: true, Analysis: resp.Analysis, Source: SourceBackend, Screening: &result}
		}
		a.log.Warn("backend health analysis failed, using screening rules", zap.Error(err))
	}

	return HealthAnalysis{Success: true, Analysis: result.Summary, Source: SourceRules, Screening: &result}
}

// medicationNames accepts plain names or {name, dosage} objects.
func medicationNames(meds []any) []string {
	out := make([]string, 0, len(meds))
	for _, m := range meds {
		switch v := m.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			if name, ok := v["name"].(string); ok {
				out = append(out, name)
			}
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

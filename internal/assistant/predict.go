package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/gemini"
	"github.com/Skufu/vitalwatch/internal/store"
)

// Confidence recorded for each stored prediction kind.
const (
	ConfidenceShortTerm    = 0.85
	ConfidenceLongTerm     = 0.75
	ConfidenceRiskAnalysis = 0.80
)

// Predictions is the generative forecast. Field contents are whatever shape
// the model produced and are stored verbatim.
type Predictions struct {
	ShortTerm          json.RawMessage `json:"shortTerm"`
	LongTerm           json.RawMessage `json:"longTerm"`
	Risks              json.RawMessage `json:"risks"`
	PreventiveMeasures json.RawMessage `json:"preventiveMeasures"`
	WarningSignals     json.RawMessage `json:"warningSignals"`
}

type riskAnalysis struct {
	Risks              json.RawMessage `json:"risks"`
	PreventiveMeasures json.RawMessage `json:"preventiveMeasures"`
	WarningSignals     json.RawMessage `json:"warningSignals"`
}

// Predict forecasts future conditions from the current anomalies and the
// patient profile, then stores the short-term, long-term and risk parts as
// three predictions keyed by the first anomaly.
func (a *Assistant) Predict(ctx context.Context, anomalies []anomaly.Anomaly, profile store.Profile) (*Predictions, error) {
	if a.gen == nil {
		return nil, ErrNoGenerator
	}

	prompt, err := predictionPrompt(anomalies, profile)
	if err != nil {
		return nil, err
	}
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate predictions: %w", err)
	}

	var p Predictions
	if err := json.Unmarshal([]byte(gemini.StripFences(text)), &p); err != nil {
		return nil, fmt.Errorf("parse predictions: %w", err)
	}
	if len(p.ShortTerm) == 0 && len(p.LongTerm) == 0 {
		return nil, fmt.Errorf("parse predictions: no shortTerm or longTerm in response")
	}

	a.storePredictions(ctx, anomalies, p)
	return &p, nil
}

func (a *Assistant) storePredictions(ctx context.Context, anomalies []anomaly.Anomaly, p Predictions) {
	if a.predictions == nil {
		return
	}

	anomalyID := ""
	if len(anomalies) > 0 {
		anomalyID = anomalies[0].ID
	}
	risks, err := json.Marshal(riskAnalysis{
		Risks:              orNull(p.Risks),
		PreventiveMeasures: orNull(p.PreventiveMeasures),
		WarningSignals:     orNull(p.WarningSignals),
	})
	if err != nil {
		a.log.Warn("encode risk analysis", zap.Error(err))
		risks = []byte("null")
	}

	records := []store.Prediction{
		{AnomalyID: anomalyID, PredictionType: store.PredictionShortTerm, PredictionData: orNull(p.ShortTerm), Confidence: ConfidenceShortTerm},
		{AnomalyID: anomalyID, PredictionType: store.PredictionLongTerm, PredictionData: orNull(p.LongTerm), Confidence: ConfidenceLongTerm},
		{AnomalyID: anomalyID, PredictionType: store.PredictionRiskAnalysis, PredictionData: risks, Confidence: ConfidenceRiskAnalysis},
	}

	var wg sync.WaitGroup
	for _, rec := range records {
		wg.Add(1)
		go func(rec store.Prediction) {
			defer wg.Done()
			a.predictions.SavePrediction(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

// LatestPrediction returns the newest stored prediction of the given type,
// or nil.
func (a *Assistant) LatestPrediction(ctx context.Context, predictionType string) *store.Prediction {
	if a.predictions == nil {
		return nil
	}
	return a.predictions.LatestPrediction(ctx, predictionType)
}

func ValidPredictionType(t string) bool {
	switch t {
	case store.PredictionShortTerm, store.PredictionLongTerm, store.PredictionRiskAnalysis:
		return true
	}
	return false
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func predictionPrompt(anomalies []anomaly.Anomaly, profile store.Profile) (string, error) {
	p, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	an, err := json.Marshal(anomalies)
	if err != nil {
		return "", fmt.Errorf("encode anomalies: %w", err)
	}
	return fmt.Sprintf(`Based on the following health data and patient profile, predict future health conditions:

Patient Profile:
%s

Health Anomalies:
%s

Respond with JSON only, using these keys:
- "shortTerm": short-term predictions (6 months)
- "longTerm": long-term predictions (2-5 years)
- "risks": risk factors
- "preventiveMeasures": preventive measures
- "warningSignals": warning signs to monitor`, p, an), nil
}

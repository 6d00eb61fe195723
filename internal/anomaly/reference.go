package anomaly

import "time"

// Reference returns the fixed anomaly set used when remote analysis is
// unavailable: one record per severity, highest first. The last record is a
// "normal" placeholder and is always present.
func Reference(now time.Time) []Anomaly {
	return []Anomaly{
		{
			ID:          "1",
			Timestamp:   formatTime(now),
			Type:        TypeCombined,
			Severity:    SeverityHigh,
			Description: "Critical: Elevated Blood Pressure with Irregular Heart Rhythm",
			Details:     "Blood pressure reading of 180/110 mmHg detected alongside irregular heart rhythm patterns. ECG shows premature ventricular contractions.",
			Status:      StatusActive,
			Risks: []Risk{{
				Type:        "Hypertensive Crisis",
				Probability: 0.85,
				Severity:    string(SeverityHigh),
				Indicators: []string{
					"Systolic pressure > 180 mmHg",
					"Diastolic pressure > 110 mmHg",
					"Irregular heart rhythm",
					"Reported headache",
					"Visual disturbances",
				},
			}},
		},
		{
			ID:          "2",
			Timestamp:   formatTime(now.Add(-30 * time.Minute)),
			Type:        TypeEEG,
			Severity:    SeverityMedium,
			Description: "Abnormal Brain Wave Patterns Detected",
			Details:     "Unusual spike-wave discharges observed in temporal lobe region. Pattern suggests increased neurological activity.",
			Status:      StatusActive,
			Risks: []Risk{{
				Type:        "Seizure Risk",
				Probability: 0.65,
				Severity:    string(SeverityMedium),
				Indicators: []string{
					"Spike-wave discharges",
					"Temporal lobe activity",
					"Altered consciousness",
					"Previous history",
				},
			}},
		},
		{
			ID:          "3",
			Timestamp:   formatTime(now.Add(-45 * time.Minute)),
			Type:        TypeECG,
			Severity:    SeverityLow,
			Description: "Minor Heart Rate Variability",
			Details:     "Slight variations in heart rate detected during rest period. May indicate stress or anxiety.",
			Status:      StatusResolved,
			Risks: []Risk{{
				Type:        "Stress Response",
				Probability: 0.45,
				Severity:    string(SeverityLow),
				Indicators: []string{
					"Variable heart rate",
					"Elevated cortisol",
					"Reported stress",
				},
			}},
		},
		{
			ID:          "4",
			Timestamp:   formatTime(now.Add(-60 * time.Minute)),
			Type:        TypeCombined,
			Severity:    SeverityNormal,
			Description: "Normal Vital Signs",
			Details:     "All vital signs within normal ranges. Regular heart rhythm and normal brain wave patterns observed.",
			Status:      StatusNormal,
			Risks: []Risk{{
				Type:        "Routine Monitoring",
				Probability: 0.1,
				Severity:    string(SeverityNormal),
				Indicators: []string{
					"Normal heart rate",
					"Regular rhythm",
					"Normal blood pressure",
					"Standard brain wave patterns",
				},
			}},
		},
	}
}

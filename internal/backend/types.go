package backend

import "io"

type ChatRequest struct {
	Message        string `json:"message"`
	PatientProfile any    `json:"patientProfile,omitempty"`
}

type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Type     string `json:"type,omitempty"`
}

type AnalyzeRequest struct {
	Vitals      map[string]any `json:"vitals,omitempty"`
	Conditions  []string       `json:"conditions,omitempty"`
	Medications []any          `json:"medications,omitempty"`
}

type AnalyzeResponse struct {
	Success  bool   `json:"success"`
	Analysis string `json:"analysis"`
	Type     string `json:"type,omitempty"`
}

type Document struct {
	Name    string
	Content io.Reader
}

type ScanResponse struct {
	Success bool         `json:"success"`
	Results []ScanResult `json:"results"`
}

type ScanResult struct {
	Type    string    `json:"type"` // success|error
	Message string    `json:"message"`
	Data    *ScanData `json:"data,omitempty"`
}

type ScanData struct {
	Conditions   []string          `json:"conditions,omitempty"`
	Medications  []ScanMedication  `json:"medications,omitempty"`
	Appointments []ScanAppointment `json:"appointments,omitempty"`
	PatientInfo  map[string]any    `json:"patientInfo,omitempty"`
}

type ScanMedication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

type ScanAppointment struct {
	Type  string `json:"type"`
	Date  string `json:"date"`
	Notes string `json:"notes,omitempty"`
}

// Combine folds the successful scan results into one record. Lists are
// appended in result order; later patientInfo keys override earlier ones.
// It returns nil when no result succeeded.
func Combine(results []ScanResult) *ScanData {
	var combined *ScanData
	for _, r := range results {
		if r.Type != "success" || r.Data == nil {
			continue
		}
		if combined == nil {
			combined = &ScanData{}
		}
		combined.Conditions = append(combined.Conditions, r.Data.Conditions...)
		combined.Medications = append(combined.Medications, r.Data.Medications...)
		combined.Appointments = append(combined.Appointments, r.Data.Appointments...)
		for k, v := range r.Data.PatientInfo {
			if combined.PatientInfo == nil {
				combined.PatientInfo = make(map[string]any)
			}
			combined.PatientInfo[k] = v
		}
	}
	return combined
}

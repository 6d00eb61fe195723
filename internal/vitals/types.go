package vitals

import "fmt"

const (
	StreamECG = "ecg"
	StreamEEG = "eeg"
)

// Sample is one ECG reading. Timestamp is unix milliseconds.
type Sample struct {
	Timestamp      int64          `json:"timestamp"`
	Value          float64        `json:"value"`
	IsAnomaly      bool           `json:"isAnomaly"`
	AnomalyContext *SampleContext `json:"anomalyContext,omitempty"`
}

type SampleContext struct {
	Previous  *Sample `json:"previous,omitempty"`
	Next      *Sample `json:"next,omitempty"`
	Deviation float64 `json:"deviation"`
}

// EEGSample carries the four band powers of one EEG reading.
type EEGSample struct {
	Timestamp      int64       `json:"timestamp"`
	Alpha          float64     `json:"alpha"`
	Beta           float64     `json:"beta"`
	Theta          float64     `json:"theta"`
	Delta          float64     `json:"delta"`
	IsAnomaly      bool        `json:"isAnomaly"`
	AnomalyContext *EEGContext `json:"anomalyContext,omitempty"`
}

type EEGContext struct {
	Previous  *EEGSample `json:"previous,omitempty"`
	Next      *EEGSample `json:"next,omitempty"`
	Deviation float64    `json:"deviation"`
}

// FetchError reports a failed poll of one stream. The buffer is left as it was.
type FetchError struct {
	Stream string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s samples: %v", e.Stream, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

package vitals

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

const (
	syntheticPoints = 100
	// share of points flagged as anomalous per generated window
	contamination = 0.1
)

// Synthetic produces realistic ECG and EEG windows in process. It serves as the
// feed when no backend is configured and backs the /api/ecg and /api/eeg
// routes.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewSynthetic(seed int64, now func() time.Time) *Synthetic {
	if now == nil {
		now = time.Now
	}
	return &Synthetic{
		rng: rand.New(rand.NewSource(seed)),
		now: now,
	}
}

func (s *Synthetic) noise() float64 {
	return s.rng.NormFloat64() * 0.05
}

// ECG returns a P/QRS/T shaped trace of 100 points spaced one second apart,
// ending at the current time.
func (s *Synthetic) ECG() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.now()
	data := make([]Sample, syntheticPoints)
	for i := range data {
		t := float64(i) / 10
		pWave := 0.25 * math.Sin(t*math.Pi*2)
		var qrs float64
		switch i % 10 {
		case 0:
			qrs = 1.5
		case 9:
			qrs = -0.5
		case 1:
			qrs = -0.3
		}
		tWave := 0.35 * math.Sin(t*math.Pi*1.5)

		data[i] = Sample{
			Timestamp: end.Add(-time.Duration(syntheticPoints-1-i) * time.Second).UnixMilli(),
			Value:     pWave + qrs + tWave + s.noise(),
		}
	}

	flagECG(data)
	return data
}

// EEG returns alpha/beta/theta/delta band traces of 100 points.
func (s *Synthetic) EEG() []EEGSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.now()
	data := make([]EEGSample, syntheticPoints)
	for i := range data {
		t := float64(i) / 10
		n := s.noise()
		data[i] = EEGSample{
			Timestamp: end.Add(-time.Duration(syntheticPoints-1-i) * time.Second).UnixMilli(),
			Alpha:     0.5*math.Sin(t*8)*(1+0.2*math.Sin(t*0.5)) + n,
			Beta:      0.3*math.Sin(t*20)*(1+0.1*math.Sin(t*0.3)) + n,
			Theta:     0.4*math.Sin(t*5)*(1+0.15*math.Sin(t*0.4)) + n,
			Delta:     0.6*math.Sin(t*2)*(1+0.25*math.Sin(t*0.2)) + n,
		}
	}

	flagEEG(data)
	return data
}

func (s *Synthetic) ECGFetcher() Fetcher[Sample] {
	return FetchFunc[Sample](func(ctx context.Context) ([]Sample, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.ECG(), nil
	})
}

func (s *Synthetic) EEGFetcher() Fetcher[EEGSample] {
	return FetchFunc[EEGSample](func(ctx context.Context) ([]EEGSample, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.EEG(), nil
	})
}

func flagECG(data []Sample) {
	values := make([]float64, len(data))
	for i, p := range data {
		values[i] = p.Value
	}
	for _, i := range outliers(values) {
		data[i].IsAnomaly = true
		if i == 0 || i == len(data)-1 {
			continue
		}
		prev, next := data[i-1], data[i+1]
		prev.AnomalyContext, next.AnomalyContext = nil, nil
		data[i].AnomalyContext = &SampleContext{
			Previous:  &prev,
			Next:      &next,
			Deviation: Deviation(values[i], values[i-1:i+2]),
		}
	}
}

// EEG outliers are judged on the alpha band.
func flagEEG(data []EEGSample) {
	values := make([]float64, len(data))
	for i, p := range data {
		values[i] = p.Alpha
	}
	for _, i := range outliers(values) {
		data[i].IsAnomaly = true
		if i == 0 || i == len(data)-1 {
			continue
		}
		prev, next := data[i-1], data[i+1]
		prev.AnomalyContext, next.AnomalyContext = nil, nil
		data[i].AnomalyContext = &EEGContext{
			Previous:  &prev,
			Next:      &next,
			Deviation: Deviation(values[i], values[i-1:i+2]),
		}
	}
}

// outliers returns the indices of the points furthest from the window mean,
// limited to the contamination share. Indices are returned in ascending order.
func outliers(values []float64) []int {
	n := int(float64(len(values)) * contamination)
	if n == 0 {
		return nil
	}

	mean, _ := meanStd(values)
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(values[idx[a]]-mean) > math.Abs(values[idx[b]]-mean)
	})

	picked := idx[:n]
	sort.Ints(picked)
	return picked
}

// Deviation is |x - mean| / std over window, or 0 when the window is flat or
// empty.
func Deviation(x float64, window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	mean, std := meanStd(window)
	if std == 0 {
		return 0
	}
	return math.Abs(x-mean) / std
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

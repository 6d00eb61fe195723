package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/recommend"
	"github.com/Skufu/vitalwatch/internal/vitals"
)

type countingFetch struct {
	calls atomic.Int32
	gate  chan struct{}
	err   atomic.Value
}

func (c *countingFetch) failWith(err error) { c.err.Store(&err) }

func (c *countingFetch) fail() error {
	if v, ok := c.err.Load().(*error); ok && v != nil {
		return *v
	}
	return nil
}

func ecgSource(c *countingFetch) *vitals.Source[vitals.Sample] {
	fetch := vitals.FetchFunc[vitals.Sample](func(ctx context.Context) ([]vitals.Sample, error) {
		n := c.calls.Add(1)
		if c.gate != nil {
			<-c.gate
		}
		if err := c.fail(); err != nil {
			return nil, err
		}
		return []vitals.Sample{{Timestamp: int64(n), Value: 0.1}}, nil
	})
	return vitals.NewSource[vitals.Sample](vitals.StreamECG, fetch, vitals.NewBuffer[vitals.Sample](100))
}

func eegSource(c *countingFetch) *vitals.Source[vitals.EEGSample] {
	fetch := vitals.FetchFunc[vitals.EEGSample](func(ctx context.Context) ([]vitals.EEGSample, error) {
		n := c.calls.Add(1)
		if err := c.fail(); err != nil {
			return nil, err
		}
		return []vitals.EEGSample{{Timestamp: int64(n), Alpha: 0.2, Beta: 0.1, Theta: 0.05, Delta: 0.02}}, nil
	})
	return vitals.NewSource[vitals.EEGSample](vitals.StreamEEG, fetch, vitals.NewBuffer[vitals.EEGSample](100))
}

type fakeAnalyzer struct {
	calls     atomic.Int32
	anomalies []anomaly.Anomaly
	entered   chan struct{}
	release   chan struct{}
	seen      func() State
	seenState State
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, ecg []vitals.Sample, eeg []vitals.EEGSample, previous []anomaly.Anomaly) anomaly.Result {
	f.calls.Add(1)
	if f.seen != nil {
		f.seenState = f.seen()
	}
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	return anomaly.Result{Anomalies: f.anomalies, Branch: anomaly.BranchRemote}
}

type fakeRecommender struct {
	calls     atomic.Int32
	err       error
	seen      func() State
	seenState State
}

func (f *fakeRecommender) Generate(ctx context.Context, anomalies []anomaly.Anomaly) ([]recommend.Recommendation, error) {
	f.calls.Add(1)
	if f.seen != nil {
		f.seenState = f.seen()
	}
	if f.err != nil {
		return nil, f.err
	}
	return recommend.Reference(time.Now()), nil
}

func testAnomalies(id string) []anomaly.Anomaly {
	return []anomaly.Anomaly{{ID: id, Type: anomaly.TypeECG, Severity: anomaly.SeverityLow, Status: anomaly.StatusActive}}
}

func TestRefreshPublishesCycle(t *testing.T) {
	ecgFetch, eegFetch := &countingFetch{}, &countingFetch{}
	an := &fakeAnalyzer{anomalies: testAnomalies("a")}
	rec := &fakeRecommender{}
	agg := New(ecgSource(ecgFetch), eegSource(eegFetch), an, rec)
	defer agg.Close()

	var published []Snapshot
	agg.Subscribe(func(s Snapshot) { published = append(published, s) })

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), snap.Cycle)
	assert.Equal(t, StateIdle, snap.State)
	assert.Len(t, snap.ECG, 1)
	assert.Len(t, snap.EEG, 1)
	assert.Equal(t, "a", snap.Anomalies[0].ID)
	assert.Len(t, snap.Recommendations, 4)
	assert.Equal(t, anomaly.BranchRemote, snap.AnalysisSource)
	require.Len(t, published, 1)
	assert.Equal(t, snap.Cycle, published[0].Cycle)
	assert.Equal(t, snap, agg.Snapshot())
}

func TestRefreshStateMachine(t *testing.T) {
	an := &fakeAnalyzer{anomalies: testAnomalies("a")}
	rec := &fakeRecommender{}
	agg := New(ecgSource(&countingFetch{}), eegSource(&countingFetch{}), an, rec)
	defer agg.Close()
	an.seen = agg.State
	rec.seen = agg.State

	_, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateAnalyzing, an.seenState)
	assert.Equal(t, StateRecommending, rec.seenState)
	assert.Equal(t, StateIdle, agg.State())
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	ecgFetch := &countingFetch{gate: make(chan struct{})}
	eegFetch := &countingFetch{}
	an := &fakeAnalyzer{anomalies: testAnomalies("a")}
	rec := &fakeRecommender{}
	agg := New(ecgSource(ecgFetch), eegSource(eegFetch), an, rec)
	defer agg.Close()

	var wg sync.WaitGroup
	results := make([]Snapshot, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = agg.Refresh(context.Background())
	}()
	require.Eventually(t, func() bool { return ecgFetch.calls.Load() == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = agg.Refresh(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(ecgFetch.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), ecgFetch.calls.Load())
	assert.Equal(t, int32(1), eegFetch.calls.Load())
	assert.Equal(t, int32(1), an.calls.Load())
	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Equal(t, results[0], results[1])
}

func TestFetchFailureSkipsDownstream(t *testing.T) {
	ecgFetch, eegFetch := &countingFetch{}, &countingFetch{}
	an := &fakeAnalyzer{anomalies: testAnomalies("a")}
	rec := &fakeRecommender{}
	agg := New(ecgSource(ecgFetch), eegSource(eegFetch), an, rec)
	defer agg.Close()

	_, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	ecgFetch.failWith(errors.New("backend down"))
	snap, err := agg.Refresh(context.Background())

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StateFetchingSamples, se.Stage)
	var fe *vitals.FetchError
	assert.True(t, errors.As(err, &fe))

	assert.Equal(t, int32(1), an.calls.Load())
	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Len(t, snap.ECG, 1)
	assert.Len(t, snap.EEG, 2)
	assert.Equal(t, "a", snap.Anomalies[0].ID)
	assert.NotEmpty(t, snap.LastError)
	assert.Equal(t, StateIdle, agg.State())
}

func TestRecommendFailureKeepsPreviousPair(t *testing.T) {
	an := &fakeAnalyzer{anomalies: testAnomalies("first")}
	rec := &fakeRecommender{}
	agg := New(ecgSource(&countingFetch{}), eegSource(&countingFetch{}), an, rec)
	defer agg.Close()

	first, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	an.anomalies = testAnomalies("second")
	rec.err = errors.New("engine offline")
	second, err := agg.Refresh(context.Background())

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StateRecommending, se.Stage)

	assert.Len(t, second.ECG, 2)
	assert.Equal(t, "first", second.Anomalies[0].ID)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}

func TestCloseDiscardsInFlightCycle(t *testing.T) {
	an := &fakeAnalyzer{
		anomalies: testAnomalies("late"),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	agg := New(ecgSource(&countingFetch{}), eegSource(&countingFetch{}), an, &fakeRecommender{})

	var notified atomic.Bool
	agg.Subscribe(func(Snapshot) { notified.Store(true) })

	done := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(context.Background())
		done <- err
	}()

	<-an.entered
	agg.Close()
	close(an.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh did not return")
	}

	snap := agg.Snapshot()
	assert.Equal(t, uint64(0), snap.Cycle)
	assert.Empty(t, snap.Anomalies)
	assert.False(t, notified.Load())

	_, err := agg.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRefreshCallerContextOnlyBoundsWait(t *testing.T) {
	ecgFetch := &countingFetch{gate: make(chan struct{})}
	agg := New(ecgSource(ecgFetch), eegSource(&countingFetch{}), &fakeAnalyzer{anomalies: testAnomalies("a")}, &fakeRecommender{})
	defer agg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := agg.Refresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(ecgFetch.gate)
	assert.Eventually(t, func() bool { return agg.Snapshot().Cycle == 1 }, time.Second, 5*time.Millisecond)
}

func TestFallbackCycleWithReferenceData(t *testing.T) {
	ecg := vitals.NewSource[vitals.Sample](vitals.StreamECG,
		vitals.FetchFunc[vitals.Sample](func(ctx context.Context) ([]vitals.Sample, error) {
			return []vitals.Sample{{Timestamp: 0, Value: 0.1}}, nil
		}),
		vitals.NewBuffer[vitals.Sample](100))
	eeg := vitals.NewSource[vitals.EEGSample](vitals.StreamEEG,
		vitals.FetchFunc[vitals.EEGSample](func(ctx context.Context) ([]vitals.EEGSample, error) {
			return []vitals.EEGSample{{Timestamp: 0, Alpha: 0.2, Beta: 0.1, Theta: 0.05, Delta: 0.02}}, nil
		}),
		vitals.NewBuffer[vitals.EEGSample](100))

	agg := New(ecg, eeg, anomaly.NewAnalyzer(nil), recommend.NewEngine(recommend.WithDelay(0)))
	defer agg.Close()

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Anomalies, 4)
	assert.Equal(t, "1", snap.Anomalies[0].ID)
	assert.Equal(t, anomaly.SeverityHigh, snap.Anomalies[0].Severity)
	assert.Equal(t, anomaly.TypeCombined, snap.Anomalies[0].Type)
	assert.Equal(t, anomaly.BranchFallback, snap.AnalysisSource)
	assert.Len(t, snap.Recommendations, 4)
}

func TestAutoRefresh(t *testing.T) {
	ecgFetch := &countingFetch{}
	agg := New(ecgSource(ecgFetch), eegSource(&countingFetch{}), &fakeAnalyzer{anomalies: testAnomalies("a")}, &fakeRecommender{})

	agg.StartAutoRefresh(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return agg.Snapshot().Cycle >= 3 }, 2*time.Second, 5*time.Millisecond)

	agg.Close()
	time.Sleep(20 * time.Millisecond)
	calls := ecgFetch.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, ecgFetch.calls.Load())
}

func TestUnsubscribe(t *testing.T) {
	agg := New(ecgSource(&countingFetch{}), eegSource(&countingFetch{}), &fakeAnalyzer{anomalies: testAnomalies("a")}, &fakeRecommender{})
	defer agg.Close()

	count := 0
	unsub := agg.Subscribe(func(Snapshot) { count++ })

	_, _ = agg.Refresh(context.Background())
	unsub()
	_, _ = agg.Refresh(context.Background())

	assert.Equal(t, 1, count)
}

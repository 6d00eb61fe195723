package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/metrics"
	"github.com/Skufu/vitalwatch/internal/recommend"
	"github.com/Skufu/vitalwatch/internal/vitals"
)

type State string

const (
	StateIdle            State = "idle"
	StateFetchingSamples State = "fetching_samples"
	StateAnalyzing       State = "analyzing"
	StateRecommending    State = "recommending"
)

var ErrClosed = errors.New("dashboard: aggregator closed")

// StageError reports the stage at which a refresh cycle stopped.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dashboard refresh %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Poller[T any] interface {
	Poll(ctx context.Context) ([]T, error)
	Buffer() *vitals.Buffer[T]
}

type Analyzer interface {
	Analyze(ctx context.Context, ecg []vitals.Sample, eeg []vitals.EEGSample, previous []anomaly.Anomaly) anomaly.Result
}

type Recommender interface {
	Generate(ctx context.Context, anomalies []anomaly.Anomaly) ([]recommend.Recommendation, error)
}

// Snapshot is the published dashboard view. Anomalies and Recommendations
// always come from the same cycle.
type Snapshot struct {
	ECG             []vitals.Sample            `json:"ecg"`
	EEG             []vitals.EEGSample         `json:"eeg"`
	Anomalies       []anomaly.Anomaly          `json:"anomalies"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
	State           State                      `json:"state"`
	AnalysisSource  string                     `json:"analysisSource,omitempty"`
	LastError       string                     `json:"lastError,omitempty"`
	Cycle           uint64                     `json:"cycle"`
	UpdatedAt       time.Time                  `json:"updatedAt"`
}

type Aggregator struct {
	ecg         Poller[vitals.Sample]
	eeg         Poller[vitals.EEGSample]
	analyzer    Analyzer
	recommender Recommender
	log         *zap.Logger
	now         func() time.Time

	group      singleflight.Group
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	snap    Snapshot
	state   State
	gen     uint64
	closed  bool
	subs    map[int]func(Snapshot)
	nextSub int
}

type Option func(*Aggregator)

func WithLogger(log *zap.Logger) Option {
	return func(a *Aggregator) { a.log = logger.Module(log, "dashboard") }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func New(ecg Poller[vitals.Sample], eeg Poller[vitals.EEGSample], analyzer Analyzer, recommender Recommender, opts ...Option) *Aggregator {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Aggregator{
		ecg:         ecg,
		eeg:         eeg,
		analyzer:    analyzer,
		recommender: recommender,
		log:         zap.NewNop(),
		now:         time.Now,
		lifeCtx:     ctx,
		lifeCancel:  cancel,
		state:       StateIdle,
		subs:        make(map[int]func(Snapshot)),
		snap: Snapshot{
			ECG:             []vitals.Sample{},
			EEG:             []vitals.EEGSample{},
			Anomalies:       []anomaly.Anomaly{},
			Recommendations: []recommend.Recommendation{},
			State:           StateIdle,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot returns the last published view with the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.snap
	s.State = a.state
	return s
}

func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Subscribe registers fn for every published snapshot and returns a function
// that removes it.
func (a *Aggregator) Subscribe(fn func(Snapshot)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// Refresh runs one fetch, analyze, recommend cycle. A call made while a cycle
// is in flight waits for that cycle and receives its result. ctx only bounds
// the wait; the cycle itself runs until done or Close.
func (a *Aggregator) Refresh(ctx context.Context) (Snapshot, error) {
	ch := a.group.DoChan("refresh", func() (any, error) {
		return a.runCycle()
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordRefreshCoalesced()
		}
		snap, _ := res.Val.(Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return a.Snapshot(), ctx.Err()
	}
}

// StartAutoRefresh refreshes immediately and then every interval until Close.
// A non-positive interval is a no-op.
func (a *Aggregator) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.autoRefresh()
		for {
			select {
			case <-ticker.C:
				a.autoRefresh()
			case <-a.lifeCtx.Done():
				return
			}
		}
	}()
}

func (a *Aggregator) autoRefresh() {
	if _, err := a.Refresh(a.lifeCtx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
		a.log.Warn("scheduled refresh failed", zap.Error(err))
	}
}

// Close stops background refresh. A cycle still in flight is abandoned and
// never published.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.gen++
	a.mu.Unlock()

	a.lifeCancel()
	a.wg.Wait()
}

func (a *Aggregator) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Aggregator) runCycle() (Snapshot, error) {
	a.mu.Lock()
	if a.closed {
		snap := a.snap
		a.mu.Unlock()
		return snap, ErrClosed
	}
	gen := a.gen
	previous := a.snap
	a.state = StateFetchingSamples
	a.mu.Unlock()

	ctx := a.lifeCtx
	start := time.Now()

	next := previous
	next.LastError = ""

	// FetchingSamples
	var wg sync.WaitGroup
	var ecgErr, eegErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, ecgErr = a.ecg.Poll(ctx)
	}()
	go func() {
		defer wg.Done()
		_, eegErr = a.eeg.Poll(ctx)
	}()
	wg.Wait()

	next.ECG = a.ecg.Buffer().Latest()
	next.EEG = a.eeg.Buffer().Latest()

	if err := errors.Join(ecgErr, eegErr); err != nil {
		return a.finish(gen, next, &StageError{Stage: StateFetchingSamples, Err: err}, start)
	}

	// Analyzing
	a.setState(StateAnalyzing)
	result := a.analyzer.Analyze(ctx, next.ECG, next.EEG, previous.Anomalies)
	if err := ctx.Err(); err != nil {
		return a.finish(gen, next, &StageError{Stage: StateAnalyzing, Err: err}, start)
	}
	if result.Err != nil {
		a.log.Info("analysis fell back to reference anomalies", zap.Error(result.Err))
	}

	// Recommending
	a.setState(StateRecommending)
	recs, err := a.recommender.Generate(ctx, result.Anomalies)
	if err != nil {
		return a.finish(gen, next, &StageError{Stage: StateRecommending, Err: err}, start)
	}

	next.Anomalies = result.Anomalies
	next.Recommendations = recs
	next.AnalysisSource = result.Branch
	return a.finish(gen, next, nil, start)
}

// finish publishes next unless the aggregator was closed since the cycle
// began, and returns to Idle.
func (a *Aggregator) finish(gen uint64, next Snapshot, cycleErr error, start time.Time) (Snapshot, error) {
	if cycleErr != nil {
		next.LastError = cycleErr.Error()
	}
	next.UpdatedAt = a.now()
	next.State = StateIdle

	a.mu.Lock()
	if a.closed || a.gen != gen {
		a.state = StateIdle
		snap := a.snap
		a.mu.Unlock()
		a.log.Debug("discarding refresh result after close")
		return snap, ErrClosed
	}
	next.Cycle = a.snap.Cycle + 1
	a.snap = next
	a.state = StateIdle
	subs := make([]func(Snapshot), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	metrics.RecordRefresh(cycleErr, time.Since(start))
	if cycleErr != nil {
		a.log.Warn("refresh cycle incomplete", zap.Error(cycleErr))
	} else {
		a.log.Debug("refresh cycle published",
			zap.Uint64("cycle", next.Cycle),
			zap.String("analysis", next.AnalysisSource),
			zap.Int("anomalies", len(next.Anomalies)),
		)
	}

	for _, fn := range subs {
		fn(next)
	}
	return next, cycleErr
}

package vitals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/metrics"
)

const DefaultPollInterval = time.Second

// ErrStale is returned by Poll when Stop was called while the fetch was in
// flight. The fetched samples were discarded.
var ErrStale = errors.New("vitals: poll result discarded after stop")

type Fetcher[T any] interface {
	Fetch(ctx context.Context) ([]T, error)
}

type FetchFunc[T any] func(ctx context.Context) ([]T, error)

func (f FetchFunc[T]) Fetch(ctx context.Context) ([]T, error) {
	return f(ctx)
}

// Source polls one stream into its buffer. Only the source writes to the
// buffer.
type Source[T any] struct {
	stream   string
	fetcher  Fetcher[T]
	buffer   *Buffer[T]
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	running  bool
	gen      uint64
	cancel   context.CancelFunc
	stopChan chan struct{}
	done     chan struct{}
	subs     []func([]T, error)
}

type SourceOption[T any] func(*Source[T])

func WithInterval[T any](d time.Duration) SourceOption[T] {
	return func(s *Source[T]) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger[T any](log *zap.Logger) SourceOption[T] {
	return func(s *Source[T]) {
		s.log = logger.Module(log, "vitals."+s.stream)
	}
}

func NewSource[T any](stream string, fetcher Fetcher[T], buffer *Buffer[T], opts ...SourceOption[T]) *Source[T] {
	done := make(chan struct{})
	close(done)

	s := &Source[T]{
		stream:   stream,
		fetcher:  fetcher,
		buffer:   buffer,
		interval: DefaultPollInterval,
		log:      zap.NewNop(),
		done:     done,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Source[T]) Stream() string { return s.stream }

func (s *Source[T]) Buffer() *Buffer[T] { return s.buffer }

// Subscribe registers fn to receive the outcome of every applied poll. A
// failed poll delivers a nil slice and a *FetchError.
func (s *Source[T]) Subscribe(fn func(samples []T, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Start launches the polling loop and returns immediately. The first poll runs
// right away, then every interval until Stop or ctx is done.
func (s *Source[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%s source already running", s.stream)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.gen++
	s.cancel = cancel
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(loopCtx, s.gen, s.stopChan, s.done)

	s.log.Info("polling started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Source[T]) loop(ctx context.Context, gen uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	_, _ = s.poll(ctx, gen)

	for {
		select {
		case <-ticker.C:
			_, _ = s.poll(ctx, gen)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts polling without waiting for an in-flight fetch. Any result that
// arrives afterwards is discarded. Use Done to wait for the loop to exit.
func (s *Source[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.gen++
	s.cancel()
	close(s.stopChan)

	s.log.Info("polling stopped")
}

// Done is closed once the polling loop has exited.
func (s *Source[T]) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Source[T]) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Poll performs one fetch and appends the result to the buffer.
func (s *Source[T]) Poll(ctx context.Context) ([]T, error) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	return s.poll(ctx, gen)
}

func (s *Source[T]) poll(ctx context.Context, gen uint64) ([]T, error) {
	samples, err := s.fetcher.Fetch(ctx)
	if err != nil {
		err = &FetchError{Stream: s.stream, Err: err}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.Debug("discarding stale poll result")
		return nil, ErrStale
	}
	if err == nil {
		s.buffer.AppendAll(samples)
	}
	subs := make([]func([]T, error), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	metrics.RecordPoll(s.stream, err)
	if err != nil {
		s.log.Warn("poll failed, keeping last buffer", zap.Error(err))
	}

	for _, fn := range subs {
		fn(samples, err)
	}

	if err != nil {
		return nil, err
	}
	return samples, nil
}

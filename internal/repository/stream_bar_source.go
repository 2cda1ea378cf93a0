package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
)

var ErrStreamClosed = errors.New("bar stream closed")

// StreamBarSource serves a live feed. Bars are kept in arrival order and
// readers block until the bar they need arrives. A reader finishes once a
// bar starting at or after its window end shows up.
type StreamBarSource struct {
	mu     sync.Mutex
	log    []models.Bar
	base   int // absolute index of log[0]
	max    int
	notify chan struct{}
	closed bool
}

type StreamOption func(*StreamBarSource)

// WithRetention caps how many bars are kept for late readers.
func WithRetention(n int) StreamOption {
	return func(s *StreamBarSource) {
		if n > 0 {
			s.max = n
		}
	}
}

func NewStreamBarSource(opts ...StreamOption) *StreamBarSource {
	s := &StreamBarSource{max: 50000, notify: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds bars from the feed and wakes blocked readers.
func (s *StreamBarSource) Append(bars ...models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	for _, b := range bars {
		if !b.Timeframe.Valid() {
			return fmt.Errorf("%w: %s", models.ErrUnknownTimeframe, b.Timeframe)
		}
	}
	s.log = append(s.log, bars...)
	if over := len(s.log) - s.max; over > 0 {
		s.log = append(s.log[:0:0], s.log[over:]...)
		s.base += over
	}
	close(s.notify)
	s.notify = make(chan struct{})
	return nil
}

// Close ends the feed; readers drain what is buffered and stop.
func (s *StreamBarSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.notify)
	}
	return nil
}

func (s *StreamBarSource) Bars(ctx context.Context, tf models.Timeframe, from, to time.Time) (domrepo.BarIterator, error) {
	return s.MergedBars(ctx, []models.Timeframe{tf}, from, to)
}

func (s *StreamBarSource) MergedBars(_ context.Context, tfs []models.Timeframe, from, to time.Time) (domrepo.BarIterator, error) {
	want := make(map[models.Timeframe]bool, len(tfs))
	for _, tf := range tfs {
		want[tf] = true
	}
	s.mu.Lock()
	start := s.base
	s.mu.Unlock()
	return &streamIterator{src: s, next: start, want: want, from: from, to: to}, nil
}

type streamIterator struct {
	src      *StreamBarSource
	next     int
	want     map[models.Timeframe]bool
	from, to time.Time
	done     bool
}

func (it *streamIterator) Next(ctx context.Context) (models.Bar, bool, error) {
	for {
		if it.done {
			return models.Bar{}, false, nil
		}
		s := it.src
		s.mu.Lock()
		if it.next < s.base {
			it.next = s.base
		}
		for it.next < s.base+len(s.log) {
			b := s.log[it.next-s.base]
			it.next++
			if !it.want[b.Timeframe] {
				continue
			}
			start := b.Start()
			if !start.Before(it.to) {
				it.done = true
				s.mu.Unlock()
				return models.Bar{}, false, nil
			}
			if !start.Before(it.from) {
				s.mu.Unlock()
				return b, true, nil
			}
		}
		if s.closed {
			s.mu.Unlock()
			return models.Bar{}, false, nil
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.Bar{}, false, ctx.Err()
		case <-wait:
		}
	}
}

func (it *streamIterator) Close() error {
	it.done = true
	return nil
}

var (
	_ domrepo.BarSource       = (*StreamBarSource)(nil)
	_ domrepo.MergedBarSource = (*StreamBarSource)(nil)
)

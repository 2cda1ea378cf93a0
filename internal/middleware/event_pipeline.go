package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	"Tradeflow/pkg/logger"
)

var ErrPipelineStopped = errors.New("event pipeline stopped")

// EventPipeline decouples event emission from publishing. Emit blocks while
// the buffer is full; a single worker publishes in order. Delivery is at most
// once: a publish that still fails after its retries is logged, counted and dropped.
type EventPipeline struct {
	pub     domrepo.Publisher
	metrics domrepo.Metrics
	logger  *logger.Logger

	bufSize  int
	attempts int
	backoff  time.Duration

	mu      sync.RWMutex
	ch      chan models.Event
	started bool
	stopped bool
	done    chan struct{}
}

type PipelineOption func(*EventPipeline)

// WithBufferSize sets how many events may wait for the publisher.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithPublishAttempts sets how many times a failed publish is tried.
func WithPublishAttempts(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithRetryBackoff(d time.Duration) PipelineOption {
	return func(p *EventPipeline) {
		if d > 0 {
			p.backoff = d
		}
	}
}

func NewEventPipeline(pub domrepo.Publisher, m domrepo.Metrics, l *logger.Logger, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		pub:      pub,
		metrics:  m,
		logger:   l,
		bufSize:  1024,
		attempts: 2,
		backoff:  50 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ch = make(chan models.Event, p.bufSize)
	return p
}

// Start launches the publishing worker.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for ev := range p.ch {
			p.publish(ctx, ev)
			p.metrics.SetPipelineDepth(len(p.ch))
		}
	}()
}

// Emit queues e, waiting for space while the buffer is full.
func (p *EventPipeline) Emit(ctx context.Context, e models.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPipelineStopped
	}
	select {
	case p.ch <- e:
		p.metrics.SetPipelineDepth(len(p.ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new events and waits until the queued ones are published.
func (p *EventPipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	close(p.ch)
	p.mu.Unlock()

	if started {
		<-p.done
	}
}

func (p *EventPipeline) publish(ctx context.Context, ev models.Event) {
	kind := string(ev.Type)
	backoff := p.backoff
	var err error
	for i := 1; i <= p.attempts; i++ {
		if err = p.pub.Publish(ctx, ev); err == nil {
			p.metrics.RecordEventPublished(kind)
			return
		}
		if i == p.attempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	p.metrics.RecordPublishFailure(kind)
	p.logger.Warn("event dropped",
		logger.String("event_type", kind),
		logger.String("trading_date", ev.TradingDate),
		logger.Time("timestamp", ev.Timestamp),
		logger.Error(err),
	)
}

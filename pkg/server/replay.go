package server

import (
	"context"
	"fmt"
	"time"

	"Tradeflow/internal/domain/models"
	mid "Tradeflow/internal/middleware"
	"Tradeflow/internal/usecase"
	"Tradeflow/pkg/logger"
)

// Replay runs phases of one trading day from the command line and exits.
type Replay struct {
	logger   *logger.Logger
	phases   *usecase.PhaseService
	pipeline *mid.EventPipeline
	interval time.Duration
}

func NewReplay(l *logger.Logger, phases *usecase.PhaseService, pipeline *mid.EventPipeline) *Replay {
	return &Replay{logger: l, phases: phases, pipeline: pipeline, interval: 50 * time.Millisecond}
}

// Run executes phase for date, then the later phases when chain is set. Events
// reach the pipeline's publisher before Run returns.
func (r *Replay) Run(ctx context.Context, date string, phase models.Phase, chain bool) error {
	date, err := r.phases.ResolveDate(date)
	if err != nil {
		return err
	}

	r.pipeline.Start(context.WithoutCancel(ctx))
	defer r.pipeline.Stop()

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.phases.Run(workerCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	for p, ok := phase, true; ok; p, ok = p.Next() {
		if err := r.runPhase(ctx, date, p); err != nil {
			return err
		}
		if !chain {
			break
		}
	}
	return nil
}

func (r *Replay) runPhase(ctx context.Context, date string, phase models.Phase) error {
	log := r.logger.With(logger.String("trading_date", date), logger.String("phase", string(phase)))
	res, err := r.phases.StartPhase(ctx, phase, date, map[string]string{"autoChain": "false"})
	if err != nil {
		return fmt.Errorf("start %s: %w", phase, err)
	}
	log.Info("phase started", logger.String("lifecycle", res.Lifecycle))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	since := 0
	for {
		st, err := r.phases.Poll(ctx, date, phase, since)
		if err != nil {
			return fmt.Errorf("poll %s: %w", phase, err)
		}
		since += len(st.Events)
		if st.Errored {
			return fmt.Errorf("phase %s %s: %s", date, phase, st.Error)
		}
		if st.Complete {
			log.Info("phase complete", logger.Int("events", since))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

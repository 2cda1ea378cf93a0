package repository

import (
	"context"
	"fmt"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
)

// TieredBarSource serves closed history from one source and the live tail
// from another. The split is the start of the bucket in progress: a window
// that ends before it reads history only, one that starts at or after it
// reads live only, and one that straddles it reads history then live.
type TieredBarSource struct {
	history domrepo.BarSource
	live    domrepo.BarSource
	now     func() time.Time
}

func NewTieredBarSource(history, live domrepo.BarSource) *TieredBarSource {
	return &TieredBarSource{history: history, live: live, now: time.Now}
}

func (s *TieredBarSource) cut(tf models.Timeframe) time.Time {
	return s.now().Truncate(tf.Duration())
}

func (s *TieredBarSource) Bars(ctx context.Context, tf models.Timeframe, from, to time.Time) (domrepo.BarIterator, error) {
	return s.MergedBars(ctx, []models.Timeframe{tf}, from, to)
}

func (s *TieredBarSource) MergedBars(ctx context.Context, tfs []models.Timeframe, from, to time.Time) (domrepo.BarIterator, error) {
	if len(tfs) == 0 {
		return nil, fmt.Errorf("tiered bars: no timeframes")
	}
	// The coarsest timeframe decides the split: its bucket in progress is not
	// in history yet.
	cut := s.cut(models.SortTimeframes(append([]models.Timeframe(nil), tfs...))[0])
	switch {
	case !to.After(cut):
		return domrepo.OpenMerged(ctx, s.history, tfs, from, to)
	case !cut.After(from):
		return domrepo.OpenMerged(ctx, s.live, tfs, from, to)
	}
	past, err := domrepo.OpenMerged(ctx, s.history, tfs, from, cut)
	if err != nil {
		return nil, err
	}
	tail, err := domrepo.OpenMerged(ctx, s.live, tfs, cut, to)
	if err != nil {
		_ = past.Close()
		return nil, err
	}
	return &chainIterator{its: []domrepo.BarIterator{past, tail}}, nil
}

// chainIterator drains its iterators one after another.
type chainIterator struct {
	its []domrepo.BarIterator
	i   int
}

func (c *chainIterator) Next(ctx context.Context) (models.Bar, bool, error) {
	for c.i < len(c.its) {
		b, ok, err := c.its[c.i].Next(ctx)
		if err != nil || ok {
			return b, ok, err
		}
		c.i++
	}
	return models.Bar{}, false, nil
}

func (c *chainIterator) Close() error {
	var first error
	for _, it := range c.its {
		if err := it.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ domrepo.BarSource       = (*TieredBarSource)(nil)
	_ domrepo.MergedBarSource = (*TieredBarSource)(nil)
)

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Tradeflow/internal/domain/models"
)

type mergeHead struct {
	it   BarIterator
	bar  models.Bar
	ok   bool
	done bool
}

// mergedBars interleaves iterators by timestamp. On equal timestamps the
// iterator listed first wins.
type mergedBars struct {
	heads []*mergeHead
}

// Merge interleaves its by timestamp; pass them coarsest timeframe first.
func Merge(its ...BarIterator) BarIterator {
	m := &mergedBars{}
	for _, it := range its {
		m.heads = append(m.heads, &mergeHead{it: it})
	}
	return m
}

// OpenMerged opens tfs on src as one ordered stream. Sources that merge
// natively are asked to.
func OpenMerged(ctx context.Context, src BarSource, tfs []models.Timeframe, from, to time.Time) (BarIterator, error) {
	if ms, ok := src.(MergedBarSource); ok {
		it, err := ms.MergedBars(ctx, tfs, from, to)
		if err != nil {
			return nil, fmt.Errorf("open merged bars: %w", err)
		}
		return it, nil
	}
	its := make([]BarIterator, 0, len(tfs))
	for _, tf := range tfs {
		it, err := src.Bars(ctx, tf, from, to)
		if err != nil {
			_ = Merge(its...).Close()
			return nil, fmt.Errorf("open %s bars: %w", tf, err)
		}
		its = append(its, it)
	}
	return Merge(its...), nil
}

func (m *mergedBars) Next(ctx context.Context) (models.Bar, bool, error) {
	var best *mergeHead
	for _, h := range m.heads {
		if h.done {
			continue
		}
		if !h.ok {
			bar, ok, err := h.it.Next(ctx)
			if err != nil {
				return models.Bar{}, false, err
			}
			if !ok {
				h.done = true
				continue
			}
			h.bar, h.ok = bar, true
		}
		if best == nil || h.bar.Timestamp.Before(best.bar.Timestamp) {
			best = h
		}
	}
	if best == nil {
		return models.Bar{}, false, nil
	}
	best.ok = false
	return best.bar, true, nil
}

func (m *mergedBars) Close() error {
	var errs []error
	for _, h := range m.heads {
		if err := h.it.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

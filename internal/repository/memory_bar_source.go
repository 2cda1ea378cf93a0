package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
)

// MemoryBarSource serves bars held in memory. Used by file replays and tests.
type MemoryBarSource struct {
	mu   sync.RWMutex
	bars map[models.Timeframe][]models.Bar
}

func NewMemoryBarSource(bars ...models.Bar) *MemoryBarSource {
	s := &MemoryBarSource{bars: make(map[models.Timeframe][]models.Bar)}
	s.Add(bars...)
	return s
}

// LoadBarsJSONL reads one JSON bar per line.
func LoadBarsJSONL(r io.Reader) (*MemoryBarSource, error) {
	s := NewMemoryBarSource()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var b models.Bar
		if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		s.Add(b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	return s, nil
}

// Add inserts bars keeping each timeframe ordered by timestamp.
func (s *MemoryBarSource) Add(bars ...models.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := map[models.Timeframe]bool{}
	for _, b := range bars {
		s.bars[b.Timeframe] = append(s.bars[b.Timeframe], b)
		touched[b.Timeframe] = true
	}
	for tf := range touched {
		list := s.bars[tf]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	}
}

func (s *MemoryBarSource) Bars(_ context.Context, tf models.Timeframe, from, to time.Time) (domrepo.BarIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Bar
	for _, b := range s.bars[tf] {
		if start := b.Start(); !start.Before(from) && start.Before(to) {
			out = append(out, b)
		}
	}
	return &SliceIterator{bars: out}, nil
}

// SliceIterator walks a fixed slice of bars.
type SliceIterator struct {
	bars []models.Bar
	i    int
}

func NewSliceIterator(bars []models.Bar) *SliceIterator {
	return &SliceIterator{bars: bars}
}

func (it *SliceIterator) Next(ctx context.Context) (models.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Bar{}, false, err
	}
	if it.i >= len(it.bars) {
		return models.Bar{}, false, nil
	}
	b := it.bars[it.i]
	it.i++
	return b, true, nil
}

func (it *SliceIterator) Close() error { return nil }

var _ domrepo.BarSource = (*MemoryBarSource)(nil)

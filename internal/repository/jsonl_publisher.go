package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
)

// JSONLinesPublisher writes one JSON event per line. The replay command uses
// it to dump a day to a file or stdout.
type JSONLinesPublisher struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

func NewJSONLinesPublisher(w io.Writer) *JSONLinesPublisher {
	return &JSONLinesPublisher{w: w, enc: json.NewEncoder(w)}
}

func (p *JSONLinesPublisher) Publish(_ context.Context, e models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(e); err != nil {
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}
	return nil
}

// Close closes the writer when it is a Closer.
func (p *JSONLinesPublisher) Close() error {
	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ domrepo.Publisher = (*JSONLinesPublisher)(nil)

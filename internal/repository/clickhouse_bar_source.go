package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"Tradeflow/internal/domain/models"
	domrepo "Tradeflow/internal/domain/repository"
	pkgch "Tradeflow/pkg/clickhouse"
	applogger "Tradeflow/pkg/logger"
)

const defaultBarsTable = "tradeflow.bars"

// BarSchema creates the bars table. ts is the bar's end time.
func BarSchema(table string) []string {
	db := "tradeflow"
	if i := strings.IndexByte(table, '.'); i > 0 {
		db = table[:i]
	}
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            symbol    LowCardinality(String),
            timeframe LowCardinality(String),
            ts        DateTime64(3, 'UTC'),
            open      Float64,
            high      Float64,
            low       Float64,
            close     Float64,
            volume    Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, timeframe, ts)`, table),
	}
}

// CHBarSource reads bars of one symbol from ClickHouse.
type CHBarSource struct {
	db     *sql.DB
	table  string
	symbol string
	l      *applogger.Logger
}

func NewCHBarSource(ch *pkgch.Client, table, symbol string, l *applogger.Logger) *CHBarSource {
	if table == "" {
		table = defaultBarsTable
	}
	return &CHBarSource{db: ch.DB(), table: table, symbol: symbol, l: l}
}

// barRange converts a bucket-start window into bounds on the stored end time.
func barRange(tf models.Timeframe, from, to time.Time) (time.Time, time.Time) {
	d := tf.Duration()
	return from.Add(d).UTC(), to.Add(d).UTC()
}

func (s *CHBarSource) Bars(ctx context.Context, tf models.Timeframe, from, to time.Time) (domrepo.BarIterator, error) {
	if tf.Duration() <= 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownTimeframe, tf)
	}
	lo, hi := barRange(tf, from, to)
	const qtpl = `
        SELECT ts, open, high, low, close, volume
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, s.table), s.symbol, string(tf), lo, hi)
	if err != nil {
		s.l.Error("clickhouse bars query error",
			applogger.String("table", s.table),
			applogger.String("symbol", s.symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query bars: %w", err)
	}
	return &rowsIterator{rows: rows, tf: tf}, nil
}

// StoreBatch inserts bars with multi-row VALUES, chunked.
func (s *CHBarSource) StoreBatch(ctx context.Context, bars []models.Bar) error {
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, s.symbol, string(b.Timeframe), b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, timeframe, ts, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarSource) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rowsIterator streams query rows as bars.
type rowsIterator struct {
	rows *sql.Rows
	tf   models.Timeframe
}

func (it *rowsIterator) Next(ctx context.Context) (models.Bar, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Bar{}, false, err
	}
	if !it.rows.Next() {
		if err := it.rows.Err(); err != nil {
			return models.Bar{}, false, fmt.Errorf("rows: %w", err)
		}
		return models.Bar{}, false, nil
	}
	b := models.Bar{Timeframe: it.tf}
	if err := it.rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
		return models.Bar{}, false, fmt.Errorf("scan bar: %w", err)
	}
	return b, true, nil
}

func (it *rowsIterator) Close() error { return it.rows.Close() }

var _ domrepo.BarSource = (*CHBarSource)(nil)

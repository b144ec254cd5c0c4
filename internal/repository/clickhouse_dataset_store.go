package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"StockAction/internal/domain/models"
	domrepo "StockAction/internal/domain/repository"
	pkgch "StockAction/pkg/clickhouse"
	applogger "StockAction/pkg/logger"
)

const insertChunk = 2000

// CHDatasetStore keeps the training table in ClickHouse: one row per
// (symbol, day) plus a layout table holding column names and vocabulary.
type CHDatasetStore struct {
	db     *sql.DB
	ch     *pkgch.Client
	rows   string
	layout string
	l      *applogger.Logger
}

func NewCHDatasetStore(ch *pkgch.Client, table string, l *applogger.Logger) (*CHDatasetStore, error) {
	rows, err := ch.Table(table)
	if err != nil {
		return nil, err
	}
	layout, err := ch.Table(table + "_layout")
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHDatasetStore{db: ch.DB(), ch: ch, rows: rows, layout: layout, l: l}, nil
}

func datasetSchema(rows, layout string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol       LowCardinality(String),
			date         Date,
			close        Float64,
			future_close Float64,
			change       Float64,
			features     Array(Float64),
			label        LowCardinality(String)
		) ENGINE = MergeTree ORDER BY (symbol, date)`, rows),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			columns    Array(String),
			vocabulary Array(String),
			created_at DateTime
		) ENGINE = MergeTree ORDER BY created_at`, layout),
	}
}

func (s *CHDatasetStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, datasetSchema(s.rows, s.layout))
}

// Save replaces the stored table with ds.
func (s *CHDatasetStore) Save(ctx context.Context, ds *models.Dataset) error {
	start := time.Now()
	for _, t := range []string{s.rows, s.layout} {
		if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("truncate %s: %w", t, err)
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (columns, vocabulary, created_at) VALUES (?, ?, ?)", s.layout)
	if _, err := s.db.ExecContext(ctx, q, ds.Columns, ds.Vocabulary, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert layout: %w", err)
	}

	for lo := 0; lo < len(ds.Rows); lo += insertChunk {
		hi := lo + insertChunk
		if hi > len(ds.Rows) {
			hi = len(ds.Rows)
		}
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*7)
		for _, r := range ds.Rows[lo:hi] {
			if len(r.Features) != len(ds.Columns) {
				return fmt.Errorf("%w: %s %s has %d features, want %d",
					ErrLayoutMismatch, r.Symbol, r.Date.Format("2006-01-02"), len(r.Features), len(ds.Columns))
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, r.Symbol, r.Date, r.Close, r.FutureClose, r.Change, r.Features, r.Label)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, date, close, future_close, change, features, label) VALUES %s",
			s.rows, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse dataset insert error",
				applogger.String("table", s.rows),
				applogger.Int("offset", lo),
				applogger.Error(err),
			)
			return fmt.Errorf("insert rows: %w", err)
		}
	}

	s.l.Info("clickhouse dataset saved",
		applogger.String("table", s.rows),
		applogger.Int("rows", len(ds.Rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CHDatasetStore) Load(ctx context.Context) (*models.Dataset, error) {
	start := time.Now()
	ds := &models.Dataset{}
	q := fmt.Sprintf("SELECT columns, vocabulary FROM %s ORDER BY created_at DESC LIMIT 1", s.layout)
	if err := s.db.QueryRowContext(ctx, q).Scan(&ds.Columns, &ds.Vocabulary); err != nil {
		return nil, fmt.Errorf("load layout: %w", err)
	}

	q = fmt.Sprintf(`
        SELECT symbol, date, close, future_close, change, features, label
        FROM %s
        ORDER BY symbol ASC, date ASC
    `, s.rows)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse dataset query error", applogger.String("table", s.rows), applogger.Error(err))
		return nil, fmt.Errorf("load rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Row
		if err := rows.Scan(&r.Symbol, &r.Date, &r.Close, &r.FutureClose, &r.Change, &r.Features, &r.Label); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if len(r.Features) != len(ds.Columns) {
			return nil, fmt.Errorf("%w: %s has %d features, want %d", ErrLayoutMismatch, r.Symbol, len(r.Features), len(ds.Columns))
		}
		ds.Rows = append(ds.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Info("clickhouse dataset loaded",
		applogger.String("table", s.rows),
		applogger.Int("rows", len(ds.Rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return ds, nil
}

func (s *CHDatasetStore) Close() error {
	return s.ch.Close()
}

var _ domrepo.DatasetStore = (*CHDatasetStore)(nil)

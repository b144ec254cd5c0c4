package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"StockAction/internal/domain/models"
	domrepo "StockAction/internal/domain/repository"
	pkgkafka "StockAction/pkg/kafka"
)

// NopRecorder discards predictions.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, []models.Prediction) error { return nil }
func (NopRecorder) Close() error                                      { return nil }

// SQLiteRecorder journals predictions to a local SQLite file.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create recorder dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at    INTEGER NOT NULL,
			as_of         INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			label         TEXT NOT NULL,
			confidence    REAL,
			probabilities TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_symbol ON predictions(symbol, created_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, preds []models.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO predictions
		(created_at, as_of, symbol, label, confidence, probabilities)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range preds {
		probs, err := json.Marshal(p.Probabilities)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode probabilities: %w", err)
		}
		created := p.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, created.Unix(), p.AsOf.Unix(), p.Symbol, p.Label, p.Confidence, string(probs)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", p.Symbol, err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest n predictions for symbol, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, symbol string, n int) ([]models.Prediction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT created_at, as_of, symbol, label, confidence, probabilities
		FROM predictions WHERE symbol = ? ORDER BY created_at DESC, id DESC LIMIT ?`, symbol, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var (
			p             models.Prediction
			created, asOf int64
			probs         string
		)
		if err := rows.Scan(&created, &asOf, &p.Symbol, &p.Label, &p.Confidence, &probs); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0).UTC()
		p.AsOf = time.Unix(asOf, 0).UTC()
		if probs != "" && probs != "null" {
			if err := json.Unmarshal([]byte(probs), &p.Probabilities); err != nil {
				return nil, fmt.Errorf("decode probabilities: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaRecorder publishes each prediction keyed by symbol. The producer is
// shared and owned by its provider, so Close leaves it open.
type KafkaRecorder struct {
	producer batchPublisher
	topic    string
}

func NewKafkaRecorder(producer *pkgkafka.Producer, topic string) *KafkaRecorder {
	return &KafkaRecorder{producer: producer, topic: topic}
}

func (k *KafkaRecorder) Record(ctx context.Context, preds []models.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(preds))
	for i, p := range preds {
		msgs[i] = pkgkafka.Message{Key: []byte(p.Symbol), Value: p}
	}
	return k.producer.PublishBatch(ctx, k.topic, msgs)
}

func (k *KafkaRecorder) Close() error {
	return nil
}

var (
	_ domrepo.PredictionRecorder = NopRecorder{}
	_ domrepo.PredictionRecorder = (*SQLiteRecorder)(nil)
	_ domrepo.PredictionRecorder = (*KafkaRecorder)(nil)
	_ domrepo.PredictionHistory  = (*SQLiteRecorder)(nil)
)

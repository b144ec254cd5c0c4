package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	drepo "StockAction/internal/domain/repository"
	"StockAction/internal/services/classifier"
	"StockAction/internal/services/labeling"
	applogger "StockAction/pkg/logger"
)

// TrainParams describes the model being trained and where it goes.
type TrainParams struct {
	Name     string
	ModelDir string
	Symbols  []string
	Horizon  int
	Train    classifier.TrainConfig
}

// Trainer fits a classifier on the persisted training table and saves the bundle.
type Trainer struct {
	store   drepo.DatasetStore
	labeler *labeling.Labeler
	table   *labeling.ThresholdTable
	params  TrainParams
	l       *applogger.Logger
}

func NewTrainer(store drepo.DatasetStore, table *labeling.ThresholdTable, params TrainParams, l *applogger.Logger) *Trainer {
	if l == nil {
		l = applogger.Nop()
	}
	return &Trainer{store: store, labeler: labeling.NewLabeler(table), table: table, params: params, l: l}
}

func (t *Trainer) Train(ctx context.Context) (*classifier.Model, error) {
	start := time.Now()
	ds, err := t.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	vocab := t.labeler.Vocabulary()
	if strings.Join(ds.Vocabulary, "\x00") != strings.Join(vocab, "\x00") {
		return nil, fmt.Errorf("dataset vocabulary %v does not match thresholds %v", ds.Vocabulary, vocab)
	}
	classes := ds.Classes()
	for i, c := range classes {
		if c < 0 {
			return nil, fmt.Errorf("row %d: label %q not in vocabulary", i, ds.Rows[i].Label)
		}
	}

	cfg := t.params.Train
	cfg.OnEpoch = func(s classifier.EpochStats) {
		t.l.Debug("epoch",
			applogger.Int("epoch", s.Epoch),
			applogger.Float64("loss", s.Loss),
			applogger.Float64("accuracy", s.Accuracy),
			applogger.Float64("val_loss", s.ValLoss),
			applogger.Float64("val_accuracy", s.ValAccuracy),
		)
	}
	t.l.Info("training started",
		applogger.Int("rows", len(ds.Rows)),
		applogger.Int("inputs", len(ds.Columns)),
		applogger.Int("classes", len(vocab)),
		applogger.Int("epochs", cfg.Epochs),
	)

	model, err := classifier.Train(ctx, ds.Inputs(), classes, len(vocab), cfg)
	if err != nil {
		return nil, err
	}
	man := &model.Manifest
	man.Name = t.params.Name
	man.Columns = append([]string(nil), ds.Columns...)
	man.Vocabulary = vocab
	man.Thresholds = t.table.Levels()
	man.Horizon = t.params.Horizon
	man.Symbols = append([]string(nil), t.params.Symbols...)

	if err := classifier.SaveBundle(t.params.ModelDir, model); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	met := man.Metrics
	t.l.Info("training finished",
		applogger.String("model_dir", t.params.ModelDir),
		applogger.Float64("train_loss", met.TrainLoss),
		applogger.Float64("train_accuracy", met.TrainAccuracy),
		applogger.Float64("test_loss", met.TestLoss),
		applogger.Float64("test_accuracy", met.TestAccuracy),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	for i, row := range met.Confusion {
		t.l.Info("confusion", applogger.String("actual", vocab[i]), applogger.Any("predicted", row))
	}
	return model, nil
}

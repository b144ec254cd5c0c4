package classifier

import (
	"context"
	"fmt"
	"time"
)

// TrainConfig mirrors the training section of the configuration.
type TrainConfig struct {
	TestSize      float64
	Seed          int64
	Epochs        int
	BatchSize     int
	EvalBatchSize int
	LearningRate  float64
	HiddenLayers  []int
	OnEpoch       func(EpochStats)
}

// Train splits the rows, fits the scaler on the training part only, trains the
// network, and scores both parts. The returned model's manifest carries the
// metrics; callers fill in the descriptive fields.
func Train(ctx context.Context, x [][]float64, y []int, classes int, cfg TrainConfig) (*Model, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 rows, got %d", ErrShapeMismatch, len(x))
	}
	for i, c := range y {
		if c < 0 || c >= classes {
			return nil, fmt.Errorf("row %d: class %d outside vocabulary of %d", i, c, classes)
		}
	}

	trainIdx, testIdx := Split(len(x), cfg.TestSize, cfg.Seed)
	trainX, trainY := Take(x, trainIdx), Take(y, trainIdx)
	testX, testY := Take(x, testIdx), Take(y, testIdx)

	scaler, err := FitScaler(trainX)
	if err != nil {
		return nil, err
	}
	if trainX, err = scaler.Transform(trainX); err != nil {
		return nil, err
	}
	if testX, err = scaler.Transform(testX); err != nil {
		return nil, err
	}

	net := NewNetwork(scaler.Width(), cfg.HiddenLayers, classes, cfg.Seed)
	history, err := net.Fit(ctx, trainX, trainY, FitOptions{
		Epochs:       cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		ValX:         testX,
		ValY:         testY,
		OnEpoch:      cfg.OnEpoch,
	})
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	m := &Model{Scaler: scaler, Network: net}
	m.Manifest.HiddenLayers = append([]int(nil), cfg.HiddenLayers...)
	m.Manifest.CreatedAt = time.Now().UTC()
	m.Manifest.Metrics = Metrics{TrainRows: len(trainX), TestRows: len(testX), History: history}

	met := &m.Manifest.Metrics
	if met.TrainLoss, met.TrainAccuracy, err = net.Evaluate(trainX, trainY, cfg.EvalBatchSize); err != nil {
		return nil, err
	}
	if met.TestLoss, met.TestAccuracy, err = net.Evaluate(testX, testY, cfg.EvalBatchSize); err != nil {
		return nil, err
	}
	probs, err := net.Probabilities(testX)
	if err != nil {
		return nil, err
	}
	met.Confusion = ConfusionMatrix(testY, Argmax(probs), classes)
	return m, nil
}

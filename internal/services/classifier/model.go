package classifier

import (
	"context"
	"fmt"
	"time"

	"StockAction/internal/services/labeling"
)

// Manifest describes what a trained model expects and how well it did.
type Manifest struct {
	Name         string           `json:"name"`
	Columns      []string         `json:"columns"`
	Vocabulary   []string         `json:"vocabulary"`
	Thresholds   []labeling.Level `json:"thresholds"`
	Horizon      int              `json:"horizon"`
	Symbols      []string         `json:"symbols"`
	HiddenLayers []int            `json:"hidden_layers"`
	Metrics      Metrics          `json:"metrics"`
	CreatedAt    time.Time        `json:"created_at"`
}

type Metrics struct {
	TrainRows     int          `json:"train_rows"`
	TestRows      int          `json:"test_rows"`
	TrainLoss     float64      `json:"train_loss"`
	TrainAccuracy float64      `json:"train_accuracy"`
	TestLoss      float64      `json:"test_loss"`
	TestAccuracy  float64      `json:"test_accuracy"`
	Confusion     [][]int      `json:"confusion"`
	History       []EpochStats `json:"history,omitempty"`
}

// Model couples a network with the standardization it was trained under.
// Every row it scores goes through the stored scaler; it is never refit.
type Model struct {
	Manifest Manifest
	Scaler   *Scaler
	Network  *Network
}

func (m *Model) Vocabulary() []string { return append([]string(nil), m.Manifest.Vocabulary...) }

func (m *Model) Columns() []string { return append([]string(nil), m.Manifest.Columns...) }

func (m *Model) Defaults() []float64 {
	if m.Scaler == nil {
		return nil
	}
	return append([]float64(nil), m.Scaler.Means...)
}

// Predict standardizes raw feature rows and returns a distribution over the vocabulary for each.
func (m *Model) Predict(_ context.Context, inputs [][]float64) ([][]float64, error) {
	if m.Scaler == nil || m.Network == nil {
		return nil, ErrNotFitted
	}
	scaled, err := m.Scaler.Transform(inputs)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	return m.Network.Probabilities(scaled)
}

// CheckLayout fails when the model was trained on different columns or labels.
func (m *Model) CheckLayout(columns, vocabulary []string) error {
	if err := sameStrings("columns", m.Manifest.Columns, columns); err != nil {
		return err
	}
	return sameStrings("vocabulary", m.Manifest.Vocabulary, vocabulary)
}

func sameStrings(what string, have, want []string) error {
	if len(have) != len(want) {
		return fmt.Errorf("%w: model has %d %s, configuration has %d", ErrShapeMismatch, len(have), what, len(want))
	}
	for i := range have {
		if have[i] != want[i] {
			return fmt.Errorf("%w: %s[%d] is %q in model, %q in configuration", ErrShapeMismatch, what, i, have[i], want[i])
		}
	}
	return nil
}

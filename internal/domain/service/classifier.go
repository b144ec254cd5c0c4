package service

import "context"

// Classifier maps feature rows onto probability vectors over the action vocabulary.
type Classifier interface {
	Predict(ctx context.Context, inputs [][]float64) ([][]float64, error)
	Vocabulary() []string
	Columns() []string
	// Defaults are the training means, used in place of undefined inference inputs.
	Defaults() []float64
}

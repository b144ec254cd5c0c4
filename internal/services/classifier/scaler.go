package classifier

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrShapeMismatch = errors.New("input shape does not match model")
	ErrNotFitted     = errors.New("model is not fitted")
)

// Scaler standardizes each column to zero mean and unit variance using the
// population standard deviation. Columns with zero spread keep a scale of 1.
type Scaler struct {
	Means  []float64 `json:"means"`
	Scales []float64 `json:"scales"`
}

// FitScaler learns per-column means and scales from x.
func FitScaler(x [][]float64) (*Scaler, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("fit scaler: %w: no rows", ErrShapeMismatch)
	}
	m, err := toDense(x)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	rows, cols := m.Dims()
	s := &Scaler{Means: make([]float64, cols), Scales: make([]float64, cols)}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean, variance := stat.MeanVariance(col, nil)
		if rows < 2 {
			variance = 0
		} else {
			variance = variance * float64(rows-1) / float64(rows)
		}
		s.Means[j] = mean
		s.Scales[j] = 1
		if variance > 0 {
			s.Scales[j] = sqrt(variance)
		}
	}
	return s, nil
}

// Width is the number of columns the scaler was fit on.
func (s *Scaler) Width() int { return len(s.Means) }

// Transform returns a standardized copy of x.
func (s *Scaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		r, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// TransformRow standardizes a single row.
func (s *Scaler) TransformRow(row []float64) ([]float64, error) {
	if len(s.Means) == 0 {
		return nil, ErrNotFitted
	}
	if len(row) != len(s.Means) {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrShapeMismatch, len(row), len(s.Means))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Means[j]) / s.Scales[j]
	}
	return out, nil
}

func toDense(x [][]float64) (*mat.Dense, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrShapeMismatch)
	}
	cols := len(x[0])
	if cols == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrShapeMismatch)
	}
	data := make([]float64, 0, len(x)*cols)
	for i, row := range x {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(x), cols, data), nil
}

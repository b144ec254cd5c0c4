package labeling

import (
	"errors"
	"fmt"
)

var (
	ErrThresholdOrder = errors.New("thresholds must be strictly increasing")
	ErrThresholdRange = errors.New("threshold must be in (0, 1]")
	ErrEmptyLabel     = errors.New("threshold label must not be empty")
)

// Level is one severity step: a move of at least Threshold (as a fraction) earns Label.
type Level struct {
	Threshold float64 `json:"threshold"`
	Label     string  `json:"label"`
}

// ThresholdTable is an ordered list of severity levels, weakest first.
type ThresholdTable struct {
	levels []Level
}

// NewThresholdTable validates the levels and returns an immutable table.
// An empty table is allowed and yields a vocabulary of just "Hold".
func NewThresholdTable(levels []Level) (*ThresholdTable, error) {
	out := make([]Level, len(levels))
	for i, lv := range levels {
		if !(lv.Threshold > 0 && lv.Threshold <= 1) {
			return nil, fmt.Errorf("level %d (%s=%v): %w", i, lv.Label, lv.Threshold, ErrThresholdRange)
		}
		if lv.Label == "" {
			return nil, fmt.Errorf("level %d: %w", i, ErrEmptyLabel)
		}
		if i > 0 && lv.Threshold <= levels[i-1].Threshold {
			return nil, fmt.Errorf("level %d (%v after %v): %w", i, lv.Threshold, levels[i-1].Threshold, ErrThresholdOrder)
		}
		out[i] = lv
	}
	return &ThresholdTable{levels: out}, nil
}

// DefaultThresholdTable is the Fair / Moderate / Strong table at 4%, 10% and 16%.
func DefaultThresholdTable() *ThresholdTable {
	t, _ := NewThresholdTable([]Level{
		{Threshold: 0.04, Label: "Fair"},
		{Threshold: 0.10, Label: "Moderate"},
		{Threshold: 0.16, Label: "Strong"},
	})
	return t
}

func (t *ThresholdTable) Len() int { return len(t.levels) }

// Levels returns a copy of the table's levels.
func (t *ThresholdTable) Levels() []Level {
	out := make([]Level, len(t.levels))
	copy(out, t.levels)
	return out
}

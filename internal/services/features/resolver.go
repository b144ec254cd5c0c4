package features

import (
	"errors"
	"fmt"

	"StockAction/internal/domain/models"
)

var ErrMissingValues = errors.New("dataset still has missing values")

// Policy selects how the resolver treats rows with undefined values.
type Policy string

const (
	PolicyMean Policy = "mean"
	PolicyDrop Policy = "drop"
)

// ParsePolicy maps a config value onto a Policy, defaulting to mean fill.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyMean:
		return PolicyMean, nil
	case PolicyDrop:
		return PolicyDrop, nil
	default:
		return "", fmt.Errorf("unknown missing-value policy %q", s)
	}
}

// Report summarises what a resolver pass did.
type Report struct {
	RowsWithMissing int
	CellsFilled     int
	RowsDropped     int
}

type Resolver struct {
	policy Policy
}

func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// MissingRows counts rows with at least one undefined feature.
func MissingRows(ds *models.Dataset) int {
	n := 0
	for _, r := range ds.Rows {
		if rowMissing(r.Features) {
			n++
		}
	}
	return n
}

// Resolve removes every undefined feature value in place. Mean fill replaces
// each one with the mean of its column's defined values over the whole table;
// drop removes the row. Running it on a complete table changes nothing.
func (r *Resolver) Resolve(ds *models.Dataset) (Report, error) {
	rep := Report{RowsWithMissing: MissingRows(ds)}
	if rep.RowsWithMissing == 0 {
		return rep, nil
	}

	switch r.policy {
	case PolicyDrop:
		kept := ds.Rows[:0]
		for _, row := range ds.Rows {
			if rowMissing(row.Features) {
				rep.RowsDropped++
				continue
			}
			kept = append(kept, row)
		}
		ds.Rows = kept
	default:
		width := len(ds.Columns)
		means := ColumnMeans(ds.Inputs(), width)
		for i := range ds.Rows {
			f := ds.Rows[i].Features
			for j := range f {
				if isMissing(f[j]) && j < width {
					f[j] = means[j]
					rep.CellsFilled++
				}
			}
		}
	}

	if MissingRows(ds) > 0 {
		return rep, fmt.Errorf("%w: a column has no defined values", ErrMissingValues)
	}
	return rep, nil
}

func rowMissing(f []float64) bool {
	for _, v := range f {
		if isMissing(v) {
			return true
		}
	}
	return false
}

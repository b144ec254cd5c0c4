package models

import "time"

// Row is one training example: a symbol on a date, its input features and
// the action label derived from the forward price change.
type Row struct {
	Symbol      string
	Date        time.Time
	Close       float64
	FutureClose float64
	Change      float64
	Features    []float64
	Label       string
}

// Dataset is an ordered set of rows sharing one column layout and label vocabulary.
type Dataset struct {
	Columns    []string
	Vocabulary []string
	Rows       []Row
}

// Inputs returns the feature matrix row by row.
func (d *Dataset) Inputs() [][]float64 {
	out := make([][]float64, len(d.Rows))
	for i := range d.Rows {
		out[i] = d.Rows[i].Features
	}
	return out
}

// Classes returns each row's label position in the vocabulary, -1 if unknown.
func (d *Dataset) Classes() []int {
	index := make(map[string]int, len(d.Vocabulary))
	for i, v := range d.Vocabulary {
		index[v] = i
	}
	out := make([]int, len(d.Rows))
	for i, r := range d.Rows {
		c, ok := index[r.Label]
		if !ok {
			c = -1
		}
		out[i] = c
	}
	return out
}

// Append adds rows from another dataset with the same layout.
func (d *Dataset) Append(other *Dataset) {
	if len(d.Columns) == 0 {
		d.Columns = other.Columns
		d.Vocabulary = other.Vocabulary
	}
	d.Rows = append(d.Rows, other.Rows...)
}

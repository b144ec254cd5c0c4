package labeling

import "math"

const (
	HoldLabel  = "Hold"
	sellSuffix = " Sell"
	buySuffix  = " Buy"
)

// Labeler maps a fractional price change onto the ordered action vocabulary.
type Labeler struct {
	table *ThresholdTable
	vocab []string
}

func NewLabeler(table *ThresholdTable) *Labeler {
	n := table.Len()
	vocab := make([]string, 0, 2*n+1)
	for i := n - 1; i >= 0; i-- {
		vocab = append(vocab, table.levels[i].Label+sellSuffix)
	}
	vocab = append(vocab, HoldLabel)
	for i := 0; i < n; i++ {
		vocab = append(vocab, table.levels[i].Label+buySuffix)
	}
	return &Labeler{table: table, vocab: vocab}
}

// Vocabulary returns the labels ordered strongest sell to strongest buy.
func (l *Labeler) Vocabulary() []string {
	out := make([]string, len(l.vocab))
	copy(out, l.vocab)
	return out
}

// HoldIndex is the position of "Hold" in the vocabulary.
func (l *Labeler) HoldIndex() int { return l.table.Len() }

// LabelIndex returns the vocabulary position for change. Levels are walked
// weakest first and the walk stops at the first level the magnitude misses.
// A change of exactly zero counts as upward. NaN maps to Hold.
func (l *Labeler) LabelIndex(change float64) int {
	idx := l.HoldIndex()
	if math.IsNaN(change) {
		return idx
	}
	step := 1
	if change < 0 {
		step = -1
	}
	mag := math.Abs(change)
	for _, lv := range l.table.levels {
		if mag < lv.Threshold {
			break
		}
		idx += step
	}
	return idx
}

// Label returns the vocabulary entry for change.
func (l *Labeler) Label(change float64) string {
	return l.vocab[l.LabelIndex(change)]
}

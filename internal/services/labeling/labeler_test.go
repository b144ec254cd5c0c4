package labeling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyOrder(t *testing.T) {
	l := NewLabeler(DefaultThresholdTable())
	assert.Equal(t, []string{
		"Strong Sell", "Moderate Sell", "Fair Sell", "Hold",
		"Fair Buy", "Moderate Buy", "Strong Buy",
	}, l.Vocabulary())
	assert.Equal(t, 3, l.HoldIndex())
}

func TestEmptyTableIsHoldOnly(t *testing.T) {
	table, err := NewThresholdTable(nil)
	require.NoError(t, err)
	l := NewLabeler(table)
	assert.Equal(t, []string{"Hold"}, l.Vocabulary())
	assert.Equal(t, "Hold", l.Label(0.9))
	assert.Equal(t, "Hold", l.Label(-0.9))
}

func TestLabelExamples(t *testing.T) {
	l := NewLabeler(DefaultThresholdTable())
	cases := []struct {
		change float64
		want   string
	}{
		{0.05, "Fair Buy"},
		{-0.12, "Moderate Sell"},
		{0.03, "Hold"},
		{0.20, "Strong Buy"},
		{-0.04, "Fair Sell"},
		{-0.05, "Fair Sell"},
		{0.0, "Hold"},
		{0.10, "Moderate Buy"},
		{-1.0, "Strong Sell"},
		{3.5, "Strong Buy"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, l.Label(c.change), "change %v", c.change)
	}
}

func TestLabelIndexIsMonotone(t *testing.T) {
	l := NewLabeler(DefaultThresholdTable())
	prev := l.LabelIndex(-2)
	for c := -2.0; c <= 2.0; c += 0.001 {
		idx := l.LabelIndex(c)
		require.GreaterOrEqual(t, idx, prev, "change %v", c)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(l.Vocabulary()))
		prev = idx
	}
}

func TestLabelIsSymmetric(t *testing.T) {
	l := NewLabeler(DefaultThresholdTable())
	k := l.HoldIndex()
	for _, c := range []float64{0.01, 0.04, 0.07, 0.1, 0.159, 0.16, 0.5} {
		up := l.LabelIndex(c)
		down := l.LabelIndex(-c)
		assert.Equal(t, up-k, k-down, "change %v", c)
	}
}

func TestNonContiguousLevelsStopAtFirstMiss(t *testing.T) {
	table, err := NewThresholdTable([]Level{{0.01, "A"}, {0.5, "B"}})
	require.NoError(t, err)
	l := NewLabeler(table)
	assert.Equal(t, "A Buy", l.Label(0.3))
	assert.Equal(t, "B Sell", l.Label(-0.6))
}


func TestNewThresholdTableValidation(t *testing.T) {
	_, err := NewThresholdTable([]Level{{0.10, "Moderate"}, {0.04, "Fair"}})
	assert.True(t, errors.Is(err, ErrThresholdOrder))

	_, err = NewThresholdTable([]Level{{0.04, "Fair"}, {0.04, "Again"}})
	assert.True(t, errors.Is(err, ErrThresholdOrder))

	_, err = NewThresholdTable([]Level{{0, "Zero"}})
	assert.True(t, errors.Is(err, ErrThresholdRange))

	_, err = NewThresholdTable([]Level{{1.2, "Big"}})
	assert.True(t, errors.Is(err, ErrThresholdRange))

	_, err = NewThresholdTable([]Level{{1.0, "Max"}})
	assert.NoError(t, err)
}

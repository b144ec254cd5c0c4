package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockAction/internal/domain/models"
	"StockAction/internal/services/labeling"
)

var day0 = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

func candlesFromCloses(symbol string, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Time: day0.AddDate(0, 0, i), Symbol: symbol, Close: c, Volume: float64(1000 + i)}
	}
	return out
}

func seriesFor(req models.IndicatorRequest, candles []models.Candle, fn func(i int) float64) *models.IndicatorSeries {
	s := &models.IndicatorSeries{Request: req}
	for i, c := range candles {
		s.Times = append(s.Times, c.Time)
		s.Values = append(s.Values, fn(i))
	}
	return s
}

func testLayout(indices ...IndexSpec) Layout {
	return Layout{
		Periods:          []int{2},
		PeriodIndicators: []string{"sma"},
		PlainIndicators:  []string{"obv"},
		IncludeVolume:    true,
		Indices:          indices,
	}
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 0.3, PercentChange(100, 130), 1e-12)
	assert.InDelta(t, -0.05, PercentChange(100, 95), 1e-12)
	assert.InDelta(t, 9.0, PercentChange(0, 1), 1e-12)
}

func TestLayoutColumns(t *testing.T) {
	l := Layout{
		Periods:          []int{10, 25},
		PeriodIndicators: []string{"sma", "aroon"},
		PlainIndicators:  []string{"macd"},
		IncludeVolume:    true,
		Indices:          []IndexSpec{{Name: "SP500"}, {Name: "DowJones", HasVolume: true}},
	}
	assert.Equal(t, []string{
		"sma_10", "sma_25", "aroon_10", "aroon_25", "macd", "volume",
		"SP500_Close", "SP500_%change_after_10", "SP500_%change_after_25",
		"DowJones_Close", "DowJones_Volume", "DowJones_%change_after_10", "DowJones_%change_after_25",
	}, l.Columns())
}

func TestForwardChangeAndTruncation(t *testing.T) {
	closes := []float64{100, 102, 99, 105, 110, 90, 95}
	horizon := 2
	candles := candlesFromCloses("AAPL", closes...)

	a, err := NewAssembler(testLayout(), labeling.NewLabeler(labeling.DefaultThresholdTable()), horizon, nil)
	require.NoError(t, err)
	ds, err := a.AssembleSymbol("AAPL", candles, nil)
	require.NoError(t, err)

	require.Len(t, ds.Rows, len(closes)-horizon)
	for i, row := range ds.Rows {
		want := (closes[i+horizon] - closes[i]) / closes[i]
		assert.Equal(t, want, row.Change, "row %d", i)
		assert.Equal(t, candles[i].Time, row.Date)
	}
	last := ds.Rows[len(ds.Rows)-1].Date
	assert.True(t, last.Before(candles[len(candles)-horizon].Time))
}

func TestAssembleLabelsFromOwnCloses(t *testing.T) {
	candles := candlesFromCloses("AAPL", 100, 100, 100, 100, 130)
	labeler := labeling.NewLabeler(labeling.DefaultThresholdTable())
	a, err := NewAssembler(testLayout(), labeler, 1, nil)
	require.NoError(t, err)

	ds, err := a.AssembleSymbol("AAPL", candles, nil)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 4)
	assert.Equal(t, "Hold", ds.Rows[0].Label)
	assert.Equal(t, "Strong Buy", ds.Rows[3].Label)
	assert.InDelta(t, 0.30, ds.Rows[3].Change, 1e-12)
	assert.Equal(t, labeler.Vocabulary(), ds.Vocabulary)
}

func TestAssembleAlignsIndicatorsByDate(t *testing.T) {
	candles := candlesFromCloses("MSFT", 10, 11, 12, 13, 14)
	sma := models.IndicatorRequest{Name: "sma", Period: 2}
	obv := models.IndicatorRequest{Name: "obv"}

	smaSeries := seriesFor(sma, candles, func(i int) float64 { return float64(i) * 10 })
	// obv skips the first day, so that row gets NaN
	obvSeries := seriesFor(obv, candles[1:], func(i int) float64 { return float64(i + 1) })

	a, err := NewAssembler(testLayout(), labeling.NewLabeler(labeling.DefaultThresholdTable()), 1, nil)
	require.NoError(t, err)
	ds, err := a.AssembleSymbol("MSFT", candles, []*models.IndicatorSeries{obvSeries, smaSeries})
	require.NoError(t, err)

	require.Equal(t, []string{"sma_2", "obv", "volume"}, ds.Columns)
	assert.Equal(t, 0.0, ds.Rows[0].Features[0])
	assert.True(t, math.IsNaN(ds.Rows[0].Features[1]))
	assert.Equal(t, []float64{20, 2, 1002}, ds.Rows[2].Features)
}

func TestMarketBlockSharedAcrossSymbols(t *testing.T) {
	idxCandles := candlesFromCloses("IDX", 1000, 1010, 1020, 990, 1000, 1050)
	block, err := BuildMarketBlock([]models.MarketIndex{{Name: "Nasdaq", HasVolume: true, Candles: idxCandles}}, []int{2})
	require.NoError(t, err)
	require.Equal(t, []string{"Nasdaq_Close", "Nasdaq_Volume", "Nasdaq_%change_after_2"}, block.Columns())

	layout := testLayout(IndexSpec{Name: "Nasdaq", HasVolume: true})
	a, err := NewAssembler(layout, labeling.NewLabeler(labeling.DefaultThresholdTable()), 1, block)
	require.NoError(t, err)

	aapl, err := a.AssembleSymbol("AAPL", candlesFromCloses("AAPL", 100, 101, 102, 103, 104), nil)
	require.NoError(t, err)
	ibm, err := a.AssembleSymbol("IBM", candlesFromCloses("IBM", 50, 40, 60, 55, 70), nil)
	require.NoError(t, err)

	for i := range aapl.Rows {
		require.True(t, aapl.Rows[i].Date.Equal(ibm.Rows[i].Date))
		assert.Equal(t, aapl.Rows[i].Features[3:], ibm.Rows[i].Features[3:], "row %d", i)
	}
	// day 3: close 990, change after 2 = (990-1010)/1010
	assert.InDelta(t, (990.0-1010.0)/1010.0, aapl.Rows[3].Features[5], 1e-12)
}

func TestMarketBlockFillsWarmupWithMean(t *testing.T) {
	idxCandles := candlesFromCloses("IDX", 100, 110, 121)
	block, err := BuildMarketBlock([]models.MarketIndex{{Name: "SP500", Candles: idxCandles}}, []int{1})
	require.NoError(t, err)

	first := block.At(day0)
	assert.Equal(t, 100.0, first[0])
	assert.InDelta(t, 0.1, first[1], 1e-12)
	assert.Equal(t, []float64{121, 0.1}, roundAll(block.Latest()))
	assert.True(t, math.IsNaN(block.At(day0.AddDate(1, 0, 0))[0]))
	assert.Equal(t, idxCandles[2].Time, block.AsOf())
}

func TestNewAssemblerRejectsMismatchedBlock(t *testing.T) {
	block, err := BuildMarketBlock([]models.MarketIndex{{Name: "SP500", Candles: candlesFromCloses("X", 1, 2)}}, []int{2})
	require.NoError(t, err)
	_, err = NewAssembler(testLayout(), labeling.NewLabeler(labeling.DefaultThresholdTable()), 1, block)
	require.Error(t, err)
}

func TestAssembleLatest(t *testing.T) {
	candles := candlesFromCloses("AAPL", 10, 11, 12)
	sma := models.IndicatorRequest{Name: "sma", Period: 2}
	obv := models.IndicatorRequest{Name: "obv"}
	a, err := NewAssembler(testLayout(), labeling.NewLabeler(labeling.DefaultThresholdTable()), 30, nil)
	require.NoError(t, err)

	row, asOf, err := a.AssembleLatest("AAPL", candles, []*models.IndicatorSeries{
		seriesFor(sma, candles, func(i int) float64 { return float64(i) + 0.5 }),
		seriesFor(obv, candles, func(i int) float64 { return float64(-i) }),
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, -2, 1002}, row)
	assert.Equal(t, candles[2].Time, asOf)

	_, _, err = a.AssembleLatest("AAPL", nil, nil)
	assert.True(t, errors.Is(err, ErrNoCandles))
}

func TestAssembleLatestUsesSameDayMarketValues(t *testing.T) {
	index := models.MarketIndex{Name: "SP500", Candles: candlesFromCloses("SP500", 100, 100, 200, 200, 100)}
	block, err := BuildMarketBlock([]models.MarketIndex{index}, []int{2})
	require.NoError(t, err)
	a, err := NewAssembler(testLayout(IndexSpec{Name: "SP500"}), labeling.NewLabeler(labeling.DefaultThresholdTable()), 1, block)
	require.NoError(t, err)

	sma := models.IndicatorRequest{Name: "sma", Period: 2}
	obv := models.IndicatorRequest{Name: "obv"}
	one := func(int) float64 { return 1 }

	past := candlesFromCloses("AAPL", 10, 11, 12)
	row, _, err := a.AssembleLatest("AAPL", past, []*models.IndicatorSeries{seriesFor(sma, past, one), seriesFor(obv, past, one)})
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 1.0}, row[3:])

	later := candlesFromCloses("AAPL", 10, 11, 12, 13, 14, 15, 16)
	row, _, err = a.AssembleLatest("AAPL", later, []*models.IndicatorSeries{seriesFor(sma, later, one), seriesFor(obv, later, one)})
	require.NoError(t, err)
	assert.Equal(t, []float64{100, -0.5}, row[3:])
}

func TestResolverMeanFillIsIdempotent(t *testing.T) {
	nan := math.NaN()
	ds := &models.Dataset{
		Columns: []string{"a", "b"},
		Rows: []models.Row{
			{Features: []float64{1, nan}},
			{Features: []float64{nan, 4}},
			{Features: []float64{3, 8}},
		},
	}
	r := NewResolver(PolicyMean)
	rep, err := r.Resolve(ds)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.RowsWithMissing)
	assert.Equal(t, 2, rep.CellsFilled)
	assert.Equal(t, []float64{1, 6}, ds.Rows[0].Features)
	assert.Equal(t, []float64{2, 4}, ds.Rows[1].Features)

	snapshot := [][]float64{
		append([]float64(nil), ds.Rows[0].Features...),
		append([]float64(nil), ds.Rows[1].Features...),
		append([]float64(nil), ds.Rows[2].Features...),
	}
	rep, err = r.Resolve(ds)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
	assert.Equal(t, snapshot, ds.Inputs())
}

func TestResolverDropPolicy(t *testing.T) {
	nan := math.NaN()
	ds := &models.Dataset{
		Columns: []string{"a"},
		Rows: []models.Row{
			{Symbol: "A", Features: []float64{1}},
			{Symbol: "B", Features: []float64{nan}},
			{Symbol: "C", Features: []float64{math.Inf(1)}},
		},
	}
	rep, err := NewResolver(PolicyDrop).Resolve(ds)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.RowsDropped)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "A", ds.Rows[0].Symbol)
}

func TestResolverFailsOnEmptyColumn(t *testing.T) {
	nan := math.NaN()
	ds := &models.Dataset{
		Columns: []string{"a", "b"},
		Rows:    []models.Row{{Features: []float64{1, nan}}, {Features: []float64{2, nan}}},
	}
	_, err := NewResolver(PolicyMean).Resolve(ds)
	assert.True(t, errors.Is(err, ErrMissingValues))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyMean, p)
	p, err = ParsePolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, PolicyDrop, p)
	_, err = ParsePolicy("zero")
	assert.Error(t, err)
}

func roundAll(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Round(x*1e9) / 1e9
	}
	return out
}

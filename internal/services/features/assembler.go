package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"StockAction/internal/domain/models"
	"StockAction/internal/services/labeling"
	"StockAction/pkg/util"
)

var ErrNoCandles = errors.New("no candles to assemble")

// Assembler turns one symbol's candles and indicator series into labeled rows
// laid out against a fixed column list.
type Assembler struct {
	layout  Layout
	labeler *labeling.Labeler
	horizon int
	block   *MarketBlock
	columns []string
}

// NewAssembler checks that the block's columns agree with the layout.
func NewAssembler(layout Layout, labeler *labeling.Labeler, horizon int, block *MarketBlock) (*Assembler, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}
	want := layout.MarketColumns()
	var got []string
	if block != nil {
		got = block.Columns()
	}
	if len(want) != len(got) {
		return nil, fmt.Errorf("market block has %d columns, layout expects %d", len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			return nil, fmt.Errorf("market block column %d is %q, layout expects %q", i, got[i], want[i])
		}
	}
	return &Assembler{
		layout:  layout,
		labeler: labeler,
		horizon: horizon,
		block:   block,
		columns: layout.Columns(),
	}, nil
}

func (a *Assembler) Columns() []string { return append([]string(nil), a.columns...) }

func (a *Assembler) Requests() []models.IndicatorRequest { return a.layout.Requests() }

// WithBlock returns a copy of the assembler using a refreshed market block.
func (a *Assembler) WithBlock(block *MarketBlock) (*Assembler, error) {
	return NewAssembler(a.layout, a.labeler, a.horizon, block)
}

// Block returns the market block the assembler joins onto rows.
func (a *Assembler) Block() *MarketBlock { return a.block }

// AssembleSymbol builds one row per trading day. The last horizon days, and
// any day whose forward change is undefined, are left out. Indicator values
// missing for a day become NaN for the resolver to handle.
func (a *Assembler) AssembleSymbol(symbol string, candles []models.Candle, series []*models.IndicatorSeries) (*models.Dataset, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoCandles)
	}
	candles = append([]models.Candle(nil), candles...)
	SortCandles(candles)

	lookup, err := a.indexSeries(series)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}

	changes := ForwardChange(Closes(candles), a.horizon)
	ds := &models.Dataset{
		Columns:    a.Columns(),
		Vocabulary: a.labeler.Vocabulary(),
		Rows:       make([]models.Row, 0, len(candles)),
	}
	for i, c := range candles {
		if i+a.horizon >= len(candles) {
			break
		}
		change := changes[i]
		if isMissing(change) {
			continue
		}
		ds.Rows = append(ds.Rows, models.Row{
			Symbol:      symbol,
			Date:        util.Day(c.Time),
			Close:       c.Close,
			FutureClose: candles[i+a.horizon].Close,
			Change:      change,
			Features:    a.featureRow(c, lookup),
			Label:       a.labeler.Label(change),
		})
	}
	return ds, nil
}

// AssembleLatest builds the single unlabeled inference row from the most
// recent value of every series. Market values come from the same day when the
// block covers it, otherwise from the block's latest row.
func (a *Assembler) AssembleLatest(symbol string, candles []models.Candle, series []*models.IndicatorSeries) ([]float64, time.Time, error) {
	if len(candles) == 0 {
		return nil, time.Time{}, fmt.Errorf("%s: %w", symbol, ErrNoCandles)
	}
	candles = append([]models.Candle(nil), candles...)
	SortCandles(candles)
	last := candles[len(candles)-1]

	byColumn := make(map[string]*models.IndicatorSeries, len(series))
	for _, s := range series {
		byColumn[s.Request.Column()] = s
	}

	row := make([]float64, 0, len(a.columns))
	for _, req := range a.layout.Requests() {
		s, ok := byColumn[req.Column()]
		if !ok || len(s.Values) == 0 {
			row = append(row, math.NaN())
			continue
		}
		row = append(row, s.Values[len(s.Values)-1])
	}
	if a.layout.IncludeVolume {
		row = append(row, last.Volume)
	}
	if a.block != nil {
		if a.block.Has(last.Time) {
			row = append(row, a.block.At(last.Time)...)
		} else {
			row = append(row, a.block.Latest()...)
		}
	}
	return row, last.Time, nil
}

func (a *Assembler) featureRow(c models.Candle, lookup map[string]map[string]float64) []float64 {
	row := make([]float64, 0, len(a.columns))
	day := util.DayKey(c.Time)
	for _, req := range a.layout.Requests() {
		v, ok := lookup[req.Column()][day]
		if !ok {
			v = math.NaN()
		}
		row = append(row, v)
	}
	if a.layout.IncludeVolume {
		row = append(row, c.Volume)
	}
	if a.block != nil {
		row = append(row, a.block.At(c.Time)...)
	}
	return row
}

func (a *Assembler) indexSeries(series []*models.IndicatorSeries) (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64, len(series))
	for _, s := range series {
		if s == nil {
			continue
		}
		if len(s.Times) != len(s.Values) {
			return nil, fmt.Errorf("indicator %s: %d timestamps for %d values", s.Request.Column(), len(s.Times), len(s.Values))
		}
		m := make(map[string]float64, len(s.Values))
		for i, t := range s.Times {
			m[util.DayKey(t)] = s.Values[i]
		}
		out[s.Request.Column()] = m
	}
	return out, nil
}

package features

import (
	"fmt"
	"math"
	"time"

	"StockAction/internal/domain/models"
	"StockAction/pkg/util"
)

// MarketBlock holds the market-index columns for every calendar date any index
// covers. Values for a date are shared by every symbol's row on that date.
type MarketBlock struct {
	columns []string
	byDay   map[string][]float64
	latest  []float64
	asOf    time.Time
}

// BuildMarketBlock derives close, volume and trailing percent-change columns
// for each index, fills undefined values with the column mean per index, and
// keys the result by calendar day. Indices are laid out in the given order.
func BuildMarketBlock(indices []models.MarketIndex, periods []int) (*MarketBlock, error) {
	b := &MarketBlock{byDay: make(map[string][]float64)}
	var specs []IndexSpec
	for _, idx := range indices {
		specs = append(specs, IndexSpec{Name: idx.Name, HasVolume: idx.HasVolume})
	}
	b.columns = Layout{Periods: periods, Indices: specs}.MarketColumns()

	offset := 0
	for _, idx := range indices {
		width := len(indexColumns(IndexSpec{Name: idx.Name, HasVolume: idx.HasVolume}, periods))
		if len(idx.Candles) == 0 {
			return nil, fmt.Errorf("market index %s: no data", idx.Name)
		}
		candles := append([]models.Candle(nil), idx.Candles...)
		SortCandles(candles)

		rows := indexRows(candles, idx.HasVolume, periods)
		means := ColumnMeans(rows, width)
		for i, r := range rows {
			for j := range r {
				if isMissing(r[j]) {
					r[j] = means[j]
				}
			}
			key := util.DayKey(candles[i].Time)
			full, ok := b.byDay[key]
			if !ok {
				full = nanRow(len(b.columns))
				b.byDay[key] = full
			}
			copy(full[offset:offset+width], r)
		}

		last := candles[len(candles)-1].Time
		if last.After(b.asOf) {
			b.asOf = last
		}
		if b.latest == nil {
			b.latest = nanRow(len(b.columns))
		}
		copy(b.latest[offset:offset+width], rows[len(rows)-1])
		offset += width
	}
	if b.latest == nil {
		b.latest = []float64{}
	}
	return b, nil
}

func indexRows(candles []models.Candle, hasVolume bool, periods []int) [][]float64 {
	closes := Closes(candles)
	changes := make([][]float64, len(periods))
	for k, p := range periods {
		changes[k] = TrailingChange(closes, p)
	}
	rows := make([][]float64, len(candles))
	for i, c := range candles {
		r := []float64{c.Close}
		if hasVolume {
			r = append(r, c.Volume)
		}
		for k := range periods {
			r = append(r, changes[k][i])
		}
		rows[i] = r
	}
	return rows
}

// Columns returns the block's column names.
func (b *MarketBlock) Columns() []string {
	return append([]string(nil), b.columns...)
}

// At returns the block values for the calendar day of t. Days no index covers
// come back as all-NaN so the resolver can deal with them.
func (b *MarketBlock) At(t time.Time) []float64 {
	if v, ok := b.byDay[util.DayKey(t)]; ok {
		return append([]float64(nil), v...)
	}
	return nanRow(len(b.columns))
}

// Has reports whether any index covers the calendar day of t.
func (b *MarketBlock) Has(t time.Time) bool {
	_, ok := b.byDay[util.DayKey(t)]
	return ok
}

// Latest returns each index's most recent row.
func (b *MarketBlock) Latest() []float64 {
	return append([]float64(nil), b.latest...)
}

// AsOf is the most recent date covered by any index.
func (b *MarketBlock) AsOf() time.Time { return b.asOf }

func nanRow(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

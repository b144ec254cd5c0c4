package features

import (
	"strconv"

	"StockAction/internal/domain/models"
)

const VolumeColumn = "volume"

// Layout fixes the ordered list of input columns before any assembly begins.
// Every row, in training and at inference, is filled positionally against it.
type Layout struct {
	Periods          []int
	PeriodIndicators []string
	PlainIndicators  []string
	IncludeVolume    bool
	Indices          []IndexSpec
}

// IndexSpec describes the market-index columns contributed by one index.
type IndexSpec struct {
	Name      string
	HasVolume bool
}

// Requests lists indicator computations in column order: every period
// indicator once per period, then the plain indicators.
func (l Layout) Requests() []models.IndicatorRequest {
	out := make([]models.IndicatorRequest, 0, len(l.PeriodIndicators)*len(l.Periods)+len(l.PlainIndicators))
	for _, name := range l.PeriodIndicators {
		for _, p := range l.Periods {
			out = append(out, models.IndicatorRequest{Name: name, Period: p})
		}
	}
	for _, name := range l.PlainIndicators {
		out = append(out, models.IndicatorRequest{Name: name})
	}
	return out
}

// MarketColumns lists the market-index block columns in order.
func (l Layout) MarketColumns() []string {
	var out []string
	for _, idx := range l.Indices {
		out = append(out, indexColumns(idx, l.Periods)...)
	}
	return out
}

// Columns returns the full ordered input column list.
func (l Layout) Columns() []string {
	reqs := l.Requests()
	out := make([]string, 0, len(reqs)+1)
	for _, r := range reqs {
		out = append(out, r.Column())
	}
	if l.IncludeVolume {
		out = append(out, VolumeColumn)
	}
	return append(out, l.MarketColumns()...)
}

func indexColumns(idx IndexSpec, periods []int) []string {
	out := []string{idx.Name + "_Close"}
	if idx.HasVolume {
		out = append(out, idx.Name+"_Volume")
	}
	for _, p := range periods {
		out = append(out, idx.Name+"_%change_after_"+strconv.Itoa(p))
	}
	return out
}

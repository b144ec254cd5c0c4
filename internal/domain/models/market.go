package models

import (
	"strconv"
	"time"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Time   time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// IndicatorRequest names one technical indicator computation. Period is zero
// for indicators that take no time period.
type IndicatorRequest struct {
	Name   string
	Period int
}

// Column is the dataset column name the indicator fills: "<name>_<period>" or "<name>".
func (r IndicatorRequest) Column() string {
	if r.Period > 0 {
		return r.Name + "_" + strconv.Itoa(r.Period)
	}
	return r.Name
}

// IndicatorSeries holds one indicator value per timestamp. NaN marks a
// warm-up bar the provider could not compute.
type IndicatorSeries struct {
	Request IndicatorRequest
	Times   []time.Time
	Values  []float64
}

// MarketIndex is a broad market series joined onto every symbol's rows.
type MarketIndex struct {
	Name      string
	HasVolume bool
	Candles   []Candle
}

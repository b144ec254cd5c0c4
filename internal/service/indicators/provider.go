package indicators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"StockAction/internal/domain/models"
	drepo "StockAction/internal/domain/repository"
)

var ErrUnsupported = errors.New("indicator not supported offline")

// Provider computes indicators locally with techan from candles supplied by
// another source, so a dataset build costs one provider call per symbol.
type Provider struct {
	source drepo.CandleSource

	mu   sync.Mutex
	memo map[string][]models.Candle
}

func NewProvider(source drepo.CandleSource) *Provider {
	return &Provider{source: source, memo: make(map[string][]models.Candle)}
}

// Supported lists the indicator names this provider can compute.
func Supported() []string {
	return []string{"sma", "ema", "rsi", "atr", "natr", "mom", "roc", "rocr", "macd", "trange", "obv"}
}

// CheckRequests fails on the first indicator the provider cannot compute.
func CheckRequests(reqs []models.IndicatorRequest) error {
	known := make(map[string]bool)
	for _, name := range Supported() {
		known[name] = true
	}
	for _, r := range reqs {
		if !known[r.Name] {
			return fmt.Errorf("%w: %s", ErrUnsupported, r.Name)
		}
	}
	return nil
}

func (p *Provider) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	key := fmt.Sprintf("%s|%d|%d", symbol, from.Unix(), to.Unix())
	p.mu.Lock()
	if c, ok := p.memo[key]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	candles, err := p.source.GetCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.memo[key] = candles
	p.mu.Unlock()
	return candles, nil
}

// Forget drops memoized candles, e.g. between REPL queries.
func (p *Provider) Forget() {
	p.mu.Lock()
	p.memo = make(map[string][]models.Candle)
	p.mu.Unlock()
}

func (p *Provider) GetIndicator(ctx context.Context, symbol string, from, to time.Time, req models.IndicatorRequest) (*models.IndicatorSeries, error) {
	candles, err := p.GetCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	values, err := Compute(candles, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, req.Column(), err)
	}
	s := &models.IndicatorSeries{Request: req, Times: make([]time.Time, len(candles)), Values: values}
	for i, c := range candles {
		s.Times[i] = c.Time
	}
	return s, nil
}

// Compute evaluates one indicator over candles. Bars inside the warm-up
// window, and bars whose value divides by a zero close, are NaN.
func Compute(candles []models.Candle, req models.IndicatorRequest) (values []float64, err error) {
	if req.Period < 1 && req.Name != "macd" && req.Name != "trange" && req.Name != "obv" {
		return nil, fmt.Errorf("%s needs a positive period", req.Name)
	}
	series, err := toTimeSeries(candles)
	if err != nil {
		return nil, err
	}
	closes := Closes(candles)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute %s: %v", req.Column(), r)
		}
	}()

	var at func(i int) float64
	warmup := req.Period
	switch req.Name {
	case "sma":
		at = decimals(techan.NewSimpleMovingAverage(techan.NewClosePriceIndicator(series), req.Period))
	case "ema":
		at = decimals(techan.NewEMAIndicator(techan.NewClosePriceIndicator(series), req.Period))
	case "rsi":
		at = decimals(techan.NewRelativeStrengthIndexIndicator(techan.NewClosePriceIndicator(series), req.Period))
		warmup = req.Period + 1
	case "atr":
		at = decimals(techan.NewAverageTrueRangeIndicator(series, req.Period))
		warmup = req.Period + 1
	case "natr":
		atr := decimals(techan.NewAverageTrueRangeIndicator(series, req.Period))
		at = func(i int) float64 { return ratio(atr(i), closes[i]) * 100 }
		warmup = req.Period + 1
	case "mom":
		at = func(i int) float64 { return closes[i] - closes[i-req.Period] }
		warmup = req.Period + 1
	case "roc":
		at = func(i int) float64 { return ratio(closes[i]-closes[i-req.Period], closes[i-req.Period]) * 100 }
		warmup = req.Period + 1
	case "rocr":
		at = func(i int) float64 { return ratio(closes[i], closes[i-req.Period]) }
		warmup = req.Period + 1
	case "macd":
		at = decimals(techan.NewMACDHistogramIndicator(techan.NewMACDIndicator(techan.NewClosePriceIndicator(series), 12, 26), 9))
		warmup = 26 + 9 - 1
	case "trange":
		at = decimals(trueRange{series: series})
		warmup = 2
	case "obv":
		at = decimals(&onBalanceVolume{series: series})
		warmup = 1
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, req.Name)
	}

	values = make([]float64, len(candles))
	for i := range candles {
		if i < warmup-1 {
			values[i] = math.NaN()
			continue
		}
		values[i] = at(i)
	}
	return values, nil
}

// Closes extracts the close price of each candle.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func decimals(ind techan.Indicator) func(int) float64 {
	return func(i int) float64 { return ind.Calculate(i).Float() }
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

func toTimeSeries(candles []models.Candle) (*techan.TimeSeries, error) {
	series := techan.NewTimeSeries()
	for _, c := range candles {
		tc := techan.NewCandle(techan.NewTimePeriod(c.Time, 24*time.Hour))
		tc.OpenPrice = big.NewDecimal(c.Open)
		tc.ClosePrice = big.NewDecimal(c.Close)
		tc.MaxPrice = big.NewDecimal(c.High)
		tc.MinPrice = big.NewDecimal(c.Low)
		tc.Volume = big.NewDecimal(c.Volume)
		if !series.AddCandle(tc) {
			return nil, fmt.Errorf("candle at %s is out of order", c.Time.Format(time.RFC3339))
		}
	}
	return series, nil
}

// trueRange is max(high, prevClose) - min(low, prevClose).
type trueRange struct {
	series *techan.TimeSeries
}

func (t trueRange) Calculate(i int) big.Decimal {
	c := t.series.Candles[i]
	prevClose := t.series.Candles[i-1].ClosePrice
	hi, lo := c.MaxPrice, c.MinPrice
	if prevClose.GT(hi) {
		hi = prevClose
	}
	if prevClose.LT(lo) {
		lo = prevClose
	}
	return hi.Sub(lo)
}

// onBalanceVolume accumulates volume signed by the close-to-close direction.
type onBalanceVolume struct {
	series *techan.TimeSeries
	cache  []big.Decimal
}

func (o *onBalanceVolume) Calculate(i int) big.Decimal {
	for len(o.cache) <= i {
		k := len(o.cache)
		if k == 0 {
			o.cache = append(o.cache, o.series.Candles[0].Volume)
			continue
		}
		cur, prev := o.series.Candles[k], o.series.Candles[k-1]
		v := o.cache[k-1]
		switch {
		case cur.ClosePrice.GT(prev.ClosePrice):
			v = v.Add(cur.Volume)
		case cur.ClosePrice.LT(prev.ClosePrice):
			v = v.Sub(cur.Volume)
		}
		o.cache = append(o.cache, v)
	}
	return o.cache[i]
}

var _ drepo.MarketData = (*Provider)(nil)

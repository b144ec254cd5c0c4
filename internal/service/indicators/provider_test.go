package indicators

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"StockAction/internal/domain/models"
)

type stubSource struct {
	candles []models.Candle
	calls   int
	err     error
}

func (s *stubSource) GetCandles(context.Context, string, time.Time, time.Time) ([]models.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func makeCandles(closes ...float64) []models.Candle {
	start := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Time:   start.AddDate(0, 0, i),
			Symbol: "AAPL",
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func TestComputeSMA(t *testing.T) {
	values, err := Compute(makeCandles(1, 2, 3, 4, 5), models.IndicatorRequest{Name: "sma", Period: 3})
	require.NoError(t, err)
	require.Len(t, values, 5)
	require.True(t, math.IsNaN(values[0]))
	require.True(t, math.IsNaN(values[1]))
	require.InDelta(t, 2.0, values[2], 1e-9)
	require.InDelta(t, 3.0, values[3], 1e-9)
	require.InDelta(t, 4.0, values[4], 1e-9)
}

func TestComputeMomentumFamily(t *testing.T) {
	candles := makeCandles(10, 12, 15, 0, 18)

	mom, err := Compute(candles, models.IndicatorRequest{Name: "mom", Period: 2})
	require.NoError(t, err)
	require.True(t, math.IsNaN(mom[1]))
	require.InDelta(t, 5.0, mom[2], 1e-9)

	roc, err := Compute(candles, models.IndicatorRequest{Name: "roc", Period: 2})
	require.NoError(t, err)
	require.InDelta(t, 50.0, roc[2], 1e-9)

	rocr, err := Compute(candles, models.IndicatorRequest{Name: "rocr", Period: 1})
	require.NoError(t, err)
	require.InDelta(t, 1.2, rocr[1], 1e-9)
	require.True(t, math.IsNaN(rocr[4]), "zero base close")
}

func TestComputeTrueRangeAndOBV(t *testing.T) {
	candles := makeCandles(10, 14, 12, 12)

	tr, err := Compute(candles, models.IndicatorRequest{Name: "trange"})
	require.NoError(t, err)
	require.True(t, math.IsNaN(tr[0]))
	// high 15, low 13, previous close 10
	require.InDelta(t, 5.0, tr[1], 1e-9)

	obv, err := Compute(candles, models.IndicatorRequest{Name: "obv"})
	require.NoError(t, err)
	require.Equal(t, []float64{100, 200, 100, 100}, obv)
}

func TestComputeRejectsUnknownIndicator(t *testing.T) {
	_, err := Compute(makeCandles(1, 2, 3), models.IndicatorRequest{Name: "httrendline"})
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = Compute(makeCandles(1, 2, 3), models.IndicatorRequest{Name: "sma"})
	require.Error(t, err)
}

func TestCheckRequests(t *testing.T) {
	require.NoError(t, CheckRequests([]models.IndicatorRequest{{Name: "sma", Period: 10}, {Name: "macd"}}))
	require.ErrorIs(t, CheckRequests([]models.IndicatorRequest{{Name: "sar"}}), ErrUnsupported)
}

func TestProviderMemoizesCandles(t *testing.T) {
	src := &stubSource{candles: makeCandles(1, 2, 3, 4)}
	p := NewProvider(src)
	from, to := time.Unix(0, 0), time.Unix(1000, 0)

	s, err := p.GetIndicator(context.Background(), "AAPL", from, to, models.IndicatorRequest{Name: "sma", Period: 2})
	require.NoError(t, err)
	require.Len(t, s.Times, 4)
	require.Equal(t, "sma_2", s.Request.Column())

	_, err = p.GetIndicator(context.Background(), "AAPL", from, to, models.IndicatorRequest{Name: "ema", Period: 2})
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	p.Forget()
	_, err = p.GetCandles(context.Background(), "AAPL", from, to)
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestProviderPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	p := NewProvider(&stubSource{err: boom})
	_, err := p.GetIndicator(context.Background(), "AAPL", time.Time{}, time.Now(), models.IndicatorRequest{Name: "sma", Period: 2})
	require.ErrorIs(t, err, boom)
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"StockAction/internal/domain/models"
	drepo "StockAction/internal/domain/repository"
)

// fetchSymbol pulls a symbol's candles and every requested indicator series,
// one provider call at a time.
func fetchSymbol(ctx context.Context, data drepo.MarketData, symbol string, from, to time.Time, reqs []models.IndicatorRequest) ([]models.Candle, []*models.IndicatorSeries, error) {
	candles, err := data.GetCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("%s candles: %w", symbol, err)
	}
	series := make([]*models.IndicatorSeries, 0, len(reqs))
	for _, req := range reqs {
		s, err := data.GetIndicator(ctx, symbol, from, to, req)
		if err != nil {
			return nil, nil, fmt.Errorf("%s %s: %w", symbol, req.Column(), err)
		}
		series = append(series, s)
	}
	return candles, series, nil
}

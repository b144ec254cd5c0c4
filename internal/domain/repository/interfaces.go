package repository

import (
	"context"
	"time"

	"StockAction/internal/domain/models"
)

// CandleSource returns daily candles for a symbol, oldest first.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
}

// MarketData is the full market-data surface the feature assembler needs.
type MarketData interface {
	CandleSource
	GetIndicator(ctx context.Context, symbol string, from, to time.Time, req models.IndicatorRequest) (*models.IndicatorSeries, error)
}

// MarketIndexSource loads the broad market index series used as shared context.
type MarketIndexSource interface {
	LoadIndices(ctx context.Context) ([]models.MarketIndex, error)
}

// DatasetStore persists assembled training data.
type DatasetStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, ds *models.Dataset) error
	Load(ctx context.Context) (*models.Dataset, error)
	Close() error
}

// PredictionRecorder keeps a history of served predictions.
type PredictionRecorder interface {
	Record(ctx context.Context, preds []models.Prediction) error
	Close() error
}

// PredictionHistory reads back recorded predictions, newest first.
type PredictionHistory interface {
	Recent(ctx context.Context, symbol string, n int) ([]models.Prediction, error)
}

type Metrics interface {
	RecordAPICall(endpoint, status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordPrediction(label string, confidence float64)
	RecordRows(symbol string, n int)
}

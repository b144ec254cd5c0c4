package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	drepo "StockAction/internal/domain/repository"
	"StockAction/internal/services/features"
	applogger "StockAction/pkg/logger"
)

// MarketRefresher rebuilds the market-index block on a cron schedule and
// hands it to the predictor.
type MarketRefresher struct {
	indices   drepo.MarketIndexSource
	predictor *Predictor
	periods   []int
	spec      string
	timeout   time.Duration
	l         *applogger.Logger
	cron      *cron.Cron
}

func NewMarketRefresher(indices drepo.MarketIndexSource, predictor *Predictor, periods []int, spec string, l *applogger.Logger) *MarketRefresher {
	if l == nil {
		l = applogger.Nop()
	}
	return &MarketRefresher{
		indices: indices, predictor: predictor, periods: periods, spec: spec,
		timeout: 5 * time.Minute, l: l,
	}
}

// Refresh loads the indices once and swaps the block in.
func (r *MarketRefresher) Refresh(ctx context.Context) error {
	indices, err := r.indices.LoadIndices(ctx)
	if err != nil {
		return fmt.Errorf("load market indices: %w", err)
	}
	block, err := features.BuildMarketBlock(indices, r.periods)
	if err != nil {
		return err
	}
	if err := r.predictor.SetBlock(block); err != nil {
		return err
	}
	r.l.Info("market block refreshed", applogger.String("as_of", block.AsOf().Format("2006-01-02")))
	return nil
}

// Start schedules Refresh. Seconds are the first cron field.
func (r *MarketRefresher) Start() error {
	r.cron = cron.New(cron.WithSeconds())
	_, err := r.cron.AddFunc(r.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			r.l.Error("market block refresh failed", applogger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", r.spec, err)
	}
	r.cron.Start()
	return nil
}

// Stop waits for a running refresh to finish.
func (r *MarketRefresher) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

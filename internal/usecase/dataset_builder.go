package usecase

import (
	"context"
	"fmt"
	"time"

	"StockAction/internal/domain/models"
	drepo "StockAction/internal/domain/repository"
	"StockAction/internal/services/features"
	"StockAction/internal/services/labeling"
	applogger "StockAction/pkg/logger"
)

// BuildConfig is what a dataset build needs beyond its collaborators.
type BuildConfig struct {
	Layout     features.Layout
	Horizon    int
	From, To   time.Time
	SkipFailed bool
}

// BuildReport summarises one dataset build.
type BuildReport struct {
	Symbols       int
	Failed        []string
	Rows          int
	InputColumns  int
	OutputColumns int
	MissingRows   int
	Resolution    features.Report
}

// DatasetBuilder fetches every symbol, assembles labeled rows, resolves
// missing values and persists the resulting training table.
type DatasetBuilder struct {
	data     drepo.MarketData
	indices  drepo.MarketIndexSource
	store    drepo.DatasetStore
	labeler  *labeling.Labeler
	resolver *features.Resolver
	metrics  drepo.Metrics
	cfg      BuildConfig
	l        *applogger.Logger
}

func NewDatasetBuilder(data drepo.MarketData, indices drepo.MarketIndexSource, store drepo.DatasetStore,
	labeler *labeling.Labeler, resolver *features.Resolver, metrics drepo.Metrics, cfg BuildConfig, l *applogger.Logger) *DatasetBuilder {
	if l == nil {
		l = applogger.Nop()
	}
	return &DatasetBuilder{
		data: data, indices: indices, store: store,
		labeler: labeler, resolver: resolver, metrics: metrics,
		cfg: cfg, l: l,
	}
}

func (b *DatasetBuilder) Build(ctx context.Context, symbols []string) (*BuildReport, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to build")
	}
	asm, err := b.assembler(ctx)
	if err != nil {
		return nil, err
	}

	ds := &models.Dataset{Columns: asm.Columns(), Vocabulary: b.labeler.Vocabulary()}
	rep := &BuildReport{Symbols: len(symbols), InputColumns: len(ds.Columns), OutputColumns: len(ds.Vocabulary)}
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		part, err := b.buildSymbol(ctx, asm, symbol)
		b.metrics.RecordLatency("build_symbol", time.Since(start).Seconds())
		if err != nil {
			b.metrics.RecordError("build")
			if !b.cfg.SkipFailed {
				return nil, err
			}
			b.l.Warn("symbol skipped", applogger.String("symbol", symbol), applogger.Error(err))
			rep.Failed = append(rep.Failed, symbol)
			continue
		}
		b.metrics.RecordRows(symbol, len(part.Rows))
		b.l.Info("symbol assembled",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(part.Rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
		ds.Append(part)
	}
	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("no rows assembled for %d symbol(s)", len(symbols))
	}

	rep.MissingRows = features.MissingRows(ds)
	b.l.Info("dataset assembled",
		applogger.Int("input_columns", rep.InputColumns),
		applogger.Int("output_columns", rep.OutputColumns),
		applogger.Int("rows", len(ds.Rows)),
		applogger.Int("rows_with_missing", rep.MissingRows),
		applogger.Strings("failed", rep.Failed),
		applogger.Bool("skip_failed", b.cfg.SkipFailed),
	)

	if rep.Resolution, err = b.resolver.Resolve(ds); err != nil {
		return nil, err
	}
	rep.Rows = len(ds.Rows)
	b.l.Info("missing values resolved",
		applogger.Int("cells_filled", rep.Resolution.CellsFilled),
		applogger.Int("rows_dropped", rep.Resolution.RowsDropped),
	)

	if err := b.store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init dataset store: %w", err)
	}
	if err := b.store.Save(ctx, ds); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}
	return rep, nil
}

func (b *DatasetBuilder) assembler(ctx context.Context) (*features.Assembler, error) {
	indices, err := b.indices.LoadIndices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load market indices: %w", err)
	}
	block, err := features.BuildMarketBlock(indices, b.cfg.Layout.Periods)
	if err != nil {
		return nil, err
	}
	return features.NewAssembler(b.cfg.Layout, b.labeler, b.cfg.Horizon, block)
}

func (b *DatasetBuilder) buildSymbol(ctx context.Context, asm *features.Assembler, symbol string) (*models.Dataset, error) {
	candles, series, err := fetchSymbol(ctx, b.data, symbol, b.cfg.From, b.cfg.To, asm.Requests())
	if err != nil {
		return nil, err
	}
	return asm.AssembleSymbol(symbol, candles, series)
}

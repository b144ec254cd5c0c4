package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"StockAction/internal/domain/models"
	drepo "StockAction/internal/domain/repository"
	dsvc "StockAction/internal/domain/service"
	"StockAction/internal/services/features"
	applogger "StockAction/pkg/logger"
	"StockAction/pkg/util"
)

var ErrNoSymbols = errors.New("no symbols given")

// PredictionResult carries one symbol's outcome; a failed symbol does not
// spoil the rest of the batch.
type PredictionResult struct {
	Symbol     string
	Prediction *models.Prediction
	Err        error
}

// InferenceWindow says how much history feeds one prediction. DaysSinceLast
// shifts the window back, e.g. by the horizon to check a past call.
type InferenceWindow struct {
	LookbackDays  int
	DaysSinceLast int
}

// Bounds returns the window's first and last day relative to now, in business
// days. Both ends are day-aligned so every call on the same day asks for the
// same range.
func (w InferenceWindow) Bounds(now time.Time) (time.Time, time.Time) {
	from := util.Day(util.SubBusinessDays(now, w.DaysSinceLast+w.LookbackDays))
	to := util.EndOfDay(util.SubBusinessDays(now, w.DaysSinceLast))
	return from, to
}

// forgetter is implemented by market data sources that memoize candles.
type forgetter interface {
	Forget()
}

// Predictor scores symbols with a trained classifier.
type Predictor struct {
	data     drepo.MarketData
	clf      dsvc.Classifier
	recorder drepo.PredictionRecorder
	metrics  drepo.Metrics
	window   InferenceWindow
	l        *applogger.Logger
	now      func() time.Time

	mu  sync.RWMutex
	asm *features.Assembler
}

func NewPredictor(data drepo.MarketData, clf dsvc.Classifier, asm *features.Assembler, recorder drepo.PredictionRecorder,
	metrics drepo.Metrics, window InferenceWindow, l *applogger.Logger) (*Predictor, error) {
	if err := sameColumns(clf.Columns(), asm.Columns()); err != nil {
		return nil, err
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Predictor{
		data: data, clf: clf, asm: asm, recorder: recorder,
		metrics: metrics, window: window, l: l, now: time.Now,
	}, nil
}

func (p *Predictor) Vocabulary() []string { return p.clf.Vocabulary() }

// SetBlock swaps in a refreshed market block.
func (p *Predictor) SetBlock(block *features.MarketBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	asm, err := p.asm.WithBlock(block)
	if err != nil {
		return err
	}
	p.asm = asm
	return nil
}

// MarketAsOf is the last day of the market block in use, zero without one.
func (p *Predictor) MarketAsOf() time.Time {
	if b := p.assembler().Block(); b != nil {
		return b.AsOf()
	}
	return time.Time{}
}

func (p *Predictor) assembler() *features.Assembler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.asm
}

// PredictMany scores symbols one after another and records the successes.
func (p *Predictor) PredictMany(ctx context.Context, symbols []string) []PredictionResult {
	symbols = util.NormalizeSymbols(symbols)
	out := make([]PredictionResult, 0, len(symbols))
	var ok []models.Prediction
	for _, s := range symbols {
		pred, err := p.Predict(ctx, s)
		if err != nil {
			p.metrics.RecordError("predict")
			p.l.Warn("prediction failed", applogger.String("symbol", s), applogger.Error(err))
		} else {
			ok = append(ok, *pred)
		}
		out = append(out, PredictionResult{Symbol: s, Prediction: pred, Err: err})
	}
	if f, isMemo := p.data.(forgetter); isMemo {
		f.Forget()
	}
	if len(ok) > 0 {
		if err := p.recorder.Record(ctx, ok); err != nil {
			p.l.Error("record predictions", applogger.Int("count", len(ok)), applogger.Error(err))
		}
	}
	return out
}

// Predict scores a single symbol on its most recent bar in the window.
func (p *Predictor) Predict(ctx context.Context, symbol string) (*models.Prediction, error) {
	start := time.Now()
	defer func() { p.metrics.RecordLatency("predict", time.Since(start).Seconds()) }()

	asm := p.assembler()
	from, to := p.window.Bounds(p.now())
	candles, series, err := fetchSymbol(ctx, p.data, symbol, from, to, asm.Requests())
	if err != nil {
		return nil, err
	}
	row, asOf, err := asm.AssembleLatest(symbol, candles, series)
	if err != nil {
		return nil, err
	}
	if filled := fillMissing(row, p.clf.Defaults()); filled > 0 {
		p.l.Debug("undefined inputs filled", applogger.String("symbol", symbol), applogger.Int("cells", filled))
	}

	probs, err := p.clf.Predict(ctx, [][]float64{row})
	if err != nil {
		return nil, fmt.Errorf("%s: classify: %w", symbol, err)
	}
	vocab := p.clf.Vocabulary()
	if len(probs) != 1 || len(probs[0]) != len(vocab) {
		return nil, fmt.Errorf("%s: classifier returned %d distributions", symbol, len(probs))
	}

	pred := &models.Prediction{
		Symbol:        symbol,
		Probabilities: make(map[string]float64, len(vocab)),
		AsOf:          asOf,
		CreatedAt:     p.now().UTC(),
	}
	for i, label := range vocab {
		pred.Probabilities[label] = probs[0][i]
		if probs[0][i] > pred.Confidence || pred.Label == "" {
			pred.Label, pred.Confidence = label, probs[0][i]
		}
	}
	p.metrics.RecordPrediction(pred.Label, pred.Confidence)
	return pred, nil
}

// fillMissing replaces undefined inputs with the training means.
func fillMissing(row, defaults []float64) int {
	n := 0
	for i, v := range row {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			continue
		}
		if i < len(defaults) {
			row[i] = defaults[i]
		} else {
			row[i] = 0
		}
		n++
	}
	return n
}

func sameColumns(model, layout []string) error {
	if len(model) != len(layout) {
		return fmt.Errorf("model expects %d input columns, configuration yields %d", len(model), len(layout))
	}
	for i := range model {
		if model[i] != layout[i] {
			return fmt.Errorf("input column %d: model has %q, configuration has %q", i, model[i], layout[i])
		}
	}
	return nil
}

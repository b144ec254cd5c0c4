package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockAction/internal/domain/models"
	"StockAction/internal/services/classifier"
	"StockAction/internal/services/features"
	"StockAction/internal/services/labeling"
	"StockAction/pkg/metrics"
)

var day0 = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

func candles(symbol string, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Time: day0.AddDate(0, 0, i), Symbol: symbol, Close: c, Volume: float64(10 * (i + 1))}
	}
	return out
}

type fakeData struct {
	candles map[string][]models.Candle
	value   func(req models.IndicatorRequest, i, n int) float64
	calls   int
}

func (f *fakeData) GetCandles(_ context.Context, symbol string, _, _ time.Time) ([]models.Candle, error) {
	f.calls++
	c, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	return c, nil
}

func (f *fakeData) GetIndicator(_ context.Context, symbol string, _, _ time.Time, req models.IndicatorRequest) (*models.IndicatorSeries, error) {
	f.calls++
	c := f.candles[symbol]
	s := &models.IndicatorSeries{Request: req}
	for i, bar := range c {
		s.Times = append(s.Times, bar.Time)
		v := float64(i)
		if f.value != nil {
			v = f.value(req, i, len(c))
		}
		s.Values = append(s.Values, v)
	}
	return s, nil
}

type fakeIndices struct {
	indices []models.MarketIndex
	err     error
}

func (f *fakeIndices) LoadIndices(context.Context) ([]models.MarketIndex, error) {
	return f.indices, f.err
}

type memStore struct {
	ds    *models.Dataset
	inits int
}

func (m *memStore) Init(context.Context) error {
	m.inits++
	return nil
}

func (m *memStore) Save(_ context.Context, ds *models.Dataset) error {
	m.ds = ds
	return nil
}

func (m *memStore) Load(context.Context) (*models.Dataset, error) {
	if m.ds == nil {
		return nil, errors.New("empty")
	}
	return m.ds, nil
}

func (m *memStore) Close() error { return nil }

func smallLayout(indices ...features.IndexSpec) features.Layout {
	return features.Layout{
		Periods:          []int{2},
		PeriodIndicators: []string{"sma"},
		IncludeVolume:    true,
		Indices:          indices,
	}
}

func defaultLabeler() *labeling.Labeler {
	return labeling.NewLabeler(labeling.DefaultThresholdTable())
}

func newBuilder(data *fakeData, store *memStore, skip bool) *DatasetBuilder {
	return NewDatasetBuilder(data, &fakeIndices{}, store, defaultLabeler(),
		features.NewResolver(features.PolicyMean), metrics.Nop{},
		BuildConfig{Layout: smallLayout(), Horizon: 1, SkipFailed: skip}, nil)
}

func TestDatasetBuilderBuildsAndResolves(t *testing.T) {
	data := &fakeData{
		candles: map[string][]models.Candle{"AAPL": candles("AAPL", 100, 100, 100, 100, 130)},
		value: func(_ models.IndicatorRequest, i, _ int) float64 {
			if i == 0 {
				return math.NaN()
			}
			return float64(i)
		},
	}
	store := &memStore{}

	_, err := newBuilder(data, store, false).Build(context.Background(), []string{"AAPL", "MSFT"})
	require.Error(t, err)
	assert.Nil(t, store.ds)

	rep, err := newBuilder(data, store, true).Build(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, rep.Failed)
	assert.Equal(t, 4, rep.Rows)
	assert.Equal(t, 2, rep.InputColumns)
	assert.Equal(t, 7, rep.OutputColumns)
	assert.Equal(t, 1, rep.MissingRows)
	assert.Equal(t, 1, rep.Resolution.CellsFilled)

	require.NotNil(t, store.ds)
	assert.Equal(t, 1, store.inits)
	assert.Equal(t, []string{"sma_2", "volume"}, store.ds.Columns)
	labels := []string{}
	for _, r := range store.ds.Rows {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{"Hold", "Hold", "Hold", "Strong Buy"}, labels)
	// mean of 1, 2, 3
	assert.InDelta(t, 2.0, store.ds.Rows[0].Features[0], 1e-12)
}

func TestDatasetBuilderPropagatesIndexError(t *testing.T) {
	b := NewDatasetBuilder(&fakeData{}, &fakeIndices{err: errors.New("no file")}, &memStore{}, defaultLabeler(),
		features.NewResolver(features.PolicyMean), metrics.Nop{}, BuildConfig{Layout: smallLayout(), Horizon: 1}, nil)
	_, err := b.Build(context.Background(), []string{"AAPL"})
	require.Error(t, err)

	_, err = b.Build(context.Background(), nil)
	require.Error(t, err)
}

func separableDataset(n int) *models.Dataset {
	ds := &models.Dataset{Columns: []string{"a", "b"}, Vocabulary: defaultLabeler().Vocabulary()}
	for i := 0; i < n; i++ {
		label, x := "Hold", -1.0
		if i%2 == 0 {
			label, x = "Fair Buy", 1.0
		}
		ds.Rows = append(ds.Rows, models.Row{Features: []float64{x + float64(i%5)*0.01, float64(i % 3)}, Label: label})
	}
	return ds
}

func TestTrainerSavesBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "model")
	store := &memStore{ds: separableDataset(40)}
	tr := NewTrainer(store, labeling.DefaultThresholdTable(), TrainParams{
		Name:     "test",
		ModelDir: dir,
		Symbols:  []string{"AAPL"},
		Horizon:  30,
		Train: classifier.TrainConfig{
			TestSize: 0.25, Seed: 1, Epochs: 3, BatchSize: 8, EvalBatchSize: 8,
			LearningRate: 0.01, HiddenLayers: []int{4},
		},
	}, nil)

	model, err := tr.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, model.Manifest.Horizon)
	assert.Equal(t, 30, model.Manifest.Metrics.TrainRows)
	assert.Equal(t, 10, model.Manifest.Metrics.TestRows)
	assert.Len(t, model.Manifest.Metrics.History, 3)

	loaded, err := classifier.LoadBundle(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, loaded.Columns())
	assert.Equal(t, defaultLabeler().Vocabulary(), loaded.Vocabulary())
	assert.Len(t, loaded.Manifest.Thresholds, 3)
}

func TestTrainerRejectsForeignVocabulary(t *testing.T) {
	ds := separableDataset(10)
	ds.Vocabulary = []string{"Sell", "Hold", "Buy"}
	tr := NewTrainer(&memStore{ds: ds}, labeling.DefaultThresholdTable(), TrainParams{ModelDir: t.TempDir()}, nil)
	_, err := tr.Train(context.Background())
	require.Error(t, err)
}

type fakeClassifier struct {
	columns  []string
	vocab    []string
	defaults []float64
	probs    []float64
	rows     [][]float64
}

func (f *fakeClassifier) Predict(_ context.Context, inputs [][]float64) ([][]float64, error) {
	f.rows = append(f.rows, inputs...)
	out := make([][]float64, len(inputs))
	for i := range inputs {
		out[i] = f.probs
	}
	return out, nil
}

func (f *fakeClassifier) Vocabulary() []string { return f.vocab }
func (f *fakeClassifier) Columns() []string    { return f.columns }
func (f *fakeClassifier) Defaults() []float64  { return f.defaults }

type captureRecorder struct {
	preds []models.Prediction
}

func (c *captureRecorder) Record(_ context.Context, preds []models.Prediction) error {
	c.preds = append(c.preds, preds...)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

func newTestPredictor(t *testing.T, data *fakeData, clf *fakeClassifier, rec *captureRecorder) *Predictor {
	asm, err := features.NewAssembler(smallLayout(), labeling.NewLabeler(labeling.DefaultThresholdTable()), 1, nil)
	require.NoError(t, err)
	p, err := NewPredictor(data, clf, asm, rec, metrics.Nop{}, InferenceWindow{LookbackDays: 30}, nil)
	require.NoError(t, err)
	p.now = func() time.Time { return day0.AddDate(0, 1, 0) }
	return p
}

func TestPredictManyReportsPerSymbol(t *testing.T) {
	vocab := []string{"Sell", "Hold", "Buy"}
	data := &fakeData{
		candles: map[string][]models.Candle{"AAPL": candles("AAPL", 10, 11, 12)},
		value: func(_ models.IndicatorRequest, i, n int) float64 {
			if i == n-1 {
				return math.NaN()
			}
			return 1
		},
	}
	clf := &fakeClassifier{
		columns:  []string{"sma_2", "volume"},
		vocab:    vocab,
		defaults: []float64{7, 0},
		probs:    []float64{0.1, 0.3, 0.6},
	}
	rec := &captureRecorder{}
	p := newTestPredictor(t, data, clf, rec)

	results := p.PredictMany(context.Background(), []string{"aapl", "msft", "AAPL"})
	require.Len(t, results, 2)
	assert.Equal(t, "AAPL", results[0].Symbol)
	require.NoError(t, results[0].Err)
	assert.Equal(t, "Buy", results[0].Prediction.Label)
	assert.InDelta(t, 0.6, results[0].Prediction.Confidence, 1e-12)
	assert.InDelta(t, 0.3, results[0].Prediction.Probabilities["Hold"], 1e-12)
	assert.Equal(t, day0.AddDate(0, 0, 2), results[0].Prediction.AsOf)

	assert.Equal(t, "MSFT", results[1].Symbol)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Prediction)

	require.Len(t, clf.rows, 1)
	assert.Equal(t, []float64{7, 30}, clf.rows[0])
	require.Len(t, rec.preds, 1)
	assert.Equal(t, "AAPL", rec.preds[0].Symbol)
}

func TestNewPredictorRejectsColumnMismatch(t *testing.T) {
	asm, err := features.NewAssembler(smallLayout(), defaultLabeler(), 1, nil)
	require.NoError(t, err)
	_, err = NewPredictor(&fakeData{}, &fakeClassifier{columns: []string{"sma_2"}}, asm, &captureRecorder{}, metrics.Nop{}, InferenceWindow{}, nil)
	require.Error(t, err)
}

func TestInferenceWindowBounds(t *testing.T) {
	wed := time.Date(2021, 3, 17, 15, 0, 0, 0, time.UTC)
	from, to := InferenceWindow{LookbackDays: 5}.Bounds(wed)
	assert.Equal(t, time.Date(2021, 3, 17, 23, 59, 59, 0, time.UTC), to)
	assert.Equal(t, time.Date(2021, 3, 10, 0, 0, 0, 0, time.UTC), from)

	from, to = InferenceWindow{LookbackDays: 5, DaysSinceLast: 3}.Bounds(wed)
	assert.Equal(t, time.Date(2021, 3, 12, 23, 59, 59, 0, time.UTC), to)
	assert.Equal(t, time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC), from)

	morningFrom, morningTo := InferenceWindow{LookbackDays: 5}.Bounds(wed.Add(-14 * time.Hour))
	eveningFrom, eveningTo := InferenceWindow{LookbackDays: 5}.Bounds(wed.Add(8 * time.Hour))
	assert.Equal(t, morningFrom, eveningFrom)
	assert.Equal(t, morningTo, eveningTo)
}

type memoData struct {
	fakeData
	ranges  map[[2]int64]int
	forgets int
}

func (m *memoData) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	m.ranges[[2]int64{from.Unix(), to.Unix()}]++
	return m.fakeData.GetCandles(ctx, symbol, from, to)
}

func (m *memoData) Forget() { m.forgets++ }

func TestPredictManyReusesRangeAndForgetsMemo(t *testing.T) {
	data := &memoData{
		fakeData: fakeData{candles: map[string][]models.Candle{"AAPL": candles("AAPL", 10, 11, 12)}},
		ranges:   make(map[[2]int64]int),
	}
	clf := &fakeClassifier{
		columns:  []string{"sma_2", "volume"},
		vocab:    []string{"Hold"},
		defaults: []float64{0, 0},
		probs:    []float64{1},
	}
	asm, err := features.NewAssembler(smallLayout(), defaultLabeler(), 1, nil)
	require.NoError(t, err)
	p, err := NewPredictor(data, clf, asm, &captureRecorder{}, metrics.Nop{}, InferenceWindow{LookbackDays: 30}, nil)
	require.NoError(t, err)

	now := time.Date(2021, 2, 3, 14, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	for i := 0; i < 5; i++ {
		results := p.PredictMany(context.Background(), []string{"AAPL"})
		require.NoError(t, results[0].Err)
		now = now.Add(time.Minute)
	}

	assert.Len(t, data.ranges, 1)
	assert.Equal(t, 5, data.forgets)
}

func TestMarketRefresherSwapsBlock(t *testing.T) {
	sp := features.IndexSpec{Name: "SP500"}
	first := []models.MarketIndex{{Name: "SP500", Candles: candles("SP500", 100, 101)}}
	block, err := features.BuildMarketBlock(first, []int{2})
	require.NoError(t, err)
	asm, err := features.NewAssembler(smallLayout(sp), defaultLabeler(), 1, block)
	require.NoError(t, err)

	clf := &fakeClassifier{columns: asm.Columns(), vocab: []string{"Hold"}, probs: []float64{1}}
	p, err := NewPredictor(&fakeData{}, clf, asm, &captureRecorder{}, metrics.Nop{}, InferenceWindow{}, nil)
	require.NoError(t, err)

	src := &fakeIndices{indices: []models.MarketIndex{{Name: "SP500", Candles: candles("SP500", 100, 101, 102, 103)}}}
	r := NewMarketRefresher(src, p, []int{2}, "0 30 22 * * 1-5", nil)
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, day0.AddDate(0, 0, 3), p.MarketAsOf())

	src.indices = []models.MarketIndex{{Name: "Other", Candles: candles("Other", 1, 2)}}
	require.Error(t, r.Refresh(context.Background()))
	assert.Equal(t, day0.AddDate(0, 0, 3), p.assembler().Block().AsOf())
}

func TestMarketRefresherSchedule(t *testing.T) {
	r := NewMarketRefresher(&fakeIndices{}, nil, nil, "not a schedule", nil)
	require.Error(t, r.Start())

	r = NewMarketRefresher(&fakeIndices{}, nil, nil, "0 30 22 * * 1-5", nil)
	require.NoError(t, r.Start())
	require.NoError(t, r.Stop(context.Background()))
}

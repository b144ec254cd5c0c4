package repository

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockAction/internal/domain/models"
	pkgkafka "StockAction/pkg/kafka"
)

var vocab = []string{"Fair Sell", "Hold", "Fair Buy"}

func sampleDataset() *models.Dataset {
	return &models.Dataset{
		Columns:    []string{"sma_10", "volume"},
		Vocabulary: vocab,
		Rows: []models.Row{
			{Symbol: "AAPL", Features: []float64{1.5, 1000}, Label: "Hold"},
			{Symbol: "AAPL", Features: []float64{-0.25, 2e6}, Label: "Fair Buy"},
			{Symbol: "MSFT", Features: []float64{3, 0}, Label: "Fair Sell"},
		},
	}
}

func TestCSVDatasetStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "training.csv")
	store := NewCSVDatasetStore(path, vocab, nil)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Save(ctx, sampleDataset()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Equal(t, "sma_10,volume,Fair Sell,Hold,Fair Buy", lines[0])
	require.Equal(t, "1.5,1000,0,1,0", lines[1])
	require.Len(t, lines, 4)

	ds, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"sma_10", "volume"}, ds.Columns)
	require.Equal(t, vocab, ds.Vocabulary)
	require.Len(t, ds.Rows, 3)
	require.Equal(t, []float64{-0.25, 2e6}, ds.Rows[1].Features)
	require.Equal(t, "Fair Buy", ds.Rows[1].Label)
	require.Equal(t, []int{1, 2, 0}, ds.Classes())
}

func TestCSVDatasetStoreRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewCSVDatasetStore(filepath.Join(dir, "a.csv"), vocab, nil)
	ds := sampleDataset()
	ds.Vocabulary = []string{"Hold"}
	require.ErrorIs(t, store.Save(ctx, ds), ErrLayoutMismatch)

	ds = sampleDataset()
	ds.Rows[0].Label = "Strong Buy"
	require.Error(t, store.Save(ctx, ds))

	require.NoError(t, store.Save(ctx, sampleDataset()))
	other := NewCSVDatasetStore(filepath.Join(dir, "a.csv"), []string{"Sell", "Hold", "Buy"}, nil)
	_, err := other.Load(ctx)
	require.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestCSVDatasetStoreRejectsBadOneHot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("x,Fair Sell,Hold,Fair Buy\n1,1,1,0\n"), 0o644))
	_, err := NewCSVDatasetStore(path, vocab, nil).Load(context.Background())
	require.Error(t, err)
}

func TestCSVDatasetStoreNamesBadColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	body := "sma_10,volume,Fair Sell,Hold,Fair Buy\n1,2,0,1,0\nabc,3,0,1,0\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := NewCSVDatasetStore(path, vocab, nil).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3 column sma_10")
}

func TestDatasetSchemaNamesTables(t *testing.T) {
	stmts := datasetSchema("db.rows", "db.rows_layout")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "db.rows (")
	assert.Contains(t, stmts[0], "features     Array(Float64)")
	assert.Contains(t, stmts[1], "db.rows_layout (")
}

const sp500 = `Date,Open,High,Low,Close,Adj Close
2021-01-06,3712.2,3783.04,3705.34,3748.14,3748.14
2021-01-04,3764.61,3769.99,3662.71,3700.65,3700.65
2021-01-05,3698.02,3737.83,3695.07,null,null
`

func TestParseIndexCSV(t *testing.T) {
	candles, err := parseIndexCSV(strings.NewReader(sp500), "SP500")
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, "2021-01-04", candles[0].Time.Format("2006-01-02"))
	assert.Equal(t, "2021-01-06", candles[2].Time.Format("2006-01-02"))
	assert.InDelta(t, 3700.65, candles[0].Close, 1e-9)
	assert.True(t, math.IsNaN(candles[1].Close))
	assert.True(t, math.IsNaN(candles[0].Volume))
	assert.Equal(t, "SP500", candles[0].Symbol)
}

func TestParseIndexCSVErrors(t *testing.T) {
	_, err := parseIndexCSV(strings.NewReader("Date,Open\n2021-01-04,1\n"), "X")
	require.Error(t, err)

	_, err = parseIndexCSV(strings.NewReader("Date,Close\nyesterday,1\n"), "X")
	require.Error(t, err)

	_, err = parseIndexCSV(strings.NewReader("Date,Close\n"), "X")
	require.Error(t, err)
}

type candleStub struct {
	symbol   string
	from, to time.Time
}

func (c *candleStub) GetCandles(_ context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	c.symbol, c.from, c.to = symbol, from, to
	return []models.Candle{{Time: from, Close: 1}}, nil
}

func TestIndexLoaderMixesSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sp500.csv")
	require.NoError(t, os.WriteFile(path, []byte(sp500), 0o644))

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	stub := &candleStub{}
	loader := NewIndexLoader([]IndexSpec{
		{Name: "SP500", Source: "csv", Path: path},
		{Name: "Nasdaq", Source: "provider", Symbol: "^IXIC", HasVolume: true},
	}, stub, func() (time.Time, time.Time) { return from, to }, nil)

	indices, err := loader.LoadIndices(context.Background())
	require.NoError(t, err)
	require.Len(t, indices, 2)
	assert.Equal(t, "SP500", indices[0].Name)
	assert.False(t, indices[0].HasVolume)
	assert.Len(t, indices[0].Candles, 3)
	assert.True(t, indices[1].HasVolume)
	assert.Equal(t, "^IXIC", stub.symbol)
	assert.Equal(t, from, stub.from)
	assert.Equal(t, to, stub.to)
}

func TestIndexLoaderMissingFile(t *testing.T) {
	loader := NewIndexLoader([]IndexSpec{{Name: "DJI", Source: "csv", Path: "/nonexistent/dji.csv"}}, nil, nil, nil)
	_, err := loader.LoadIndices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DJI")
}

func TestSQLiteRecorder(t *testing.T) {
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "preds.db"))
	require.NoError(t, err)
	defer rec.Close()

	ctx := context.Background()
	asOf := time.Date(2021, 3, 19, 0, 0, 0, 0, time.UTC)
	require.NoError(t, rec.Record(ctx, nil))
	require.NoError(t, rec.Record(ctx, []models.Prediction{
		{Symbol: "AAPL", Label: "Hold", Confidence: 0.6, Probabilities: map[string]float64{"Hold": 0.6, "Fair Buy": 0.4}, AsOf: asOf, CreatedAt: asOf.Add(time.Hour)},
		{Symbol: "MSFT", Label: "Fair Buy", Confidence: 0.7, AsOf: asOf, CreatedAt: asOf.Add(time.Hour)},
		{Symbol: "AAPL", Label: "Fair Buy", Confidence: 0.5, AsOf: asOf, CreatedAt: asOf.Add(2 * time.Hour)},
	}))

	got, err := rec.Recent(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Fair Buy", got[0].Label)
	assert.Equal(t, "Hold", got[1].Label)
	assert.InDelta(t, 0.4, got[1].Probabilities["Fair Buy"], 1e-12)
	assert.Equal(t, asOf, got[1].AsOf)
}

type publisherStub struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (p *publisherStub) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *publisherStub) Close() error {
	p.closed = true
	return nil
}

func TestKafkaRecorderKeysBySymbol(t *testing.T) {
	pub := &publisherStub{}
	rec := &KafkaRecorder{producer: pub, topic: "stockaction.predictions"}

	require.NoError(t, rec.Record(context.Background(), []models.Prediction{{Symbol: "AAPL", Label: "Hold"}}))
	require.Equal(t, "stockaction.predictions", pub.topic)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, []byte("AAPL"), pub.msgs[0].Key)
	assert.Equal(t, "Hold", pub.msgs[0].Value.(models.Prediction).Label)

	require.NoError(t, rec.Close())
	assert.False(t, pub.closed)
	assert.NoError(t, NopRecorder{}.Record(context.Background(), nil))
}

func TestCSVCandleSourceFiltersWindow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL.csv"), []byte(sp500), 0o644))
	src := NewCSVCandleSource(dir)

	from := time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC)
	candles, err := src.GetCandles(context.Background(), "aapl", from, to)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "AAPL", candles[0].Symbol)
	assert.Equal(t, "2021-01-05", candles[0].Time.Format("2006-01-02"))

	_, err = src.GetCandles(context.Background(), "MSFT", from, to)
	require.ErrorIs(t, err, ErrUnknownSymbol)

	_, err = src.GetCandles(context.Background(), "../AAPL", from, to)
	require.ErrorIs(t, err, ErrUnknownSymbol)
}

package repository

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"StockAction/internal/domain/models"
	domrepo "StockAction/internal/domain/repository"
	applogger "StockAction/pkg/logger"
	"StockAction/pkg/util"
)

// IndexSpec says where one market index series comes from.
type IndexSpec struct {
	Name      string
	Source    string // csv or provider
	Path      string
	Symbol    string
	HasVolume bool
}

// Window reports the date range provider-backed indices are fetched for.
type Window func() (from, to time.Time)

// IndexLoader reads market indices from Yahoo-style CSV exports or from the
// market-data provider.
type IndexLoader struct {
	specs  []IndexSpec
	source domrepo.CandleSource
	window Window
	l      *applogger.Logger
}

func NewIndexLoader(specs []IndexSpec, source domrepo.CandleSource, window Window, l *applogger.Logger) *IndexLoader {
	if l == nil {
		l = applogger.Nop()
	}
	return &IndexLoader{specs: specs, source: source, window: window, l: l}
}

func (il *IndexLoader) LoadIndices(ctx context.Context) ([]models.MarketIndex, error) {
	out := make([]models.MarketIndex, 0, len(il.specs))
	for _, spec := range il.specs {
		var (
			candles []models.Candle
			err     error
		)
		switch spec.Source {
		case "", "csv":
			candles, err = ReadIndexCSV(spec.Path, spec.Name)
		case "provider":
			if il.source == nil || il.window == nil {
				return nil, fmt.Errorf("market index %s: no provider configured", spec.Name)
			}
			from, to := il.window()
			candles, err = il.source.GetCandles(ctx, spec.Symbol, from, to)
		default:
			err = fmt.Errorf("unknown source %q", spec.Source)
		}
		if err != nil {
			return nil, fmt.Errorf("market index %s: %w", spec.Name, err)
		}
		il.l.Debug("market index loaded",
			applogger.String("index", spec.Name),
			applogger.String("source", spec.Source),
			applogger.Int("bars", len(candles)),
		)
		out = append(out, models.MarketIndex{Name: spec.Name, HasVolume: spec.HasVolume, Candles: candles})
	}
	return out, nil
}

// ReadIndexCSV parses a Date,Open,High,Low,Close[,Adj Close][,Volume] export.
// Column order is taken from the header, "null" cells become NaN and rows are
// returned oldest first whatever order the file uses.
func ReadIndexCSV(path, name string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseIndexCSV(bufio.NewReader(f), name)
}

func parseIndexCSV(r io.Reader, name string) ([]models.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := map[string]int{}
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"date", "close"} {
		if _, ok := pos[req]; !ok {
			return nil, fmt.Errorf("missing %q column", req)
		}
	}

	cell := func(rec []string, col string) float64 {
		i, ok := pos[col]
		if !ok || i >= len(rec) {
			return math.NaN()
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	var out []models.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if pos["date"] >= len(rec) || strings.TrimSpace(rec[pos["date"]]) == "" {
			continue
		}
		raw := strings.TrimSpace(rec[pos["date"]])
		day, ok := util.ParseDate(raw)
		if !ok {
			return nil, fmt.Errorf("line %d: bad date %q", line, raw)
		}
		out = append(out, models.Candle{
			Time:   day,
			Symbol: name,
			Open:   cell(rec, "open"),
			High:   cell(rec, "high"),
			Low:    cell(rec, "low"),
			Close:  cell(rec, "close"),
			Volume: cell(rec, "volume"),
		})
	}
	if len(out) == 0 {
		return nil, errors.New("no rows")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

var _ domrepo.MarketIndexSource = (*IndexLoader)(nil)

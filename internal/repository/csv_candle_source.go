package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"StockAction/internal/domain/models"
	domrepo "StockAction/internal/domain/repository"
)

var ErrUnknownSymbol = errors.New("no candle file for symbol")

// CSVCandleSource serves daily candles from <dir>/<SYMBOL>.csv exports in the
// same layout as the market index files.
type CSVCandleSource struct {
	dir string
}

func NewCSVCandleSource(dir string) *CSVCandleSource {
	return &CSVCandleSource{dir: dir}
}

func (s *CSVCandleSource) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || strings.ContainsAny(symbol, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	path := filepath.Join(s.dir, symbol+".csv")
	all, err := ReadIndexCSV(path, symbol)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make([]models.Candle, 0, len(all))
	for _, c := range all {
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no candles between %s and %s", symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return out, nil
}

var _ domrepo.CandleSource = (*CSVCandleSource)(nil)

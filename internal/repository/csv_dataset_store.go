package repository

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"StockAction/internal/domain/models"
	domrepo "StockAction/internal/domain/repository"
	applogger "StockAction/pkg/logger"
)

var ErrLayoutMismatch = errors.New("dataset layout mismatch")

// CSVDatasetStore keeps the training table as a delimited file whose header is
// the input columns followed by one one-hot column per vocabulary label.
type CSVDatasetStore struct {
	path       string
	vocabulary []string
	l          *applogger.Logger
}

func NewCSVDatasetStore(path string, vocabulary []string, l *applogger.Logger) *CSVDatasetStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CSVDatasetStore{path: path, vocabulary: vocabulary, l: l}
}

func (s *CSVDatasetStore) Init(_ context.Context) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dataset dir: %w", err)
		}
	}
	return nil
}

func (s *CSVDatasetStore) Save(ctx context.Context, ds *models.Dataset) error {
	start := time.Now()
	if err := checkVocabulary(ds.Vocabulary, s.vocabulary); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer os.Remove(tmp)

	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	header := append(append([]string{}, ds.Columns...), s.vocabulary...)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for i, r := range ds.Rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}
		}
		if len(r.Features) != len(ds.Columns) {
			f.Close()
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrLayoutMismatch, i, len(r.Features), len(ds.Columns))
		}
		for j, v := range r.Features {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		hot := false
		for k, label := range s.vocabulary {
			if label == r.Label {
				record[len(r.Features)+k] = "1"
				hot = true
			} else {
				record[len(r.Features)+k] = "0"
			}
		}
		if !hot {
			f.Close()
			return fmt.Errorf("row %d: label %q not in vocabulary", i, r.Label)
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	s.l.Info("dataset saved",
		applogger.String("path", s.path),
		applogger.Int("rows", len(ds.Rows)),
		applogger.Int("input_columns", len(ds.Columns)),
		applogger.Int("output_columns", len(s.vocabulary)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (s *CSVDatasetStore) Load(ctx context.Context) (*models.Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	// later reads overwrite the reused record
	header = append([]string(nil), header...)
	k := len(s.vocabulary)
	if len(header) <= k {
		return nil, fmt.Errorf("%w: header has %d columns, vocabulary %d", ErrLayoutMismatch, len(header), k)
	}
	inputs := len(header) - k
	if err := checkVocabulary(header[inputs:], s.vocabulary); err != nil {
		return nil, err
	}

	ds := &models.Dataset{
		Columns:    append([]string(nil), header[:inputs]...),
		Vocabulary: append([]string(nil), s.vocabulary...),
	}
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row := models.Row{Features: make([]float64, inputs)}
		for j := 0; j < inputs; j++ {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[j], err)
			}
			row.Features[j] = v
		}
		for c := 0; c < k; c++ {
			if record[inputs+c] == "1" {
				if row.Label != "" {
					return nil, fmt.Errorf("line %d: more than one hot label", line)
				}
				row.Label = s.vocabulary[c]
			}
		}
		if row.Label == "" {
			return nil, fmt.Errorf("line %d: no hot label", line)
		}
		ds.Rows = append(ds.Rows, row)
	}

	s.l.Info("dataset loaded", applogger.String("path", s.path), applogger.Int("rows", len(ds.Rows)))
	return ds, nil
}

func (s *CSVDatasetStore) Close() error { return nil }

func checkVocabulary(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: vocabulary %v, want %v", ErrLayoutMismatch, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("%w: vocabulary %v, want %v", ErrLayoutMismatch, got, want)
		}
	}
	return nil
}

var _ domrepo.DatasetStore = (*CSVDatasetStore)(nil)

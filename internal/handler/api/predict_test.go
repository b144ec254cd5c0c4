package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockAction/internal/domain/models"
	"StockAction/internal/usecase"
	xlogger "StockAction/pkg/logger"
)

type stubPredictor struct {
	got  []string
	asOf time.Time
}

func (s *stubPredictor) Vocabulary() []string { return []string{"Fair Sell", "Hold", "Fair Buy"} }

func (s *stubPredictor) MarketAsOf() time.Time { return s.asOf }

func (s *stubPredictor) PredictMany(_ context.Context, symbols []string) []usecase.PredictionResult {
	s.got = symbols
	out := make([]usecase.PredictionResult, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		if sym == "BAD" {
			out = append(out, usecase.PredictionResult{Symbol: sym, Err: errors.New("no data")})
			continue
		}
		out = append(out, usecase.PredictionResult{Symbol: sym, Prediction: &models.Prediction{Symbol: sym, Label: "Hold", Confidence: 0.5}})
	}
	return out
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *PredictHandler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestPredictEndpoint(t *testing.T) {
	pred := &stubPredictor{}
	h := NewPredictHandler(xlogger.Nop(), pred, ModelInfo{Name: "m"})

	rec, env := serve(t, h, "/api/predict?symbols=aapl,bad")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusOK, env.Status)
	assert.Equal(t, []string{"aapl", "bad"}, pred.got)

	var list struct {
		Rows []struct {
			Symbol     string             `json:"symbol"`
			Prediction *models.Prediction `json:"prediction"`
			Error      string             `json:"error"`
		} `json:"rows"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 2, list.Total)
	assert.Equal(t, "Hold", list.Rows[0].Prediction.Label)
	assert.Empty(t, list.Rows[0].Error)
	assert.Nil(t, list.Rows[1].Prediction)
	assert.Equal(t, "no data", list.Rows[1].Error)
}

func TestPredictEndpointValidates(t *testing.T) {
	h := NewPredictHandler(xlogger.Nop(), &stubPredictor{}, ModelInfo{})

	_, env := serve(t, h, "/api/predict")
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Contains(t, string(env.Data), "ERR_REQUIRED")

	many := strings.TrimSuffix(strings.Repeat("A,", maxSymbols+1), ",")
	_, env = serve(t, h, "/api/predict?symbols="+many)
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Contains(t, string(env.Data), "ERR_TOO_MANY_SYMBOLS")

	rec, env := serve(t, h, "/api/predict?symbols=AAPL,a/b")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_TICKERS")
}

func TestVocabularyAndHealth(t *testing.T) {
	asOf := time.Date(2021, 3, 17, 0, 0, 0, 0, time.UTC)
	h := NewPredictHandler(xlogger.Nop(), &stubPredictor{asOf: asOf}, ModelInfo{Name: "m", Horizon: 30})

	_, env := serve(t, h, "/api/vocabulary")
	var vocab []string
	require.NoError(t, json.Unmarshal(env.Data, &vocab))
	assert.Equal(t, []string{"Fair Sell", "Hold", "Fair Buy"}, vocab)

	_, env = serve(t, h, "/health")
	assert.Contains(t, string(env.Data), `"status":"ok"`)
	assert.Contains(t, string(env.Data), `"horizon":30`)
	assert.Contains(t, string(env.Data), `"market_as_of":"2021-03-17"`)
}

type stubHistory struct {
	symbol string
	n      int
	err    error
}

func (s *stubHistory) Recent(_ context.Context, symbol string, n int) ([]models.Prediction, error) {
	s.symbol, s.n = symbol, n
	if s.err != nil {
		return nil, s.err
	}
	return []models.Prediction{{Symbol: symbol, Label: "Fair Buy"}}, nil
}

func TestHistoryEndpoint(t *testing.T) {
	h := NewPredictHandler(xlogger.Nop(), &stubPredictor{}, ModelInfo{})
	rec, env := serve(t, h, "/api/predictions/aapl")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_HISTORY_DISABLED")

	hist := &stubHistory{}
	h.WithHistory(hist)
	rec, env = serve(t, h, "/api/predictions/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", hist.symbol)
	assert.Equal(t, 20, hist.n)
	assert.Contains(t, string(env.Data), `"label":"Fair Buy"`)

	_, _ = serve(t, h, "/api/predictions/MSFT?limit=5")
	assert.Equal(t, 5, hist.n)

	rec, env = serve(t, h, "/api/predictions/MSFT?limit=500")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_MAX")

	hist.err = errors.New("disk gone")
	rec, _ = serve(t, h, "/api/predictions/MSFT")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"StockAction/internal/domain/models"
	drepo "StockAction/internal/domain/repository"
	"StockAction/internal/usecase"
	xhttp "StockAction/pkg/http"
	xlogger "StockAction/pkg/logger"
	"StockAction/pkg/util"
)

const maxSymbols = 25

// Predictor is the slice of the prediction use case the handler needs.
type Predictor interface {
	PredictMany(ctx context.Context, symbols []string) []usecase.PredictionResult
	Vocabulary() []string
	MarketAsOf() time.Time
}

// ModelInfo is reported by the health endpoint.
type ModelInfo struct {
	Name         string   `json:"name"`
	Horizon      int      `json:"horizon"`
	Symbols      []string `json:"symbols"`
	TestAccuracy float64  `json:"test_accuracy"`
}

type predictionItem struct {
	Symbol     string             `json:"symbol"`
	Prediction *models.Prediction `json:"prediction,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type PredictHandler struct {
	logger  *xlogger.Logger
	pred    Predictor
	info    ModelInfo
	history drepo.PredictionHistory
}

func NewPredictHandler(logger *xlogger.Logger, pred Predictor, info ModelInfo) *PredictHandler {
	return &PredictHandler{logger: logger, pred: pred, info: info}
}

// WithHistory enables the recorded-predictions endpoint.
func (h *PredictHandler) WithHistory(history drepo.PredictionHistory) *PredictHandler {
	h.history = history
	return h
}

func (h *PredictHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api")
	g.GET("/predict", h.Predict)
	g.GET("/predictions/:symbol", h.History)
	g.GET("/vocabulary", h.Vocabulary)
}

func (h *PredictHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := util.SplitSymbols(req.Symbols)
	if len(symbols) > maxSymbols {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_TOO_MANY_SYMBOLS", "symbols", "too many symbols", http.StatusBadRequest).
			WithParam("max", maxSymbols))
	}

	results := h.pred.PredictMany(c.Request().Context(), symbols)
	items := make([]predictionItem, len(results))
	for i, r := range results {
		items[i] = predictionItem{Symbol: r.Symbol, Prediction: r.Prediction}
		if r.Err != nil {
			h.logger.Warn("predict failed", xlogger.String("symbol", r.Symbol), xlogger.Error(r.Err))
			items[i].Error = r.Err.Error()
		}
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.ListResponse(c, items, int64(len(items)))
}

// History lists a symbol's recorded predictions, newest first.
func (h *PredictHandler) History(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_HISTORY_DISABLED", "",
			"prediction history needs the sqlite recorder", http.StatusNotFound))
	}
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	preds, err := h.history.Recent(c.Request().Context(), symbol, req.Limit)
	if err != nil {
		h.logger.Error("read prediction history", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_HISTORY", "", "could not read predictions",
			http.StatusInternalServerError).WithError(err))
	}
	if preds == nil {
		preds = []models.Prediction{}
	}
	return xhttp.ListResponse(c, preds, int64(len(preds)))
}

func (h *PredictHandler) Vocabulary(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.pred.Vocabulary())
}

func (h *PredictHandler) Health(c echo.Context) error {
	body := map[string]interface{}{
		"status": "ok",
		"model":  h.info,
	}
	if asOf := h.pred.MarketAsOf(); !asOf.IsZero() {
		body["market_as_of"] = util.DayKey(asOf)
	}
	return xhttp.SuccessResponse(c, body)
}

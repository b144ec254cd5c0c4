package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"StockAction/internal/domain/models"
	drepo "StockAction/internal/domain/repository"
	"StockAction/internal/service/cache"
	"StockAction/internal/service/ratelimit"
	xhttp "StockAction/pkg/http"
	applogger "StockAction/pkg/logger"
	"StockAction/pkg/metrics"
)

const DefaultBaseURL = "https://finnhub.io/api/v1"

var ErrNoData = errors.New("finnhub: no data")

// APIError is a non-2xx answer from the REST API. 429 means the call budget is spent.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finnhub %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Client fetches daily candles and technical indicators over the Finnhub REST API.
// Every outbound request waits on the shared throttle first.
type Client struct {
	http       *xhttp.Client
	baseURL    string
	apiKey     string
	resolution drepo.Resolution
	throttle   *ratelimit.Throttle
	cache      cache.BytesCache
	cacheTTL   time.Duration
	metrics    drepo.Metrics
	l          *applogger.Logger
}

type Option func(*Client)

func WithThrottle(t *ratelimit.Throttle) Option { return func(c *Client) { c.throttle = t } }

func WithCache(bc cache.BytesCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = bc
		c.cacheTTL = ttl
	}
}

func WithMetrics(m drepo.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.l = l } }

func WithResolution(r drepo.Resolution) Option { return func(c *Client) { c.resolution = r } }

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = xhttp.NewClient(xhttp.WithTimeout(d), xhttp.WithUserAgent("stockaction")) }
}

// New creates a REST client. The default throttle spaces calls one second apart.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http:       xhttp.NewClient(xhttp.WithUserAgent("stockaction")),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		resolution: drepo.ResolutionDaily,
		throttle:   ratelimit.NewThrottle(time.Second),
		cache:      cache.Nop{},
		metrics:    metrics.Nop{},
		l:          applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type candleResp struct {
	C []float64 `json:"c"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	O []float64 `json:"o"`
	V []float64 `json:"v"`
	T []int64   `json:"t"`
	S string    `json:"s"`
}

// GetCandles returns daily bars between from and to, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	var r candleResp
	if err := c.get(ctx, "/stock/candle", c.rangeParams(symbol, from, to), &r); err != nil {
		return nil, err
	}
	if r.S == "no_data" || len(r.T) == 0 {
		return nil, fmt.Errorf("candles %s: %w", symbol, ErrNoData)
	}
	n := len(r.T)
	if len(r.C) != n || len(r.O) != n || len(r.H) != n || len(r.L) != n || len(r.V) != n {
		return nil, fmt.Errorf("candles %s: ragged response (%d timestamps)", symbol, n)
	}
	out := make([]models.Candle, n)
	for i := range r.T {
		out[i] = models.Candle{
			Time:   time.Unix(r.T[i], 0).UTC(),
			Symbol: symbol,
			Open:   r.O[i],
			High:   r.H[i],
			Low:    r.L[i],
			Close:  r.C[i],
			Volume: r.V[i],
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// GetIndicator returns one indicator series. aroon is reported as aroonup
// minus aroondown and macd as its histogram. JSON nulls become NaN.
func (c *Client) GetIndicator(ctx context.Context, symbol string, from, to time.Time, req models.IndicatorRequest) (*models.IndicatorSeries, error) {
	params := c.rangeParams(symbol, from, to)
	params["indicator"] = []string{req.Name}
	if req.Period > 0 {
		params["timeperiod"] = []string{strconv.Itoa(req.Period)}
	}

	var raw map[string]json.RawMessage
	if err := c.get(ctx, "/indicator", params, &raw); err != nil {
		return nil, err
	}
	var status string
	if s, ok := raw["s"]; ok {
		_ = json.Unmarshal(s, &status)
	}
	var ts []int64
	if t, ok := raw["t"]; ok {
		if err := json.Unmarshal(t, &ts); err != nil {
			return nil, fmt.Errorf("indicator %s %s: decode t: %w", symbol, req.Column(), err)
		}
	}
	if status == "no_data" || len(ts) == 0 {
		return nil, fmt.Errorf("indicator %s %s: %w", symbol, req.Column(), ErrNoData)
	}

	var values []float64
	var err error
	switch req.Name {
	case "aroon":
		var up, down []float64
		if up, err = field(raw, "aroonup"); err == nil {
			if down, err = field(raw, "aroondown"); err == nil {
				values, err = subtract(up, down)
			}
		}
	case "macd":
		values, err = field(raw, "macdHist")
	default:
		values, err = field(raw, req.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("indicator %s %s: %w", symbol, req.Column(), err)
	}
	if len(values) != len(ts) {
		return nil, fmt.Errorf("indicator %s %s: %d values for %d timestamps", symbol, req.Column(), len(values), len(ts))
	}

	s := &models.IndicatorSeries{Request: req, Times: make([]time.Time, len(ts)), Values: values}
	for i, t := range ts {
		s.Times[i] = time.Unix(t, 0).UTC()
	}
	return s, nil
}

func (c *Client) rangeParams(symbol string, from, to time.Time) map[string][]string {
	return map[string][]string{
		"symbol":     {symbol},
		"resolution": {string(c.resolution)},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string][]string, dest interface{}) error {
	key := cacheKey(endpoint, params)
	if b, ok, err := c.cache.GetBytes(ctx, key); err != nil {
		c.l.Warn("finnhub cache read failed", applogger.String("endpoint", endpoint), applogger.Error(err))
	} else if ok {
		if err := json.Unmarshal(b, dest); err == nil {
			return nil
		}
	}

	if err := c.throttle.Wait(ctx); err != nil {
		return fmt.Errorf("finnhub %s: throttle: %w", endpoint, err)
	}

	query := make(map[string][]string, len(params)+1)
	for k, v := range params {
		query[k] = v
	}
	query["token"] = []string{c.apiKey}

	start := time.Now()
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + endpoint,
		QueryParams: query,
	}, &body)
	c.metrics.RecordLatency("finnhub"+endpoint, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordAPICall(endpoint, "error")
		c.metrics.RecordError("finnhub")
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			return &APIError{StatusCode: se.StatusCode, Endpoint: endpoint, Message: se.Body}
		}
		return fmt.Errorf("finnhub %s: %w", endpoint, err)
	}
	c.metrics.RecordAPICall(endpoint, "ok")

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("finnhub %s: decode: %w", endpoint, err)
	}
	if err := c.cache.SetBytes(ctx, key, body, c.cacheTTL); err != nil {
		c.l.Warn("finnhub cache write failed", applogger.String("endpoint", endpoint), applogger.Error(err))
	}
	c.l.Debug("finnhub call",
		applogger.String("endpoint", endpoint),
		applogger.String("symbol", first(params["symbol"])),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func cacheKey(endpoint string, params map[string][]string) string {
	v := url.Values{}
	for k, vals := range params {
		for _, s := range vals {
			v.Add(k, s)
		}
	}
	return "finnhub:" + endpoint + "?" + v.Encode()
}

func field(raw map[string]json.RawMessage, name string) ([]float64, error) {
	b, ok := raw[name]
	if !ok {
		return nil, fmt.Errorf("response has no %q series", name)
	}
	var ptrs []*float64
	if err := json.Unmarshal(b, &ptrs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	out := make([]float64, len(ptrs))
	for i, p := range ptrs {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	return out, nil
}

func subtract(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("sub-series lengths differ: %d and %d", len(a), len(b))
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out, nil
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

var _ drepo.MarketData = (*Client)(nil)

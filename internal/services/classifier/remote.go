package classifier

import (
	"context"
	"fmt"
	"math"
	"time"

	xhttp "StockAction/pkg/http"
)

// HTTPServiceBase wraps the shared HTTP client for JSON calls to a model server.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPServiceBase{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if b.client == nil || b.baseURL == "" {
		return fmt.Errorf("model server client not initialized")
	}
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     b.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry posts JSON with up to attempts tries and a linear backoff.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}, attempts int) error {
	if attempts <= 1 {
		return b.PostJSON(ctx, path, payload, dest)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// RemoteClassifier standardizes rows with the local bundle's scaler and asks a
// model server for the distributions.
type RemoteClassifier struct {
	base     *HTTPServiceBase
	model    *Model
	attempts int
}

func NewRemoteClassifier(model *Model, baseURL string, timeout time.Duration) *RemoteClassifier {
	return &RemoteClassifier{base: NewHTTPServiceBase(baseURL, timeout), model: model, attempts: 2}
}

type predictReq struct {
	Columns []string    `json:"columns"`
	Inputs  [][]float64 `json:"inputs"`
}

type predictResp struct {
	Probabilities [][]float64 `json:"probabilities"`
}

func (r *RemoteClassifier) Vocabulary() []string { return r.model.Vocabulary() }

func (r *RemoteClassifier) Columns() []string { return r.model.Columns() }

func (r *RemoteClassifier) Defaults() []float64 { return r.model.Defaults() }

func (r *RemoteClassifier) Predict(ctx context.Context, inputs [][]float64) ([][]float64, error) {
	if r.model.Scaler == nil {
		return nil, ErrNotFitted
	}
	scaled, err := r.model.Scaler.Transform(inputs)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	var resp predictResp
	if err := r.base.PostJSONWithRetry(ctx, "/predict", predictReq{Columns: r.model.Manifest.Columns, Inputs: scaled}, &resp, r.attempts); err != nil {
		return nil, err
	}
	if len(resp.Probabilities) != len(inputs) {
		return nil, fmt.Errorf("%w: model server returned %d rows for %d inputs", ErrShapeMismatch, len(resp.Probabilities), len(inputs))
	}
	k := len(r.model.Manifest.Vocabulary)
	for i, p := range resp.Probabilities {
		if err := checkDistribution(p, k); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return resp.Probabilities, nil
}

func checkDistribution(p []float64, k int) error {
	if len(p) != k {
		return fmt.Errorf("%w: %d probabilities for %d labels", ErrShapeMismatch, len(p), k)
	}
	sum := 0.0
	for _, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("probability %v outside [0,1]", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-3 {
		return fmt.Errorf("probabilities sum to %v", sum)
	}
	return nil
}

package models

import "time"

// Prediction is the classifier's verdict for one symbol.
type Prediction struct {
	Symbol        string             `json:"symbol"`
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	AsOf          time.Time          `json:"as_of"`
	CreatedAt     time.Time          `json:"created_at"`
}

// PredictRequest is the query for the HTTP predict endpoint.
type PredictRequest struct {
	Symbols string `query:"symbols" json:"symbols" validate:"required,tickers"`
}

// HistoryRequest asks for a symbol's most recent recorded predictions.
type HistoryRequest struct {
	Symbol string `param:"symbol" validate:"required,ticker"`
	Limit  int    `query:"limit" default:"20" validate:"min=1,max=100"`
}

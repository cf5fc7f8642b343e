package models

// CostBreakdown is the monetary estimate derived from one run's counters.
// Values are rounded to 6 decimal places at computation time and stored as-is.
type CostBreakdown struct {
	ModelCost  float64            `json:"modelCost"`
	SearchCost float64            `json:"searchCost"`
	Total      float64            `json:"total"`
	Currency   string             `json:"currency"`
	Providers  map[string]float64 `json:"providers,omitempty"`
}

// UsageMetadata holds the raw counters captured during one agent run plus the
// cost snapshot computed when the result was stored.
type UsageMetadata struct {
	Model           string        `json:"model"`
	InputTokens     int64         `json:"inputTokens"`
	OutputTokens    int64         `json:"outputTokens"`
	SearchCalls     int64         `json:"searchCalls"`
	Iterations      int           `json:"iterations"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
	PricingVersion  string        `json:"pricingVersion,omitempty"`
	Cost            CostBreakdown `json:"cost"`
}

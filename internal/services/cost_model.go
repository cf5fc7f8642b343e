package services

import (
	"math"

	"weekend_planner_go_backend/internal/models"
)

const tokensPerMillion = 1_000_000

// Pricing is one versioned set of pricing constants.
type Pricing struct {
	Version          string
	Model            string
	ModelProvider    string
	SearchProvider   string
	InputPerMillion  float64
	OutputPerMillion float64
	SearchPerCall    float64
	Currency         string
}

// EstimateCost converts raw usage counters into a cost breakdown. Negative
// counters count as zero. Every figure is rounded to 6 decimal places.
func EstimateCost(p Pricing, inputTokens, outputTokens, searchCalls int64) models.CostBreakdown {
	inputTokens = max(inputTokens, 0)
	outputTokens = max(outputTokens, 0)
	searchCalls = max(searchCalls, 0)

	modelCost := round6(float64(inputTokens)/tokensPerMillion*p.InputPerMillion +
		float64(outputTokens)/tokensPerMillion*p.OutputPerMillion)
	searchCost := round6(float64(searchCalls) * p.SearchPerCall)

	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	breakdown := models.CostBreakdown{
		ModelCost:  modelCost,
		SearchCost: searchCost,
		Total:      round6(modelCost + searchCost),
		Currency:   currency,
		Providers:  map[string]float64{},
	}
	breakdown.Providers[providerName(p.ModelProvider, "model")] += modelCost
	breakdown.Providers[providerName(p.SearchProvider, "search")] += searchCost
	return breakdown
}

func providerName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

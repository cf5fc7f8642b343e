package models

import "time"

const (
	PricingFree     = "free"
	PricingPaid     = "paid"
	PricingDonation = "donation"
)

// Recommendations is the structured payload the agent must produce.
type Recommendations struct {
	SearchSummary   string           `json:"searchSummary" validate:"required"`
	Recommendations []Recommendation `json:"recommendations" validate:"required,min=1,dive"`
	Notes           string           `json:"notes,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

type Recommendation struct {
	Name               string   `json:"name" validate:"required"`
	Description        string   `json:"description" validate:"required"`
	Category           string   `json:"category" validate:"required"`
	AgeRange           AgeRange `json:"ageRange"`
	Location           Location `json:"location"`
	Pricing            Pricing  `json:"pricing"`
	PersonalizedReason string   `json:"personalizedReason" validate:"required"`
	URL                string   `json:"url,omitempty"`
	Date               string   `json:"date,omitempty"`
}

type AgeRange struct {
	Min int `json:"min" validate:"gte=0"`
	Max int `json:"max" validate:"gtefield=Min"`
}

type Location struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
}

type Pricing struct {
	Type    string   `json:"type" validate:"required,oneof=free paid donation"`
	Amount  *float64 `json:"amount,omitempty"`
	Details string   `json:"details,omitempty"`
}

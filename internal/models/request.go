package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the single canonical date representation accepted by the core.
const DateLayout = "2006-01-02"

const (
	RoleChild  = "child"
	RoleAdult  = "adult"
	RoleInfant = "infant"
)

// Attendee is one member of the party the activities are planned for.
type Attendee struct {
	Age  int    `json:"age" binding:"min=0,max=120"`
	Role string `json:"role" binding:"required"`
}

// RecommendationRequest is the validated input to the recommendation core.
type RecommendationRequest struct {
	City           string     `json:"city" binding:"required,max=100"`
	DateRangeStart string     `json:"dateRangeStart" binding:"required,datetime=2006-01-02"`
	DateRangeEnd   string     `json:"dateRangeEnd" binding:"required,datetime=2006-01-02"`
	Attendees      []Attendee `json:"attendees" binding:"required,min=1,max=20,dive"`
	Preferences    *string    `json:"preferences,omitempty" binding:"omitempty,max=500"`
}

// Validate applies the rules binding tags cannot express: trimmed city length,
// role membership (case-insensitive) and start <= end.
func (r RecommendationRequest) Validate() error {
	city := strings.TrimSpace(r.City)
	if city == "" {
		return fmt.Errorf("city is required")
	}
	if len([]rune(city)) > 100 {
		return fmt.Errorf("city must be at most 100 characters")
	}
	if len(r.Attendees) == 0 || len(r.Attendees) > 20 {
		return fmt.Errorf("attendees must contain between 1 and 20 entries")
	}
	for i, a := range r.Attendees {
		if a.Age < 0 || a.Age > 120 {
			return fmt.Errorf("attendees[%d].age must be between 0 and 120", i)
		}
		switch strings.ToLower(strings.TrimSpace(a.Role)) {
		case RoleChild, RoleAdult, RoleInfant:
		default:
			return fmt.Errorf("attendees[%d].role must be one of child, adult, infant", i)
		}
	}
	if r.Preferences != nil && len([]rune(*r.Preferences)) > 500 {
		return fmt.Errorf("preferences must be at most 500 characters")
	}
	start, err := time.Parse(DateLayout, r.DateRangeStart)
	if err != nil {
		return fmt.Errorf("dateRangeStart must be a YYYY-MM-DD date")
	}
	end, err := time.Parse(DateLayout, r.DateRangeEnd)
	if err != nil {
		return fmt.Errorf("dateRangeEnd must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return fmt.Errorf("dateRangeEnd must not be before dateRangeStart")
	}
	return nil
}

// PreferencesText returns the preferences, treating an absent value as empty.
func (r RecommendationRequest) PreferencesText() string {
	if r.Preferences == nil {
		return ""
	}
	return *r.Preferences
}

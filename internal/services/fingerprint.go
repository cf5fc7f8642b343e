package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"weekend_planner_go_backend/internal/models"
)

type normalizedAttendee struct {
	Age  int    `json:"age"`
	Role string `json:"role"`
}

// NormalizedRequest is the canonical form of a request that gets hashed.
// Field order is fixed by the struct definition.
type NormalizedRequest struct {
	City           string               `json:"city"`
	DateRangeStart string               `json:"dateRangeStart"`
	DateRangeEnd   string               `json:"dateRangeEnd"`
	Attendees      []normalizedAttendee `json:"attendees"`
	Preferences    string               `json:"preferences"`
	UserID         uint                 `json:"userId"`
}

// NormalizeRequest lower-cases and trims free text and sorts attendees by age
// so that semantically identical requests compare equal.
func NormalizeRequest(req models.RecommendationRequest, userID uint) NormalizedRequest {
	attendees := make([]normalizedAttendee, len(req.Attendees))
	for i, a := range req.Attendees {
		attendees[i] = normalizedAttendee{
			Age:  a.Age,
			Role: strings.ToLower(strings.TrimSpace(a.Role)),
		}
	}
	sort.SliceStable(attendees, func(i, j int) bool {
		if attendees[i].Age != attendees[j].Age {
			return attendees[i].Age < attendees[j].Age
		}
		return attendees[i].Role < attendees[j].Role
	})

	return NormalizedRequest{
		City:           strings.ToLower(strings.TrimSpace(req.City)),
		DateRangeStart: req.DateRangeStart,
		DateRangeEnd:   req.DateRangeEnd,
		Attendees:      attendees,
		Preferences:    strings.ToLower(strings.TrimSpace(req.PreferencesText())),
		UserID:         userID,
	}
}

// Fingerprint returns the 64-character hex SHA-256 of the normalized request.
func Fingerprint(req models.RecommendationRequest, userID uint) string {
	// Marshalling a struct of strings, ints and a slice of the same cannot fail.
	payload, _ := json.Marshal(NormalizeRequest(req, userID))
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

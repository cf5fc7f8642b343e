package services

import (
	"fmt"
	"strings"

	"weekend_planner_go_backend/internal/models"
)

const webSearchTool = "web_search"

var webSearchDefinition = ToolDefinition{
	Name:        webSearchTool,
	Description: "Search the web for current events, venues, opening hours and prices. Returns a text list of results.",
	Parameters: []ToolParameter{
		{Name: "query", Type: "string", Description: "The search query, including the city and dates when relevant.", Required: true},
		{Name: "num", Type: "integer", Description: "Number of results to return (1-100, default 10)."},
	},
}

const systemInstruction = `You are a family weekend activity curator. You help families and groups find things to do together in a given city on given dates.

Only answer requests for weekend activity recommendations. If the request is about anything else, reply in one plain sentence that you can only help with weekend activities.

Use the web_search tool to find events, exhibitions, workshops and venues that are actually happening or open during the requested date range. Prefer several focused searches over one broad one. Check that each activity suits the ages of every attendee.

When you have enough information, reply with a single JSON object and nothing else, using exactly this shape:
{
  "searchSummary": "one or two sentences on what you searched for and found",
  "recommendations": [
    {
      "name": "activity name",
      "description": "what it is and what to expect",
      "category": "e.g. outdoor, museum, workshop, show, sport, food",
      "ageRange": {"min": 0, "max": 99},
      "location": {"name": "venue", "address": "street address", "city": "city"},
      "pricing": {"type": "free | paid | donation", "amount": 0, "details": "ticket notes"},
      "personalizedReason": "why this fits this group",
      "url": "source link",
      "date": "YYYY-MM-DD or a short schedule"
    }
  ],
  "notes": "optional practical tips"
}

Return between 3 and 7 recommendations. Do not wrap the JSON in prose.`

// buildUserInstruction renders the canonical request for the model.
func buildUserInstruction(req models.RecommendationRequest) string {
	n := NormalizeRequest(req, 0)

	var b strings.Builder
	fmt.Fprintf(&b, "City: %s\n", strings.TrimSpace(req.City))
	fmt.Fprintf(&b, "Dates: %s to %s\n", n.DateRangeStart, n.DateRangeEnd)
	b.WriteString("Attendees:\n")
	for _, a := range n.Attendees {
		fmt.Fprintf(&b, "- %s, age %d\n", a.Role, a.Age)
	}
	if p := strings.TrimSpace(req.PreferencesText()); p != "" {
		fmt.Fprintf(&b, "Preferences: %s\n", p)
	}
	b.WriteString("\nFind current activities for this group and respond with the JSON object described in your instructions.")
	return b.String()
}

// stripCodeFence removes an optional ```json ... ``` wrapper.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

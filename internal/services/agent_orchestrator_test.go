package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"weekend_planner_go_backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel replays replies in order and records every history it saw.
type scriptedModel struct {
	mu        sync.Mutex
	replies   []*ModelReply
	err       error
	calls     int
	histories [][]Turn
	always    *ModelReply
	block     bool
}

func (m *scriptedModel) ModelName() string { return "stub-model" }

func (m *scriptedModel) Generate(ctx context.Context, system string, tools []ToolDefinition, history []Turn) (*ModelReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.histories = append(m.histories, append([]Turn(nil), history...))
	if m.block {
		m.mu.Unlock()
		<-ctx.Done()
		m.mu.Lock()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.always != nil {
		return m.always, nil
	}
	if len(m.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	result  string
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, query string, n int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.result, s.err
}

const validOutput = `{
  "searchSummary": "Found indoor activities",
  "recommendations": [
    {"name": "Science Centre", "description": "Hands-on exhibits", "category": "museum",
     "ageRange": {"min": 3, "max": 99}, "location": {"name": "Centre", "city": "Kraków"},
     "pricing": {"type": "paid", "amount": 30}, "personalizedReason": "Good for a 5 year old"},
    {"name": "Puppet Theatre", "description": "Sunday show", "category": "show",
     "ageRange": {"min": 3, "max": 10}, "location": {"name": "Groteska"},
     "pricing": {"type": "paid"}, "personalizedReason": "Made for small kids"},
    {"name": "Park walk", "description": "Autumn walk", "category": "outdoor",
     "ageRange": {"min": 0, "max": 99}, "location": {"name": "Planty"},
     "pricing": {"type": "free"}, "personalizedReason": "Free and flexible"}
  ]
}`

func toolCall(query string) *ModelReply {
	return &ModelReply{
		Turn:         ToolCallTurn{Name: webSearchTool, Args: map[string]any{"query": query, "num": float64(5)}},
		InputTokens:  100,
		OutputTokens: 10,
	}
}

func textReply(text string) *ModelReply {
	return &ModelReply{Turn: ModelTextTurn{Text: text}, InputTokens: 300, OutputTokens: 200}
}

func newTestOrchestrator(model ChatModel, search WebSearcher, maxIter int) *AgentOrchestrator {
	return NewAgentOrchestrator(model, search, AgentConfig{MaxIterations: maxIter, Timeout: 5 * time.Second})
}

func krakowRequest() models.RecommendationRequest {
	return models.RecommendationRequest{
		City:           "Kraków",
		DateRangeStart: "2025-11-01",
		DateRangeEnd:   "2025-11-02",
		Attendees:      []models.Attendee{{Age: 5, Role: "child"}, {Age: 34, Role: "adult"}},
		Preferences:    strPtr("indoor"),
	}
}

func TestRunToolLoopThenFinalize(t *testing.T) {
	model := &scriptedModel{replies: []*ModelReply{
		toolCall("kids events Kraków November 2025"),
		toolCall("indoor family activities Kraków"),
		textReply(validOutput),
	}}
	search := &stubSearcher{result: "1. Science Centre\n   Link: https://example.org"}
	progress := make(chan ProgressEvent, 32)

	recs, usage, err := newTestOrchestrator(model, search, 8).Run(context.Background(), krakowRequest(), progress)
	require.NoError(t, err)

	assert.Len(t, recs.Recommendations, 3)
	assert.False(t, recs.GeneratedAt.IsZero())
	assert.Equal(t, 3, usage.Iterations)
	assert.Equal(t, int64(2), usage.SearchCalls)
	assert.Equal(t, int64(500), usage.InputTokens)
	assert.Equal(t, int64(220), usage.OutputTokens)
	assert.Equal(t, "stub-model", usage.Model)
	assert.Equal(t, []string{"kids events Kraków November 2025", "indoor family activities Kraków"}, search.queries)

	// Final request carried user turn + two call/result pairs.
	last := model.histories[2]
	require.Len(t, last, 5)
	assert.IsType(t, UserTurn{}, last[0])
	assert.IsType(t, ToolCallTurn{}, last[1])
	assert.Equal(t, ToolResultTurn{Name: webSearchTool, Content: search.result}, last[2])

	close(progress)
	var stages []ProgressStage
	for ev := range progress {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, StageStart, stages[0])
	assert.Contains(t, stages, StageToolInvoked)
	assert.Contains(t, stages, StageFinalizing)
	assert.Equal(t, StageDone, stages[len(stages)-1])
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	model := &scriptedModel{always: toolCall("again")}
	search := &stubSearcher{result: "nothing"}

	_, _, err := newTestOrchestrator(model, search, 4).Run(context.Background(), krakowRequest(), nil)
	assert.ErrorIs(t, err, ErrAgentLoopExceeded)
	assert.Equal(t, 4, model.calls)
	assert.Len(t, search.queries, 4)
}

func TestRunMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"prose":          "I can only help with weekend activities.",
		"missing fields": `{"recommendations": [{"name": "x"}]}`,
		"bad pricing":    strings.Replace(validOutput, `"type": "free"`, `"type": "cheap"`, 1),
		"empty list":     `{"searchSummary": "s", "recommendations": []}`,
		"no location":    strings.Replace(validOutput, `"location": {"name": "Planty"},`, ``, 1),
		"inverted ages":  strings.Replace(validOutput, `{"min": 3, "max": 10}`, `{"min": 10, "max": 3}`, 1),
		"trailing data":  validOutput + ` {"more": true}`,
		"empty":          "   ",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			model := &scriptedModel{replies: []*ModelReply{textReply(text)}}
			recs, usage, err := newTestOrchestrator(model, &stubSearcher{}, 8).Run(context.Background(), krakowRequest(), nil)
			assert.ErrorIs(t, err, ErrMalformedAgentOutput)
			assert.Nil(t, recs)
			assert.Nil(t, usage)
		})
	}
}

func TestRunAcceptsExtraFieldsFromModel(t *testing.T) {
	out := strings.Replace(validOutput, `"category": "show",`, `"category": "show", "openingHours": "10-18",`, 1)
	out = strings.Replace(out, `"searchSummary"`, `"confidence": 0.8, "searchSummary"`, 1)
	model := &scriptedModel{replies: []*ModelReply{textReply(out)}}

	recs, _, err := newTestOrchestrator(model, &stubSearcher{}, 8).Run(context.Background(), krakowRequest(), nil)
	require.NoError(t, err)
	require.Len(t, recs.Recommendations, 3)
	assert.Equal(t, "Puppet Theatre", recs.Recommendations[1].Name)
}

func TestRunStripsCodeFence(t *testing.T) {
	model := &scriptedModel{replies: []*ModelReply{textReply("```json\n" + validOutput + "\n```")}}

	recs, usage, err := newTestOrchestrator(model, &stubSearcher{}, 8).Run(context.Background(), krakowRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Found indoor activities", recs.SearchSummary)
	assert.Equal(t, int64(0), usage.SearchCalls)
}

func TestRunKeepsModelGeneratedAt(t *testing.T) {
	out := strings.Replace(validOutput, `"searchSummary"`, `"generatedAt": "2025-10-30T08:00:00Z", "searchSummary"`, 1)
	model := &scriptedModel{replies: []*ModelReply{textReply(out)}}

	recs, _, err := newTestOrchestrator(model, &stubSearcher{}, 8).Run(context.Background(), krakowRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 30, 8, 0, 0, 0, time.UTC), recs.GeneratedAt)
}

func TestRunSearchFailureIsToolResultText(t *testing.T) {
	model := &scriptedModel{replies: []*ModelReply{toolCall("q"), textReply(validOutput)}}
	search := &stubSearcher{err: &SearchProviderError{StatusCode: 500, Body: "boom"}}

	_, usage, err := newTestOrchestrator(model, search, 8).Run(context.Background(), krakowRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.SearchCalls)

	result, ok := model.histories[1][2].(ToolResultTurn)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(result.Content, "search failed: "))
	assert.Contains(t, result.Content, "boom")
}

func TestRunCountsOnlyProviderSearches(t *testing.T) {
	model := &scriptedModel{replies: []*ModelReply{
		{Turn: ToolCallTurn{Name: webSearchTool, Args: map[string]any{"query": "  "}}},
		toolCall("zoo"),
		toolCall("theatre"),
		textReply(validOutput),
	}}
	search := &stubSearcher{err: fmt.Errorf("search unavailable: %w", ErrCircuitOpen)}

	_, usage, err := newTestOrchestrator(model, search, 8).Run(context.Background(), krakowRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.SearchCalls)
	assert.Equal(t, []string{"zoo", "theatre"}, search.queries)

	empty := model.histories[1][2].(ToolResultTurn)
	assert.Contains(t, empty.Content, "query argument is required")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "Kraków", truncate("Kraków", 6))
	assert.Equal(t, "Kró...", truncate("Królewski", 3))
	assert.True(t, utf8.ValidString(truncate("żółć żółć", 2)))
}

func TestRunUnknownToolIsReportedToModel(t *testing.T) {
	model := &scriptedModel{replies: []*ModelReply{
		{Turn: ToolCallTurn{Name: "book_tickets", Args: map[string]any{}}},
		textReply(validOutput),
	}}
	search := &stubSearcher{}

	_, usage, err := newTestOrchestrator(model, search, 8).Run(context.Background(), krakowRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.SearchCalls)
	assert.Empty(t, search.queries)
	result := model.histories[1][2].(ToolResultTurn)
	assert.Contains(t, result.Content, "unknown tool")
}

func TestRunModelProviderError(t *testing.T) {
	model := &scriptedModel{err: errors.New("503 from upstream")}
	progress := make(chan ProgressEvent, 8)

	_, _, err := newTestOrchestrator(model, &stubSearcher{}, 8).Run(context.Background(), krakowRequest(), progress)
	assert.ErrorIs(t, err, ErrModelProvider)

	close(progress)
	var last ProgressEvent
	for ev := range progress {
		last = ev
	}
	assert.Equal(t, StageError, last.Stage)
}

func TestRunTimeout(t *testing.T) {
	model := &scriptedModel{block: true}
	o := NewAgentOrchestrator(model, &stubSearcher{}, AgentConfig{MaxIterations: 3, Timeout: 20 * time.Millisecond})

	_, _, err := o.Run(context.Background(), krakowRequest(), nil)
	assert.ErrorIs(t, err, ErrAgentTimeout)
}

func TestRunDoesNotBlockOnFullProgressChannel(t *testing.T) {
	model := &scriptedModel{replies: []*ModelReply{toolCall("a"), toolCall("b"), textReply(validOutput)}}
	progress := make(chan ProgressEvent)

	done := make(chan error, 1)
	go func() {
		_, _, err := newTestOrchestrator(model, &stubSearcher{}, 8).Run(context.Background(), krakowRequest(), progress)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run blocked on progress channel")
	}
}

func TestBuildUserInstruction(t *testing.T) {
	text := buildUserInstruction(krakowRequest())
	assert.Contains(t, text, "City: Kraków")
	assert.Contains(t, text, "Dates: 2025-11-01 to 2025-11-02")
	assert.Contains(t, text, "- child, age 5")
	assert.Contains(t, text, "Preferences: indoor")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1}  "))
}

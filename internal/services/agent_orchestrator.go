package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"weekend_planner_go_backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultAgentMaxIterations = 8
	DefaultAgentTimeout       = 90 * time.Second
)

type agentState string

const (
	stateIdle          agentState = "idle"
	stateRequesting    agentState = "requesting"
	stateToolRequested agentState = "tool_requested"
	stateToolExecuting agentState = "tool_executing"
	stateFinalizing    agentState = "finalizing"
	stateDone          agentState = "done"
	stateAborted       agentState = "aborted"
)

type AgentConfig struct {
	MaxIterations int
	Timeout       time.Duration
	SearchResults int
}

// AgentOrchestrator drives the tool-calling loop between the model and web
// search until the model produces a structured recommendation set.
type AgentOrchestrator struct {
	model    ChatModel
	search   WebSearcher
	cfg      AgentConfig
	validate *validator.Validate
	now      func() time.Time
}

func NewAgentOrchestrator(model ChatModel, search WebSearcher, cfg AgentConfig) *AgentOrchestrator {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultAgentMaxIterations
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAgentTimeout
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = DefaultSearchResults
	}
	return &AgentOrchestrator{
		model:    model,
		search:   search,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

type agentRun struct {
	id     string
	state  agentState
	logger zerolog.Logger
}

func (r *agentRun) transition(to agentState) {
	r.logger.Debug().Str("from", string(r.state)).Str("to", string(to)).Msg("Agent state transition")
	r.state = to
}

// Run executes one agent session. The returned usage has no cost attached.
func (o *AgentOrchestrator) Run(ctx context.Context, req models.RecommendationRequest, progress chan<- ProgressEvent) (*models.Recommendations, *models.UsageMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	run := &agentRun{id: uuid.NewString(), state: stateIdle}
	run.logger = zerolog.Ctx(ctx).With().Str("run_id", run.id).Logger()

	start := o.now()
	usage := &models.UsageMetadata{Model: o.model.ModelName()}
	history := []Turn{UserTurn{Text: buildUserInstruction(req)}}
	tools := []ToolDefinition{webSearchDefinition}

	emitProgress(progress, ProgressEvent{Stage: StageStart, Message: "Looking for activities in " + strings.TrimSpace(req.City)})

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		run.transition(stateRequesting)
		usage.Iterations = iteration

		reply, err := o.model.Generate(ctx, systemInstruction, tools, history)
		if err != nil {
			return nil, nil, o.abort(ctx, run, progress, fmt.Errorf("%w: %w", ErrModelProvider, err))
		}
		usage.InputTokens += reply.InputTokens
		usage.OutputTokens += reply.OutputTokens

		switch turn := reply.Turn.(type) {
		case ToolCallTurn:
			run.transition(stateToolRequested)
			query, num := toolArgs(turn.Args)
			emitProgress(progress, ProgressEvent{Stage: StageToolInvoked, Query: query, Iteration: iteration})

			run.transition(stateToolExecuting)
			result, billed := o.executeTool(ctx, run, turn.Name, query, num)
			if billed {
				usage.SearchCalls++
			}
			if ctx.Err() != nil {
				return nil, nil, o.abort(ctx, run, progress, ctx.Err())
			}
			emitProgress(progress, ProgressEvent{Stage: StageToolResult, Query: query, Iteration: iteration})
			history = append(history, turn, ToolResultTurn{Name: turn.Name, Content: result})

		case ModelTextTurn:
			run.transition(stateFinalizing)
			emitProgress(progress, ProgressEvent{Stage: StageFinalizing, Iteration: iteration})

			recs, err := o.parseRecommendations(turn.Text)
			if err != nil {
				run.logger.Warn().Err(err).Str("reply", truncate(turn.Text, 500)).Msg("Agent returned malformed output")
				return nil, nil, o.abort(ctx, run, progress, err)
			}
			if recs.GeneratedAt.IsZero() {
				recs.GeneratedAt = o.now().UTC()
			}
			if n := len(recs.Recommendations); n < 3 || n > 7 {
				run.logger.Warn().Int("count", n).Msg("Agent returned recommendation count outside 3-7")
			}
			usage.ExecutionTimeMs = o.now().Sub(start).Milliseconds()

			run.transition(stateDone)
			emitProgress(progress, ProgressEvent{Stage: StageDone, Iteration: iteration})
			run.logger.Info().
				Int("iterations", usage.Iterations).
				Int64("search_calls", usage.SearchCalls).
				Int64("input_tokens", usage.InputTokens).
				Int64("output_tokens", usage.OutputTokens).
				Msg("Agent run completed")
			return recs, usage, nil

		default:
			return nil, nil, o.abort(ctx, run, progress, fmt.Errorf("%w: empty model reply", ErrMalformedAgentOutput))
		}
	}

	return nil, nil, o.abort(ctx, run, progress, fmt.Errorf("%w (%d)", ErrAgentLoopExceeded, o.cfg.MaxIterations))
}

// abort moves the run to Aborted and normalizes context errors.
func (o *AgentOrchestrator) abort(ctx context.Context, run *agentRun, progress chan<- ProgressEvent, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrAgentTimeout, o.cfg.Timeout)
	} else if errors.Is(ctx.Err(), context.Canceled) {
		err = fmt.Errorf("agent run cancelled: %w", ctx.Err())
	}
	run.transition(stateAborted)
	run.logger.Error().Err(err).Msg("Agent run aborted")
	emitProgress(progress, ProgressEvent{Stage: StageError, Message: err.Error()})
	return err
}

// executeTool runs a requested tool. Failures are reported to the model as
// text so it can adapt its next step. billed is true only when the request
// was handed to the search provider.
func (o *AgentOrchestrator) executeTool(ctx context.Context, run *agentRun, name, query string, num int) (result string, billed bool) {
	if name != webSearchTool {
		return fmt.Sprintf("unknown tool %q; the only available tool is %s", name, webSearchTool), false
	}
	if query == "" {
		return "search failed: the query argument is required", false
	}
	if num <= 0 {
		num = o.cfg.SearchResults
	}
	run.logger.Info().Str("query", query).Int("num", num).Msg("Agent invoked web search")

	result, err := o.search.Search(ctx, query, num)
	if err != nil {
		run.logger.Warn().Err(err).Str("query", query).Msg("Web search failed")
		return "search failed: " + err.Error(), !errors.Is(err, ErrCircuitOpen)
	}
	return result, true
}

func (o *AgentOrchestrator) parseRecommendations(text string) (*models.Recommendations, error) {
	body := stripCodeFence(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedAgentOutput)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	var recs models.Recommendations
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAgentOutput, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedAgentOutput)
	}
	if err := o.validate.Struct(&recs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAgentOutput, err)
	}
	return &recs, nil
}

func toolArgs(args map[string]any) (string, int) {
	query, _ := args["query"].(string)
	var num int
	switch v := args["num"].(type) {
	case float64:
		num = int(math.Round(v))
	case int:
		num = v
	case int64:
		num = int(v)
	}
	return strings.TrimSpace(query), num
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

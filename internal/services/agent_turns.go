package services

import "time"

// Turn is one entry of the conversation sent to the model. The concrete
// types below are the only implementations.
type Turn interface {
	isTurn()
}

type UserTurn struct {
	Text string
}

type ModelTextTurn struct {
	Text string
}

// ToolCallTurn is the model asking for a tool to be executed.
type ToolCallTurn struct {
	Name string
	Args map[string]any
}

// ToolResultTurn carries a tool's output back to the model.
type ToolResultTurn struct {
	Name    string
	Content string
}

func (UserTurn) isTurn()       {}
func (ModelTextTurn) isTurn()  {}
func (ToolCallTurn) isTurn()   {}
func (ToolResultTurn) isTurn() {}

type ToolParameter struct {
	Name        string
	Type        string // "string" or "integer"
	Description string
	Required    bool
}

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// ModelReply is a single model response: Turn is either a ModelTextTurn or a
// ToolCallTurn.
type ModelReply struct {
	Turn         Turn
	InputTokens  int64
	OutputTokens int64
}

type ProgressStage string

const (
	StageStart       ProgressStage = "start"
	StageToolInvoked ProgressStage = "tool_invoked"
	StageToolResult  ProgressStage = "tool_result"
	StageFinalizing  ProgressStage = "finalizing"
	StageDone        ProgressStage = "done"
	StageError       ProgressStage = "error"
	StageCacheHit    ProgressStage = "cache_hit"
)

// ProgressEvent reports what a run is doing. Delivery is best effort.
type ProgressEvent struct {
	Stage     ProgressStage `json:"stage"`
	Message   string        `json:"message,omitempty"`
	Query     string        `json:"query,omitempty"`
	Iteration int           `json:"iteration,omitempty"`
	At        time.Time     `json:"at"`
}

func emitProgress(progress chan<- ProgressEvent, ev ProgressEvent) {
	if progress == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case progress <- ev:
	default:
	}
}

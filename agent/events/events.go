package events

import "github.com/paperloop/paperloop/agent"

const (
	QueryStart          = "query_start"
	QueryEnd            = "query_end"
	Text                = "text"
	ToolStart           = "tool_execution_start"
	ToolEnd             = "tool_execution_end"
	ToolOutputTruncated = "tool_output_truncated"
)

// Event captures one observable step of a query's processing.
type Event struct {
	Type       string
	Content    string
	Iteration  int
	ToolCall   *agent.ToolCall
	ToolResult *agent.ToolResult
}

// Sink consumes events (CLI rendering, logging, tests).
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Package loop implements the turn-taking state machine between the model
// gateway and the tool executor.
package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/conversation"
	"github.com/paperloop/paperloop/agent/events"
	"github.com/paperloop/paperloop/agent/truncate"
	"github.com/paperloop/paperloop/agent/usage"
)

// Gateway is the boundary to the reasoning backend: one request carrying the
// full conversation and tool schemas, one response carrying ordered blocks.
type Gateway interface {
	Generate(ctx context.Context, turns []conversation.Turn, tools []agent.ToolSchema) (Response, error)
}

// Response is a single gateway answer. Block order is load-bearing: it
// drives both event emission and the termination decision.
type Response struct {
	Blocks     []conversation.Block
	StopReason usage.StopReason
	Usage      *usage.Usage
}

// ToolRunner executes one tool call; failures are expected to surface as
// error-flagged results, never as Go errors.
type ToolRunner interface {
	Execute(ctx context.Context, call agent.ToolCall) agent.ToolResult
}

// State enumerates the loop states. The only exit transition is
// StateProcessingBlocks -> StateDone when a response carries no tool calls.
type State int

const (
	StateAwaitingModel State = iota
	StateProcessingBlocks
	StateDone
)

// DefaultMaxIterations bounds gateway round-trips per query.
const DefaultMaxIterations = 16

// Config wires a Runner.
type Config struct {
	Gateway        Gateway
	Executor       ToolRunner
	Events         events.Sink
	Schemas        []agent.ToolSchema
	MaxIterations  int
	Truncation     *truncate.Options
	TruncationMode truncate.Mode
}

// Result captures the final output of one query.
type Result struct {
	Reply       string
	Turns       []conversation.Turn
	ToolCalls   []agent.ToolCall
	ToolResults []agent.ToolResult
	Iterations  int
	StopReason  usage.StopReason
	Usage       *usage.Usage
}

// Runner executes the tool-aware loop for one query at a time. Each Run owns
// its conversation exclusively; nothing is shared across queries.
type Runner struct {
	cfg Config
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TruncationMode == "" {
		cfg.TruncationMode = truncate.ModeTail
	}
	return &Runner{cfg: cfg}
}

// Run processes one user query until the model yields a response without
// tool calls, the iteration cap is hit, or the gateway fails.
func (r *Runner) Run(ctx context.Context, query string) (Result, error) {
	if r.cfg.Gateway == nil {
		return Result{}, errors.New("loop: gateway is required")
	}

	emit := r.cfg.Events
	if emit != nil {
		emit.Emit(events.Event{Type: events.QueryStart, Content: query})
		defer emit.Emit(events.Event{Type: events.QueryEnd})
	}

	run := &runState{
		cfg:  r.cfg,
		conv: conversation.New(),
	}
	run.conv.Append(conversation.UserTurn(query))

	state := StateAwaitingModel
	for state != StateDone {
		var err error
		switch state {
		case StateAwaitingModel:
			state, err = run.awaitModel(ctx)
		case StateProcessingBlocks:
			state, err = run.processBlocks(ctx)
		}
		if err != nil {
			return Result{Iterations: run.iteration}, err
		}
	}

	return Result{
		Reply:       run.reply,
		Turns:       run.conv.Snapshot(),
		ToolCalls:   run.allCalls,
		ToolResults: run.allResults,
		Iterations:  run.iteration,
		StopReason:  run.resp.StopReason,
		Usage:       run.resp.Usage,
	}, nil
}

// runState carries one query's in-flight loop state.
type runState struct {
	cfg        Config
	conv       *conversation.Conversation
	resp       Response
	reply      string
	allCalls   []agent.ToolCall
	allResults []agent.ToolResult
	iteration  int
}

func (q *runState) awaitModel(ctx context.Context) (State, error) {
	if q.iteration >= q.cfg.MaxIterations {
		return StateDone, fmt.Errorf("loop: %w after %d iterations", agent.ErrLoopExceeded, q.iteration)
	}
	resp, err := q.cfg.Gateway.Generate(ctx, q.conv.Snapshot(), q.cfg.Schemas)
	if err != nil {
		return StateDone, fmt.Errorf("loop: model gateway: %w", err)
	}
	q.resp = resp
	q.iteration++
	return StateProcessingBlocks, nil
}

func (q *runState) processBlocks(ctx context.Context) (State, error) {
	emit := q.cfg.Events

	// Partition preserving order: text is emitted immediately, calls are
	// collected for sequential execution.
	texts := make([]string, 0, len(q.resp.Blocks))
	calls := make([]agent.ToolCall, 0, len(q.resp.Blocks))
	for i, block := range q.resp.Blocks {
		switch block.Kind {
		case conversation.BlockText:
			texts = append(texts, block.Text)
			if emit != nil {
				emit.Emit(events.Event{Type: events.Text, Content: block.Text, Iteration: q.iteration})
			}
		case conversation.BlockToolCall:
			call := *block.ToolCall
			if call.ID == "" {
				call.ID = fmt.Sprintf("call-%d-%d", q.iteration, i)
				q.resp.Blocks[i].ToolCall = &call
			}
			calls = append(calls, call)
		}
	}

	// Sole exit transition: a response with no tool-call blocks is
	// terminal, including the degenerate zero-block response.
	if len(calls) == 0 {
		if len(q.resp.Blocks) > 0 {
			q.conv.Append(conversation.AssistantTurn(q.resp.Blocks))
		}
		q.reply = strings.TrimSpace(strings.Join(texts, "\n"))
		return StateDone, nil
	}

	if q.cfg.Executor == nil {
		return StateDone, errors.New("loop: tool calls requested but no executor configured")
	}

	// Execute strictly sequentially in block order. Results are staged and
	// only appended together with the assistant turn once the whole
	// iteration survived, so cancellation can never leave a tool call
	// unanswered in the conversation.
	results := make([]agent.ToolResult, 0, len(calls))
	for _, call := range calls {
		if emit != nil {
			emit.Emit(events.Event{Type: events.ToolStart, ToolCall: &call, Iteration: q.iteration})
		}
		result := q.cfg.Executor.Execute(ctx, call)
		result = q.truncateResult(result, emit)
		if emit != nil {
			emit.Emit(events.Event{Type: events.ToolEnd, ToolResult: &result, Iteration: q.iteration})
		}
		results = append(results, result)
	}

	if err := ctx.Err(); err != nil {
		return StateDone, fmt.Errorf("loop: cancelled: %w", err)
	}

	q.conv.Append(conversation.AssistantTurn(q.resp.Blocks))
	q.conv.Append(conversation.ResultTurn(results))
	q.allCalls = append(q.allCalls, calls...)
	q.allResults = append(q.allResults, results...)
	return StateAwaitingModel, nil
}

func (q *runState) truncateResult(result agent.ToolResult, emit events.Sink) agent.ToolResult {
	if q.cfg.Truncation == nil || result.Content == "" {
		return result
	}
	res := truncate.Apply(result.Content, q.cfg.TruncationMode, *q.cfg.Truncation)
	if !res.Truncated {
		return result
	}
	before := result
	result.Content = res.Content
	if emit != nil {
		emit.Emit(events.Event{
			Type:       events.ToolOutputTruncated,
			ToolResult: &before,
			Content: fmt.Sprintf("truncated by %s (%d/%d lines, %d/%d bytes)",
				res.TruncatedBy, res.OutputLines, res.TotalLines, res.OutputBytes, res.TotalBytes),
		})
	}
	return result
}

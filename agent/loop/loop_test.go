package loop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/conversation"
	"github.com/paperloop/paperloop/agent/events"
	"github.com/paperloop/paperloop/agent/truncate"
)

// scriptedGateway returns its responses in order and then keeps returning
// the last one.
type scriptedGateway struct {
	responses []Response
	calls     int
	lastTurns []conversation.Turn
}

func (g *scriptedGateway) Generate(ctx context.Context, turns []conversation.Turn, tools []agent.ToolSchema) (Response, error) {
	g.lastTurns = turns
	idx := g.calls
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	g.calls++
	return g.responses[idx], nil
}

type echoRunner struct {
	executed []agent.ToolCall
	fail     map[string]bool
}

func (r *echoRunner) Execute(ctx context.Context, call agent.ToolCall) agent.ToolResult {
	r.executed = append(r.executed, call)
	if r.fail[call.Name] {
		return agent.ToolResult{CallID: call.ID, Name: call.Name, Content: "tool error: boom", IsError: true}
	}
	return agent.ToolResult{CallID: call.ID, Name: call.Name, Content: "echo:" + string(call.Args)}
}

func textResponse(texts ...string) Response {
	blocks := make([]conversation.Block, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, conversation.TextBlock(text))
	}
	return Response{Blocks: blocks}
}

func callBlock(id, name string) conversation.Block {
	return conversation.ToolCallBlock(agent.ToolCall{ID: id, Name: name, Args: json.RawMessage(`{}`)})
}

func TestRunPureTextTerminatesAfterOneCall(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{textResponse("hello")}}
	runner := New(Config{Gateway: gateway})

	result, err := runner.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gateway.calls != 1 {
		t.Fatalf("expected a single gateway call, got %d", gateway.calls)
	}
	if result.Reply != "hello" {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestRunExecutesEveryCallAndCorrelatesIDs(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{
			callBlock("a", "alpha"),
			callBlock("b", "beta"),
			callBlock("c", "gamma"),
		}},
		textResponse("done"),
	}}
	exec := &echoRunner{}
	runner := New(Config{Gateway: gateway, Executor: exec})

	result, err := runner.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.ToolResults) != 3 {
		t.Fatalf("expected 3 results, got %d", len(result.ToolResults))
	}
	for i, want := range []string{"a", "b", "c"} {
		if result.ToolResults[i].CallID != want {
			t.Fatalf("result %d correlates to %q, want %q", i, result.ToolResults[i].CallID, want)
		}
	}
	if len(exec.executed) != 3 || exec.executed[0].Name != "alpha" || exec.executed[2].Name != "gamma" {
		t.Fatalf("calls executed out of order: %+v", exec.executed)
	}
}

func TestRunMixedTextAndCallsContinues(t *testing.T) {
	var texts []string
	sink := events.SinkFunc(func(e events.Event) {
		if e.Type == events.Text {
			texts = append(texts, e.Content)
		}
	})

	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{
			conversation.TextBlock("let me check"),
			callBlock("x", "lookup"),
		}},
		textResponse("found it"),
	}}
	runner := New(Config{Gateway: gateway, Executor: &echoRunner{}, Events: sink})

	result, err := runner.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A response with both text and calls is not terminal.
	if gateway.calls != 2 {
		t.Fatalf("expected 2 gateway calls, got %d", gateway.calls)
	}
	if result.Reply != "found it" {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if len(texts) != 2 || texts[0] != "let me check" {
		t.Fatalf("expected interleaved text events, got %v", texts)
	}
}

func TestRunZeroBlockResponseIsSilentCompletion(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{{}}}
	runner := New(Config{Gateway: gateway})

	result, err := runner.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "" {
		t.Fatalf("expected empty reply, got %q", result.Reply)
	}
	if len(result.Turns) != 1 {
		t.Fatalf("expected only the user turn, got %d turns", len(result.Turns))
	}
}

func TestRunIterationCap(t *testing.T) {
	// Always asks for another tool call, so the loop can never finish.
	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{callBlock("x", "spin")}},
	}}
	runner := New(Config{Gateway: gateway, Executor: &echoRunner{}, MaxIterations: 3})

	_, err := runner.Run(context.Background(), "loop forever")
	if !errors.Is(err, agent.ErrLoopExceeded) {
		t.Fatalf("expected ErrLoopExceeded, got %v", err)
	}
	if gateway.calls != 3 {
		t.Fatalf("expected exactly 3 gateway calls, got %d", gateway.calls)
	}
}

func TestRunToolErrorIsRecoverable(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{callBlock("x", "broken")}},
		textResponse("recovered"),
	}}
	exec := &echoRunner{fail: map[string]bool{"broken": true}}
	runner := New(Config{Gateway: gateway, Executor: exec})

	result, err := runner.Run(context.Background(), "try it")
	if err != nil {
		t.Fatalf("tool failure must not abort the loop: %v", err)
	}
	if result.Reply != "recovered" {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if len(result.ToolResults) != 1 || !result.ToolResults[0].IsError {
		t.Fatalf("expected one error-flagged result, got %+v", result.ToolResults)
	}
}

func TestRunAppendsAssistantAndResultTurnsTogether(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{callBlock("x", "lookup")}},
		textResponse("ok"),
	}}
	runner := New(Config{Gateway: gateway, Executor: &echoRunner{}})

	result, err := runner.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// user, assistant(call), tool(result), assistant(text)
	if len(result.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(result.Turns))
	}
	if result.Turns[1].Role != conversation.RoleAssistant || result.Turns[2].Role != conversation.RoleTool {
		t.Fatalf("tool results must directly follow the assistant turn")
	}
	if result.Turns[2].Results[0].CallID != "x" {
		t.Fatalf("result turn does not answer the pending call")
	}
}

func TestRunCancellationDiscardsPartialIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{callBlock("x", "slow")}},
	}}
	cancelling := &cancellingRunner{cancel: cancel}
	runner := New(Config{Gateway: gateway, Executor: cancelling})

	_, err := runner.Run(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	// The assistant turn and its results are appended atomically; a run
	// cancelled mid-iteration leaves no unanswered call behind.
	if len(gateway.lastTurns) != 1 {
		t.Fatalf("partial iteration leaked into the conversation: %d turns", len(gateway.lastTurns))
	}
}

type cancellingRunner struct {
	cancel context.CancelFunc
}

func (r *cancellingRunner) Execute(ctx context.Context, call agent.ToolCall) agent.ToolResult {
	r.cancel()
	return agent.ToolResult{CallID: call.ID, Name: call.Name, Content: "late"}
}

func TestRunSynthesizesMissingCallIDs(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{conversation.ToolCallBlock(agent.ToolCall{Name: "anon", Args: json.RawMessage(`{}`)})}},
		textResponse("ok"),
	}}
	exec := &echoRunner{}
	runner := New(Config{Gateway: gateway, Executor: exec})

	result, err := runner.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ToolCalls[0].ID == "" {
		t.Fatalf("expected a synthesized call id")
	}
	if result.ToolResults[0].CallID != result.ToolCalls[0].ID {
		t.Fatalf("synthesized id not echoed by the result")
	}
}

func TestRunTruncatesToolOutput(t *testing.T) {
	var truncations int
	sink := events.SinkFunc(func(e events.Event) {
		if e.Type == events.ToolOutputTruncated {
			truncations++
		}
	})

	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{callBlock("x", "chatty")}},
		textResponse("ok"),
	}}
	chatty := &staticRunner{content: strings.Repeat("line\n", 10) + "tail"}
	runner := New(Config{
		Gateway:        gateway,
		Executor:       chatty,
		Events:         sink,
		Truncation:     &truncate.Options{MaxLines: 1, MaxBytes: 100},
		TruncationMode: truncate.ModeTail,
	})

	result, err := runner.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ToolResults[0].Content != "tail" {
		t.Fatalf("expected truncated output, got %q", result.ToolResults[0].Content)
	}
	if truncations != 1 {
		t.Fatalf("expected a truncation event")
	}
}

type staticRunner struct {
	content string
}

func (r *staticRunner) Execute(ctx context.Context, call agent.ToolCall) agent.ToolResult {
	return agent.ToolResult{CallID: call.ID, Name: call.Name, Content: r.content}
}

func TestRunRequiresExecutorForToolCalls(t *testing.T) {
	gateway := &scriptedGateway{responses: []Response{
		{Blocks: []conversation.Block{callBlock("x", "lookup")}},
	}}
	runner := New(Config{Gateway: gateway})

	_, err := runner.Run(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected an error when tool calls arrive without an executor")
	}
}

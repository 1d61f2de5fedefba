package executor

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/paperloop/paperloop/agent"
)

func registryWith(t *testing.T, schema agent.ToolSchema, fn agent.CapabilityFunc) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry()
	if err := reg.Register(schema, fn); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestExecuteUnknownTool(t *testing.T) {
	exec := New(agent.NewRegistry())
	result := exec.Execute(context.Background(), agent.ToolCall{ID: "1", Name: "missing"})
	if !result.IsError {
		t.Fatalf("expected an error result")
	}
	if !strings.Contains(result.Content, `no tool named "missing"`) {
		t.Fatalf("unexpected content: %q", result.Content)
	}
	if result.CallID != "1" {
		t.Fatalf("error result must keep the call id")
	}
}

func TestExecuteMissingRequiredArgument(t *testing.T) {
	schema := agent.ToolSchema{
		Name:   "lookup",
		Params: []agent.Param{{Name: "id", Type: agent.TypeString, Required: true}},
	}
	called := false
	reg := registryWith(t, schema, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		called = true
		return agent.EmptyReturn(), nil
	})

	result := New(reg).Execute(context.Background(), agent.ToolCall{Name: "lookup", Args: json.RawMessage(`{}`)})
	if !result.IsError || !strings.Contains(result.Content, `missing required argument "id"`) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if called {
		t.Fatalf("capability must not run on invalid arguments")
	}
}

func TestExecuteInjectsDefaults(t *testing.T) {
	schema := agent.ToolSchema{
		Name: "search",
		Params: []agent.Param{
			{Name: "topic", Type: agent.TypeString, Required: true},
			{Name: "max_results", Type: agent.TypeInteger, Default: 5},
		},
	}
	var seen json.RawMessage
	reg := registryWith(t, schema, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		seen = args
		return agent.ScalarReturn("ok"), nil
	})

	result := New(reg).Execute(context.Background(), agent.ToolCall{Name: "search", Args: json.RawMessage(`{"topic":"ai"}`)})
	if result.IsError {
		t.Fatalf("unexpected error: %q", result.Content)
	}
	var decoded map[string]any
	if err := json.Unmarshal(seen, &decoded); err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if decoded["max_results"] != float64(5) {
		t.Fatalf("default not injected: %v", decoded)
	}
}

func TestExecuteTypeMismatch(t *testing.T) {
	schema := agent.ToolSchema{
		Name:   "search",
		Params: []agent.Param{{Name: "max_results", Type: agent.TypeInteger}},
	}
	reg := registryWith(t, schema, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		return agent.EmptyReturn(), nil
	})

	result := New(reg).Execute(context.Background(), agent.ToolCall{Name: "search", Args: json.RawMessage(`{"max_results":2.5}`)})
	if !result.IsError || !strings.Contains(result.Content, "expected integer") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteNonObjectArguments(t *testing.T) {
	reg := registryWith(t, agent.ToolSchema{Name: "x"}, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		return agent.EmptyReturn(), nil
	})

	result := New(reg).Execute(context.Background(), agent.ToolCall{Name: "x", Args: json.RawMessage(`[1,2]`)})
	if !result.IsError || !strings.Contains(result.Content, "must be a JSON object") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteRecoversFromPanic(t *testing.T) {
	reg := registryWith(t, agent.ToolSchema{Name: "boom"}, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		panic("kaboom")
	})

	result := New(reg).Execute(context.Background(), agent.ToolCall{Name: "boom"})
	if !result.IsError || !strings.Contains(result.Content, "tool panicked: kaboom") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteTimeout(t *testing.T) {
	reg := registryWith(t, agent.ToolSchema{Name: "slow"}, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		<-ctx.Done()
		return agent.EmptyReturn(), ctx.Err()
	})

	exec := New(reg, WithTimeout(10*time.Millisecond))
	result := exec.Execute(context.Background(), agent.ToolCall{Name: "slow"})
	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteNormalizesReturn(t *testing.T) {
	reg := registryWith(t, agent.ToolSchema{Name: "list"}, func(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
		return agent.StringsReturn("a", "b"), nil
	})

	result := New(reg).Execute(context.Background(), agent.ToolCall{ID: "9", Name: "list"})
	if result.IsError {
		t.Fatalf("unexpected error: %q", result.Content)
	}
	if result.Content != "a, b" {
		t.Fatalf("unexpected content: %q", result.Content)
	}
	if result.CallID != "9" {
		t.Fatalf("call id not echoed")
	}
}

// Package executor turns model-issued tool calls into normalized result
// strings. Every failure mode (unknown tool, malformed arguments, capability
// error, panic, timeout) is converted into a recoverable error result so the
// model can react; nothing here aborts the surrounding loop.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/paperloop/paperloop/agent"
)

// Executor resolves and runs tool calls against a registry.
type Executor struct {
	registry *agent.Registry
	timeout  time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout sets a per-call execution deadline. A timed-out call yields a
// recoverable error result.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// New creates an executor over a registry.
func New(registry *agent.Registry, opts ...Option) *Executor {
	e := &Executor{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call and always returns a result; errors surface as
// descriptive content with IsError set rather than as Go errors.
func (e *Executor) Execute(ctx context.Context, call agent.ToolCall) agent.ToolResult {
	capability, schema, err := e.registry.Resolve(call.Name)
	if err != nil {
		return errorResult(call, fmt.Sprintf("no tool named %q is registered", call.Name))
	}

	args, errResult := prepareArgs(call, schema)
	if errResult != nil {
		return *errResult
	}

	invokeCtx := ctx
	cancel := func() {}
	if e.timeout > 0 {
		invokeCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()

	ret, err := invoke(invokeCtx, capability, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && e.timeout > 0 {
			return errorResult(call, fmt.Sprintf("execution timed out after %s", e.timeout))
		}
		return errorResult(call, err.Error())
	}

	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: ret.Normalize(),
	}
}

// invoke shields the loop from misbehaving capabilities. Panics become
// errors the same way the SDK's vertex helpers are handled by the provider.
func invoke(ctx context.Context, capability agent.Capability, args []byte) (ret agent.ToolReturn, err error) {
	defer func() {
		if r := recover(); r != nil {
			ret = agent.EmptyReturn()
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return capability.Invoke(ctx, args)
}

// prepareArgs validates the raw argument bag against the declared parameters
// and injects schema defaults for absent optionals. Validation failures are
// per-call error results; other calls in the same turn proceed independently.
func prepareArgs(call agent.ToolCall, schema agent.ToolSchema) ([]byte, *agent.ToolResult) {
	args := []byte(call.Args)
	if len(args) == 0 {
		args = []byte("{}")
	}
	parsed := gjson.ParseBytes(args)
	if !parsed.IsObject() {
		res := errorResult(call, "arguments must be a JSON object")
		return nil, &res
	}

	for _, p := range schema.Params {
		value := parsed.Get(p.Name)
		if !value.Exists() {
			if p.Required {
				res := errorResult(call, fmt.Sprintf("missing required argument %q", p.Name))
				return nil, &res
			}
			if p.Default != nil {
				updated, err := sjson.SetBytes(args, p.Name, p.Default)
				if err != nil {
					res := errorResult(call, fmt.Sprintf("argument %q: cannot apply default: %v", p.Name, err))
					return nil, &res
				}
				args = updated
				parsed = gjson.ParseBytes(args)
			}
			continue
		}
		if !typeMatches(value, p.Type) {
			res := errorResult(call, fmt.Sprintf("argument %q: expected %s", p.Name, p.Type))
			return nil, &res
		}
	}
	return args, nil
}

func typeMatches(value gjson.Result, t agent.ParamType) bool {
	switch t {
	case agent.TypeString:
		return value.Type == gjson.String
	case agent.TypeBoolean:
		return value.IsBool()
	case agent.TypeInteger:
		return value.Type == gjson.Number && value.Num == math.Trunc(value.Num)
	case agent.TypeNumber:
		return value.Type == gjson.Number
	case agent.TypeArray:
		return value.IsArray()
	case agent.TypeObject:
		return value.IsObject()
	default:
		return true
	}
}

func errorResult(call agent.ToolCall, msg string) agent.ToolResult {
	return agent.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: "tool error: " + msg,
		IsError: true,
	}
}

package usage

import "strings"

// Usage captures token usage for a single gateway response.
type Usage struct {
	Input  int
	Output int
	Total  int
}

// StopReason describes why a generation stopped.
type StopReason string

const (
	StopReasonStop      StopReason = "stop"
	StopReasonTool      StopReason = "tool"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonError     StopReason = "error"
)

// Normalize fills Total when missing.
func Normalize(u Usage) Usage {
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}
	return u
}

// NormalizeStopReason maps provider-specific stop strings to the canonical set.
func NormalizeStopReason(stop string) StopReason {
	switch strings.TrimSpace(strings.ToLower(stop)) {
	case "tool_use", "tool_calls":
		return StopReasonTool
	case "max_tokens", "length":
		return StopReasonMaxTokens
	case "", "end_turn", "stop", "stop_sequence":
		return StopReasonStop
	default:
		return StopReason(strings.TrimSpace(strings.ToLower(stop)))
	}
}

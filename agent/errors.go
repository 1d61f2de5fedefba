package agent

import "errors"

var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrLoopExceeded  = errors.New("iteration limit exceeded")
)

package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmptyPlaceholder is the fixed content for tools that return nothing.
const EmptyPlaceholder = "The tool produced no output."

// ReturnKind tags the variant held by a ToolReturn.
type ReturnKind int

const (
	ReturnEmpty ReturnKind = iota
	ReturnStrings
	ReturnRecord
	ReturnScalar
)

// ToolReturn is the tagged raw outcome of a capability invocation. The
// gateway boundary only accepts string content, so every variant has a
// defined string form; Normalize is total over the four kinds.
type ToolReturn struct {
	kind    ReturnKind
	strings []string
	record  map[string]any
	scalar  string
}

// EmptyReturn reports that the tool produced nothing.
func EmptyReturn() ToolReturn {
	return ToolReturn{kind: ReturnEmpty}
}

// StringsReturn holds an ordered list of strings.
func StringsReturn(values ...string) ToolReturn {
	return ToolReturn{kind: ReturnStrings, strings: values}
}

// RecordReturn holds a structured record.
func RecordReturn(record map[string]any) ToolReturn {
	return ToolReturn{kind: ReturnRecord, record: record}
}

// ScalarReturn holds a single string value.
func ScalarReturn(value string) ToolReturn {
	return ToolReturn{kind: ReturnScalar, scalar: value}
}

// Kind returns the variant tag.
func (r ToolReturn) Kind() ReturnKind { return r.kind }

// Normalize maps the return to its canonical string form:
// empty → placeholder sentence, string list → comma-joined, record →
// JSON with stable key order, scalar → the value itself.
func (r ToolReturn) Normalize() string {
	switch r.kind {
	case ReturnStrings:
		if len(r.strings) == 0 {
			return EmptyPlaceholder
		}
		return strings.Join(r.strings, ", ")
	case ReturnRecord:
		if len(r.record) == 0 {
			return EmptyPlaceholder
		}
		// encoding/json sorts map keys, which gives the canonical form.
		payload, err := json.MarshalIndent(r.record, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", r.record)
		}
		return string(payload)
	case ReturnScalar:
		if r.scalar == "" {
			return EmptyPlaceholder
		}
		return r.scalar
	default:
		return EmptyPlaceholder
	}
}

// Package conversation holds the append-only turn sequence that forms the
// model's input context for one query.
package conversation

import "github.com/paperloop/paperloop/agent"

// Role constants for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// BlockKind tags one assistant content block.
type BlockKind string

const (
	BlockText     BlockKind = "text"
	BlockToolCall BlockKind = "tool_call"
)

// Block is one ordered unit of assistant output: a text segment or a
// tool-call request. Order within a turn is load-bearing and must be
// preserved when replaying history to the gateway.
type Block struct {
	Kind     BlockKind
	Text     string
	ToolCall *agent.ToolCall
}

// TextBlock builds a text block.
func TextBlock(text string) Block {
	return Block{Kind: BlockText, Text: text}
}

// ToolCallBlock builds a tool-call block.
func ToolCallBlock(call agent.ToolCall) Block {
	return Block{Kind: BlockToolCall, ToolCall: &call}
}

// Turn is one role-tagged unit of history. User turns carry Text, assistant
// turns carry Blocks, tool turns carry Results.
type Turn struct {
	Role    string
	Text    string
	Blocks  []Block
	Results []agent.ToolResult
}

// UserTurn builds a user turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantTurn builds an assistant turn from ordered blocks.
func AssistantTurn(blocks []Block) Turn {
	return Turn{Role: RoleAssistant, Blocks: blocks}
}

// ResultTurn builds a tool-result turn.
func ResultTurn(results []agent.ToolResult) Turn {
	return Turn{Role: RoleTool, Results: results}
}

// Conversation is the ordered, append-only turn sequence. One instance
// exists per query and is discarded when the loop terminates.
type Conversation struct {
	turns []Turn
}

// New creates an empty conversation.
func New() *Conversation {
	return &Conversation{}
}

// Append adds a turn. Historical turns are never mutated or removed.
func (c *Conversation) Append(turn Turn) {
	c.turns = append(c.turns, turn)
}

// Len reports the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Snapshot returns a copy of the turn sequence for the gateway.
func (c *Conversation) Snapshot() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// PendingCalls returns tool calls from the last assistant turn that have no
// matching result in a later tool turn. A non-empty answer means the
// conversation is not in a state the gateway may be called with.
func (c *Conversation) PendingCalls() []agent.ToolCall {
	lastAssistant := -1
	for i := len(c.turns) - 1; i >= 0; i-- {
		if c.turns[i].Role == RoleAssistant {
			lastAssistant = i
			break
		}
	}
	if lastAssistant < 0 {
		return nil
	}
	answered := make(map[string]bool)
	for _, turn := range c.turns[lastAssistant+1:] {
		if turn.Role != RoleTool {
			continue
		}
		for _, result := range turn.Results {
			answered[result.CallID] = true
		}
	}
	pending := make([]agent.ToolCall, 0)
	for _, block := range c.turns[lastAssistant].Blocks {
		if block.Kind != BlockToolCall || block.ToolCall == nil {
			continue
		}
		if !answered[block.ToolCall.ID] {
			pending = append(pending, *block.ToolCall)
		}
	}
	return pending
}

// Package anthropic implements the model gateway over the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/conversation"
	"github.com/paperloop/paperloop/agent/loop"
	"github.com/paperloop/paperloop/agent/usage"
)

// Config controls an Anthropic gateway.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature *float64
	System      string
	HTTPClient  *http.Client
}

// Gateway calls the Anthropic Messages API and adapts it to the loop's
// block-ordered contract.
type Gateway struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature *float64
	system      string
}

// New constructs a Gateway from config.
func New(cfg Config) (*Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Gateway{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		system:      strings.TrimSpace(cfg.System),
	}, nil
}

// NewFromEnv builds a Gateway from environment variables.
func NewFromEnv() (*Gateway, error) {
	apiKey := envTrimmed("ANTHROPIC_API_KEY")
	model := envTrimmed("ANTHROPIC_MODEL")
	if apiKey == "" || model == "" {
		return nil, errors.New("anthropic: ANTHROPIC_API_KEY and ANTHROPIC_MODEL are required")
	}

	maxTokens := 0
	if v := envTrimmed("ANTHROPIC_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxTokens = n
		}
	}

	var temperature *float64
	if v := envTrimmed("ANTHROPIC_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			temperature = &f
		}
	}

	return New(Config{
		APIKey:      apiKey,
		Model:       model,
		BaseURL:     envTrimmed("ANTHROPIC_BASE_URL"),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

// Generate implements loop.Gateway.
func (g *Gateway) Generate(ctx context.Context, turns []conversation.Turn, tools []agent.ToolSchema) (loop.Response, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages:  turnsToMessages(turns),
	}
	if len(tools) > 0 {
		req.Tools = schemasToTools(tools)
	}
	if g.system != "" {
		req.System = []anthropic.TextBlockParam{{Text: g.system}}
	}
	if g.temperature != nil {
		req.Temperature = anthropic.Float(*g.temperature)
	}

	msg, err := g.client.Messages.New(ctx, req)
	if err != nil {
		return loop.Response{}, fmt.Errorf("anthropic: %w", err)
	}

	usageValue := usage.Normalize(usage.Usage{
		Input:  int(msg.Usage.InputTokens),
		Output: int(msg.Usage.OutputTokens),
	})

	return loop.Response{
		Blocks:     parseBlocks(msg),
		StopReason: usage.NormalizeStopReason(string(msg.StopReason)),
		Usage:      &usageValue,
	}, nil
}

// turnsToMessages replays the conversation preserving in-turn block order.
func turnsToMessages(turns []conversation.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			if strings.TrimSpace(turn.Text) == "" {
				continue
			}
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))

		case conversation.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Blocks))
			for _, block := range turn.Blocks {
				switch block.Kind {
				case conversation.BlockText:
					if block.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(block.Text))
					}
				case conversation.BlockToolCall:
					call := block.ToolCall
					blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, decodeArgs(call.Args), call.Name))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}

		case conversation.RoleTool:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Results))
			for _, result := range turn.Results {
				blocks = append(blocks, anthropic.NewToolResultBlock(result.CallID, result.Content, result.IsError))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return messages
}

// parseBlocks converts response content to ordered blocks.
func parseBlocks(msg *anthropic.Message) []conversation.Block {
	blocks := make([]conversation.Block, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, conversation.TextBlock(variant.Text))
		case anthropic.ToolUseBlock:
			blocks = append(blocks, conversation.ToolCallBlock(agent.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: variant.Input,
			}))
		}
	}
	return blocks
}

func schemasToTools(schemas []agent.ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, schema := range schemas {
		param := anthropic.ToolParam{
			Name:        schema.Name,
			InputSchema: inputSchemaParam(schema.InputSchema()),
		}
		if desc := strings.TrimSpace(schema.Description); desc != "" {
			param.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func inputSchemaParam(raw json.RawMessage) anthropic.ToolInputSchemaParam {
	doc := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &doc)
	}
	param := anthropic.ToolInputSchemaParam{
		Properties: doc["properties"],
	}
	if required, ok := doc["required"].([]any); ok {
		names := make([]string, 0, len(required))
		for _, item := range required {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		param.Required = names
	}
	return param
}

func decodeArgs(args json.RawMessage) any {
	if len(args) == 0 {
		return map[string]any{}
	}
	var payload any
	if err := json.Unmarshal(args, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

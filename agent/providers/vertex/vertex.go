// Package vertex implements the model gateway over the Vertex AI Gemini
// REST API using Application Default Credentials.
package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/conversation"
	"github.com/paperloop/paperloop/agent/loop"
	"github.com/paperloop/paperloop/agent/usage"
)

// Config controls a Vertex Gemini gateway.
type Config struct {
	Project     string
	Location    string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	System      string
	HTTPClient  *http.Client
	TokenSource oauth2.TokenSource
}

// Gateway calls Vertex AI generateContent and adapts function-call parts to
// the loop's block-ordered contract.
type Gateway struct {
	project     string
	location    string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	system      string
	client      *http.Client
	cred        oauth2.TokenSource
}

// New constructs a Gateway from config.
func New(cfg Config) (*Gateway, error) {
	project := strings.TrimSpace(cfg.Project)
	model := strings.TrimSpace(cfg.Model)
	if project == "" || model == "" {
		return nil, errors.New("vertex: project and model are required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = "https://aiplatform.googleapis.com/v1"
	}

	ts := cfg.TokenSource
	if ts == nil {
		var err error
		ts, err = google.DefaultTokenSource(context.Background(), "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("vertex: default credentials: %w", err)
		}
	}

	return &Gateway{
		project:     project,
		location:    location,
		model:       model,
		baseURL:     base,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		system:      strings.TrimSpace(cfg.System),
		client:      client,
		cred:        ts,
	}, nil
}

// NewFromEnv builds a Gateway from environment variables.
func NewFromEnv() (*Gateway, error) {
	cfg := Config{
		Project:  strings.TrimSpace(os.Getenv("VERTEX_PROJECT")),
		Location: strings.TrimSpace(os.Getenv("VERTEX_LOCATION")),
		Model:    strings.TrimSpace(os.Getenv("VERTEX_MODEL")),
		BaseURL:  strings.TrimSpace(os.Getenv("VERTEX_API_BASE")),
	}
	if temp := strings.TrimSpace(os.Getenv("VERTEX_TEMPERATURE")); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			cfg.Temperature = v
		}
	}
	if max := strings.TrimSpace(os.Getenv("VERTEX_MAX_TOKENS")); max != "" {
		if v, err := strconv.Atoi(max); err == nil {
			cfg.MaxTokens = v
		}
	}
	return New(cfg)
}

// Generate implements loop.Gateway.
func (g *Gateway) Generate(ctx context.Context, turns []conversation.Turn, tools []agent.ToolSchema) (loop.Response, error) {
	reqBody, err := g.buildRequest(turns, tools)
	if err != nil {
		return loop.Response{}, err
	}

	endpoint := fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		g.baseURL, g.project, g.location, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return loop.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := g.cred.Token()
	if err != nil {
		return loop.Response{}, fmt.Errorf("vertex token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return loop.Response{}, fmt.Errorf("vertex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := readBody(resp)
		return loop.Response{}, fmt.Errorf("vertex: status %d: %s", resp.StatusCode, body)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return loop.Response{}, fmt.Errorf("vertex: decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return loop.Response{}, nil
	}

	candidate := parsed.Candidates[0]
	blocks := make([]conversation.Block, 0, len(candidate.Content.Parts))
	for i, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			// Gemini omits call ids; synthesize deterministic ones.
			blocks = append(blocks, conversation.ToolCallBlock(agent.ToolCall{
				ID:   fmt.Sprintf("fn-%d", i),
				Name: part.FunctionCall.Name,
				Args: args,
			}))
			continue
		}
		if part.Text != "" {
			blocks = append(blocks, conversation.TextBlock(part.Text))
		}
	}

	usageValue := usage.Normalize(usage.Usage{
		Input:  parsed.UsageMetadata.PromptTokenCount,
		Output: parsed.UsageMetadata.CandidatesTokenCount,
	})

	return loop.Response{
		Blocks:     blocks,
		StopReason: usage.NormalizeStopReason(candidate.FinishReason),
		Usage:      &usageValue,
	}, nil
}

func (g *Gateway) buildRequest(turns []conversation.Turn, tools []agent.ToolSchema) ([]byte, error) {
	contents := make([]geminiContent, 0, len(turns))
	// Results are keyed by call id so function responses can echo the
	// function name Gemini requires.
	names := make(map[string]string)

	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			if strings.TrimSpace(turn.Text) == "" {
				continue
			}
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: turn.Text}},
			})

		case conversation.RoleAssistant:
			parts := make([]geminiPart, 0, len(turn.Blocks))
			for _, block := range turn.Blocks {
				switch block.Kind {
				case conversation.BlockText:
					if block.Text != "" {
						parts = append(parts, geminiPart{Text: block.Text})
					}
				case conversation.BlockToolCall:
					call := block.ToolCall
					names[call.ID] = call.Name
					parts = append(parts, geminiPart{
						FunctionCall: &geminiFunctionCall{
							Name: call.Name,
							Args: decodeArgs(call.Args),
						},
					})
				}
			}
			if len(parts) > 0 {
				contents = append(contents, geminiContent{Role: "model", Parts: parts})
			}

		case conversation.RoleTool:
			parts := make([]geminiPart, 0, len(turn.Results))
			for _, result := range turn.Results {
				payload := map[string]any{"result": result.Content}
				if result.IsError {
					payload = map[string]any{"error": result.Content}
				}
				parts = append(parts, geminiPart{
					FunctionResponse: &geminiFunctionResponse{
						Name:     names[result.CallID],
						Response: payload,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, geminiContent{Role: "user", Parts: parts})
			}
		}
	}

	request := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: g.maxTokens,
		},
	}
	if g.system != "" {
		request.SystemInstruction = &geminiSystemInstruction{
			Parts: []geminiPart{{Text: g.system}},
		}
	}
	if len(tools) > 0 {
		functions := make([]geminiFunctionDeclaration, 0, len(tools))
		for _, schema := range tools {
			functions = append(functions, geminiFunctionDeclaration{
				Name:        schema.Name,
				Description: schema.Description,
				Parameters:  schema.InputSchema(),
			})
		}
		request.Tools = []geminiTool{{FunctionDeclarations: functions}}
	}

	return json.Marshal(request)
}

func decodeArgs(args json.RawMessage) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}

func readBody(resp *http.Response) string {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "<unreadable body>"
	}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return "<empty body>"
	}
	if len(body) > 1200 {
		return body[:1200] + "... (truncated)"
	}
	return body
}

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"systemInstruction,omitempty"`
	Tools             []geminiTool             `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

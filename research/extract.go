package research

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/schema"
)

// ExtractInfoTool looks a paper id up across every saved topic.
type ExtractInfoTool struct {
	Store *Store
}

type extractInfoArgs struct {
	PaperID string `json:"paper_id" jsonschema:"description=The ID of the paper to look for"`
}

func (t *ExtractInfoTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "extract_info",
		Description: "Search for information about a specific paper across all topic directories.",
		Params:      schema.MustParams(extractInfoArgs{}),
	}
}

func (t *ExtractInfoTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	paperID := gjson.GetBytes(args, "paper_id").String()

	paper, found, err := t.Store.Find(paperID)
	if err != nil {
		return agent.EmptyReturn(), err
	}
	if !found {
		// A miss is information for the model, not a failure.
		return agent.ScalarReturn(fmt.Sprintf("There's no saved information related to paper %s.", paperID)), nil
	}

	return agent.RecordReturn(map[string]any{
		"title":     paper.Title,
		"authors":   paper.Authors,
		"summary":   paper.Summary,
		"pdf_url":   paper.PDFURL,
		"published": paper.Published,
	}), nil
}

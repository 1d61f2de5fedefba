package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/schema"
)

// ListTopicsTool renders the available topic folders as a markdown list.
type ListTopicsTool struct {
	Store *Store
}

func (t *ListTopicsTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "list_topics",
		Description: "List all available topic folders in the papers directory.",
	}
}

func (t *ListTopicsTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	topics, err := t.Store.Topics()
	if err != nil {
		return agent.EmptyReturn(), err
	}

	var b strings.Builder
	b.WriteString("# Available Topics\n\n")
	if len(topics) == 0 {
		b.WriteString("No topics found.\n")
		return agent.ScalarReturn(b.String()), nil
	}
	for _, topic := range topics {
		fmt.Fprintf(&b, "- %s\n", topic)
	}
	b.WriteString("\nUse topic_papers to access papers in a topic.\n")
	return agent.ScalarReturn(b.String()), nil
}

// TopicPapersTool renders one topic's saved papers as a markdown digest.
type TopicPapersTool struct {
	Store *Store
}

type topicPapersArgs struct {
	Topic string `json:"topic" jsonschema:"description=The research topic to retrieve papers for"`
}

func (t *TopicPapersTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "topic_papers",
		Description: "Get detailed information about papers on a specific topic.",
		Params:      schema.MustParams(topicPapersArgs{}),
	}
}

func (t *TopicPapersTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	topic := gjson.GetBytes(args, "topic").String()

	papers, err := t.Store.Topic(topic)
	if err != nil {
		if errors.Is(err, ErrCorrupted) {
			return agent.ScalarReturn(fmt.Sprintf("# Error reading papers data for %s\n\nThe papers data file is corrupted.", topic)), nil
		}
		return agent.ScalarReturn(fmt.Sprintf("# No papers found for topic: %s\n\nTry searching for papers on this topic first.", topic)), nil
	}

	ids := make([]string, 0, len(papers))
	for id := range papers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "# Papers on %s\n\n", titleCase(TopicSlug(topic)))
	fmt.Fprintf(&b, "Total papers: %d\n\n", len(papers))
	for _, id := range ids {
		paper := papers[id]
		fmt.Fprintf(&b, "## %s\n", paper.Title)
		fmt.Fprintf(&b, "- **Paper ID**: %s\n", id)
		fmt.Fprintf(&b, "- **Authors**: %s\n", strings.Join(paper.Authors, ", "))
		fmt.Fprintf(&b, "- **Published**: %s\n", paper.Published)
		fmt.Fprintf(&b, "- **PDF URL**: [%s](%s)\n\n", paper.PDFURL, paper.PDFURL)
		fmt.Fprintf(&b, "### Summary\n%s...\n\n", summaryPreview(paper.Summary))
		b.WriteString("---\n\n")
	}
	return agent.ScalarReturn(b.String()), nil
}

// summaryPreview truncates to 500 runes so a digest stays readable.
func summaryPreview(summary string) string {
	runes := []rune(summary)
	if len(runes) <= 500 {
		return summary
	}
	return string(runes[:500])
}

// titleCase renders a topic slug as a heading ("machine_learning" ->
// "Machine Learning").
func titleCase(slug string) string {
	words := strings.Split(strings.ReplaceAll(slug, "_", " "), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

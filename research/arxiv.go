package research

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/schema"
)

const defaultArxivBase = "http://export.arxiv.org/api/query"

// ArxivClient searches the arXiv Atom API.
type ArxivClient struct {
	baseURL string
	client  *http.Client
}

// ArxivOption configures an ArxivClient.
type ArxivOption func(*ArxivClient)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) ArxivOption {
	return func(c *ArxivClient) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ArxivOption {
	return func(c *ArxivClient) { c.client = hc }
}

// NewArxivClient creates a client for the public arXiv API.
func NewArxivClient(opts ...ArxivOption) *ArxivClient {
	c := &ArxivClient{
		baseURL: defaultArxivBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchResult is one paper hit with its short arXiv id.
type SearchResult struct {
	ID    string
	Paper Paper
}

// Search queries arXiv by relevance and returns up to maxResults papers.
func (c *ArxivClient) Search(ctx context.Context, topic string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("search_query", "all:"+topic)
	params.Set("max_results", fmt.Sprint(maxResults))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: read response: %w", err)
	}
	return parseFeed(body)
}

// atomFeed mirrors the subset of the arXiv Atom schema we consume.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

func parseFeed(body []byte) ([]SearchResult, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}

	results := make([]SearchResult, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		id := shortID(entry.ID)
		if id == "" {
			continue
		}

		pdfURL := ""
		for _, link := range entry.Links {
			if link.Title == "pdf" {
				pdfURL = link.Href
				break
			}
		}

		authors := make([]string, 0, len(entry.Authors))
		for _, author := range entry.Authors {
			authors = append(authors, strings.TrimSpace(author.Name))
		}

		published := entry.Published
		if len(published) >= 10 {
			published = published[:10]
		}

		results = append(results, SearchResult{
			ID: id,
			Paper: Paper{
				Title:     collapseWhitespace(entry.Title),
				Authors:   authors,
				Summary:   strings.TrimSpace(entry.Summary),
				PDFURL:    pdfURL,
				Published: published,
			},
		})
	}
	return results, nil
}

// shortID strips the abs URL prefix, e.g.
// "http://arxiv.org/abs/2301.00001v2" -> "2301.00001v2".
func shortID(raw string) string {
	idx := strings.LastIndex(raw, "/abs/")
	if idx < 0 {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(raw[idx+len("/abs/"):])
}

// collapseWhitespace normalizes the newline-wrapped titles the Atom feed
// produces into single-line form.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SearchPapersTool searches arXiv and persists the hits in the paper store.
type SearchPapersTool struct {
	Client *ArxivClient
	Store  *Store
}

type searchPapersArgs struct {
	Topic      string `json:"topic" jsonschema:"description=The topic to search for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"default=5,description=Maximum number of results to retrieve"`
}

func (t *SearchPapersTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "search_papers",
		Description: "Search for papers on arXiv based on a topic and store their information.",
		Params:      schema.MustParams(searchPapersArgs{}),
	}
}

func (t *SearchPapersTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	topic := gjson.GetBytes(args, "topic").String()
	maxResults := int(gjson.GetBytes(args, "max_results").Int())

	results, err := t.Client.Search(ctx, topic, maxResults)
	if err != nil {
		return agent.EmptyReturn(), err
	}

	ids := make([]string, 0, len(results))
	papers := make(map[string]Paper, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
		papers[r.ID] = r.Paper
	}

	if len(papers) > 0 {
		if err := t.Store.Save(topic, papers); err != nil {
			return agent.EmptyReturn(), err
		}
	}

	return agent.StringsReturn(ids...), nil
}

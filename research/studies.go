package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/paperloop/paperloop/agent"
	"github.com/paperloop/paperloop/agent/schema"
)

const (
	indexDirName  = "_index"
	indexFileName = "studies_index.json"
)

// IndexEntry is the reduced per-study record kept in the search index.
type IndexEntry struct {
	DetectedPhase       string `json:"detected_phase"`
	DetectedTherapeutic string `json:"detected_therapeutic"`
	DetectedIndication  string `json:"detected_indication"`
	SourceFile          string `json:"source_file"`
}

// StudyIndex manages the studies index under a corpus directory.
type StudyIndex struct {
	root string
}

// NewStudyIndex creates an index over the given study corpus directory.
func NewStudyIndex(dir string) *StudyIndex {
	return &StudyIndex{root: dir}
}

func (x *StudyIndex) indexFile() string {
	return filepath.Join(x.root, indexDirName, indexFileName)
}

// Build walks the corpus, parses every supported document, and writes the
// index. It returns the counts of indexed documents and per-file errors.
func (x *StudyIndex) Build() (indexed, failed int, err error) {
	if _, err := os.Stat(x.root); err != nil {
		return 0, 0, fmt.Errorf("study directory not found at %s", x.root)
	}
	if err := os.MkdirAll(filepath.Join(x.root, indexDirName), 0o755); err != nil {
		return 0, 0, fmt.Errorf("index: create index dir: %w", err)
	}

	entries := map[string]IndexEntry{}
	walkErr := filepath.WalkDir(x.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == indexDirName {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md", ".pdf", ".docx", ".doc":
		default:
			return nil
		}

		text, readErr := ReadDocument(path)
		if readErr != nil {
			failed++
			return nil
		}

		info := ParseStudy(text, path)
		studyID := fmt.Sprintf("%s_%s", filepath.Base(filepath.Dir(path)), strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())))
		entries[studyID] = IndexEntry{
			DetectedPhase:       info.DetectedPhase,
			DetectedTherapeutic: info.DetectedTherapeutic,
			DetectedIndication:  info.DetectedIndication,
			SourceFile:          path,
		}
		indexed++
		return nil
	})
	if walkErr != nil {
		return indexed, failed, fmt.Errorf("index: walk corpus: %w", walkErr)
	}

	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return indexed, failed, fmt.Errorf("index: encode: %w", err)
	}
	if err := os.WriteFile(x.indexFile(), payload, 0o644); err != nil {
		return indexed, failed, fmt.Errorf("index: write: %w", err)
	}
	return indexed, failed, nil
}

// Load reads the index; a missing index is an error telling the model to
// build it first.
func (x *StudyIndex) Load() (map[string]IndexEntry, error) {
	data, err := os.ReadFile(x.indexFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no search index found, run index_studies first to build it")
		}
		return nil, fmt.Errorf("index: read: %w", err)
	}
	entries := map[string]IndexEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("index: decode: %w", err)
	}
	return entries, nil
}

// IndexStudiesTool builds the study search index.
type IndexStudiesTool struct {
	Index *StudyIndex
}

func (t *IndexStudiesTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "index_studies",
		Description: "Index all study documents by parsing them and storing the results. Run once to build the search index.",
	}
}

func (t *IndexStudiesTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	indexed, failed, err := t.Index.Build()
	if err != nil {
		return agent.EmptyReturn(), err
	}
	return agent.ScalarReturn(fmt.Sprintf("Indexing complete: %d documents indexed, %d errors.", indexed, failed)), nil
}

// FindStudiesTool filters the index by phase, therapeutic area, and
// indication. Matching is case-insensitive substring in either direction;
// an empty criterion matches everything.
type FindStudiesTool struct {
	Index *StudyIndex
}

type findStudiesArgs struct {
	Phase       string `json:"phase,omitempty" jsonschema:"description=The clinical trial phase to match"`
	Therapeutic string `json:"therapeutic,omitempty" jsonschema:"description=The therapeutic area"`
	Indication  string `json:"indication,omitempty" jsonschema:"description=The medical indication being studied"`
}

func (t *FindStudiesTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "find_studies",
		Description: "Find study IDs based on phase, therapeutic area, and indication criteria. Use this to discover relevant studies before getting full details with study_analysis.",
		Params:      schema.MustParams(findStudiesArgs{}),
	}
}

func (t *FindStudiesTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	phase := gjson.GetBytes(args, "phase").String()
	therapeutic := gjson.GetBytes(args, "therapeutic").String()
	indication := gjson.GetBytes(args, "indication").String()

	entries, err := t.Index.Load()
	if err != nil {
		return agent.EmptyReturn(), err
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	matches := make([]map[string]any, 0, len(entries))
	for _, id := range ids {
		entry := entries[id]
		if !criterionMatches(phase, entry.DetectedPhase) ||
			!criterionMatches(therapeutic, entry.DetectedTherapeutic) ||
			!criterionMatches(indication, entry.DetectedIndication) {
			continue
		}
		matches = append(matches, map[string]any{
			"study_id":             id,
			"detected_phase":       entry.DetectedPhase,
			"detected_therapeutic": entry.DetectedTherapeutic,
			"detected_indication":  entry.DetectedIndication,
		})
	}

	return agent.RecordReturn(map[string]any{
		"search_criteria": map[string]any{
			"phase":       orDefault(phase, "Any"),
			"therapeutic": orDefault(therapeutic, "Any"),
			"indication":  orDefault(indication, "Any"),
		},
		"total_matches":    len(matches),
		"matching_studies": matches,
	}), nil
}

// criterionMatches is a bidirectional case-insensitive substring test; an
// empty criterion is a wildcard.
func criterionMatches(criterion, detected string) bool {
	if criterion == "" {
		return true
	}
	c := strings.ToLower(criterion)
	d := strings.ToLower(detected)
	return strings.Contains(d, c) || strings.Contains(c, d)
}

// StudyAnalysisTool runs the deep extraction for one indexed study.
type StudyAnalysisTool struct {
	Index *StudyIndex
}

type studyAnalysisArgs struct {
	StudyID string `json:"study_id" jsonschema:"description=The unique study identifier from the index"`
}

func (t *StudyAnalysisTool) Schema() agent.ToolSchema {
	return agent.ToolSchema{
		Name:        "study_analysis",
		Description: "Get comprehensive study information for a specific study ID: sample size analysis, statistical methods, and structured study information.",
		Params:      schema.MustParams(studyAnalysisArgs{}),
	}
}

func (t *StudyAnalysisTool) Invoke(ctx context.Context, args json.RawMessage) (agent.ToolReturn, error) {
	studyID := gjson.GetBytes(args, "study_id").String()

	entries, err := t.Index.Load()
	if err != nil {
		return agent.EmptyReturn(), err
	}

	entry, ok := entries[studyID]
	if !ok {
		available := make([]string, 0, len(entries))
		for id := range entries {
			available = append(available, id)
		}
		sort.Strings(available)
		return agent.EmptyReturn(), fmt.Errorf("study ID %q not found, available study IDs: %s", studyID, strings.Join(available, ", "))
	}

	text, err := ReadDocument(entry.SourceFile)
	if err != nil {
		return agent.EmptyReturn(), fmt.Errorf("could not extract text from %s: %w", entry.SourceFile, err)
	}

	return agent.RecordReturn(AnalyzeStudy(text, entry.SourceFile, studyID)), nil
}

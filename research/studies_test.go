package research

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeStudy(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func buildCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeStudy(t, filepath.Join(root, "oncology"), "phase3_breast.txt",
		"Study Title: A Phase 3 Trial in Breast Cancer\nStudy Design: randomized placebo-controlled study\n")
	writeStudy(t, filepath.Join(root, "cardio"), "phase2_heart.txt",
		"Study Title: A Phase 2 Study of Heart Disease\nStudy Design: double-blind cardiac outcomes study\n")
	// Binary formats count as errors, not entries.
	writeStudy(t, filepath.Join(root, "oncology"), "legacy.pdf", "%PDF-1.4 ...")
	return root
}

func TestIndexBuildCountsAndSkipsIndexDir(t *testing.T) {
	root := buildCorpus(t)
	index := NewStudyIndex(root)

	indexed, failed, err := index.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if indexed != 2 || failed != 1 {
		t.Fatalf("unexpected counts: indexed=%d failed=%d", indexed, failed)
	}

	entries, err := index.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	entry, ok := entries["oncology_phase3_breast"]
	if !ok {
		t.Fatalf("expected oncology entry, got %v", entries)
	}
	if entry.DetectedPhase != "Phase III" || entry.DetectedTherapeutic != "Oncology" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	// Rebuilding must not index its own output.
	indexed, _, err = index.Build()
	if err != nil || indexed != 2 {
		t.Fatalf("rebuild walked the index dir: indexed=%d err=%v", indexed, err)
	}
}

func TestIndexBuildMissingRoot(t *testing.T) {
	index := NewStudyIndex(filepath.Join(t.TempDir(), "nope"))
	if _, _, err := index.Build(); err == nil {
		t.Fatalf("expected an error for a missing corpus directory")
	}
}

func TestIndexLoadWithoutBuild(t *testing.T) {
	index := NewStudyIndex(t.TempDir())
	_, err := index.Load()
	if err == nil || !strings.Contains(err.Error(), "index_studies") {
		t.Fatalf("expected a build-first error, got %v", err)
	}
}

func TestIndexStudiesToolSummary(t *testing.T) {
	tool := &IndexStudiesTool{Index: NewStudyIndex(buildCorpus(t))}
	ret, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := ret.Normalize(); got != "Indexing complete: 2 documents indexed, 1 errors." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestFindStudiesFilters(t *testing.T) {
	index := NewStudyIndex(buildCorpus(t))
	if _, _, err := index.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	tool := &FindStudiesTool{Index: index}

	ret, err := tool.Invoke(context.Background(), json.RawMessage(`{"phase":"","therapeutic":"oncology","indication":""}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	content := ret.Normalize()
	if !strings.Contains(content, `"total_matches": 1`) {
		t.Fatalf("expected one match: %s", content)
	}
	if !strings.Contains(content, "oncology_phase3_breast") {
		t.Fatalf("wrong match: %s", content)
	}
	// Criteria echo, with empties rendered as Any.
	if !strings.Contains(content, `"phase": "Any"`) {
		t.Fatalf("criteria echo missing: %s", content)
	}
}

func TestFindStudiesEmptyCriteriaMatchAll(t *testing.T) {
	index := NewStudyIndex(buildCorpus(t))
	if _, _, err := index.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	tool := &FindStudiesTool{Index: index}

	ret, err := tool.Invoke(context.Background(), json.RawMessage(`{"phase":"","therapeutic":"","indication":""}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(ret.Normalize(), `"total_matches": 2`) {
		t.Fatalf("expected all studies: %s", ret.Normalize())
	}
}

func TestCriterionMatchesBidirectional(t *testing.T) {
	if !criterionMatches("", "anything") {
		t.Fatalf("empty criterion must match")
	}
	if !criterionMatches("phase iii", "Phase III") {
		t.Fatalf("case-insensitive match failed")
	}
	// Either side may contain the other.
	if !criterionMatches("Oncology and more", "oncology") {
		t.Fatalf("reverse containment failed")
	}
	if criterionMatches("cardiology", "Oncology") {
		t.Fatalf("unrelated values must not match")
	}
}

func TestStudyAnalysisUnknownID(t *testing.T) {
	index := NewStudyIndex(buildCorpus(t))
	if _, _, err := index.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	tool := &StudyAnalysisTool{Index: index}

	_, err := tool.Invoke(context.Background(), json.RawMessage(`{"study_id":"ghost"}`))
	if err == nil || !strings.Contains(err.Error(), "available study IDs") {
		t.Fatalf("expected an id listing error, got %v", err)
	}
	if !strings.Contains(err.Error(), "oncology_phase3_breast") {
		t.Fatalf("error should list known ids: %v", err)
	}
}

func TestStudyAnalysisDeepExtraction(t *testing.T) {
	index := NewStudyIndex(buildCorpus(t))
	if _, _, err := index.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	tool := &StudyAnalysisTool{Index: index}

	ret, err := tool.Invoke(context.Background(), json.RawMessage(`{"study_id":"cardio_phase2_heart"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	content := ret.Normalize()
	if !strings.Contains(content, `"study_id": "cardio_phase2_heart"`) {
		t.Fatalf("identification missing: %s", content)
	}
	if !strings.Contains(content, `"detected_phase": "Phase II"`) {
		t.Fatalf("phase missing: %s", content)
	}
}

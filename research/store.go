// Package research provides the paper-search and clinical-study tools that
// back the agent loop: an arXiv client, a per-topic paper store, and a regex
// extraction engine over study documents.
package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const papersInfoFile = "papers_info.json"

// ErrCorrupted reports a papers file that exists but does not decode.
var ErrCorrupted = errors.New("papers data corrupted")

// Paper is the stored record for one arXiv result.
type Paper struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Summary   string   `json:"summary"`
	PDFURL    string   `json:"pdf_url"`
	Published string   `json:"published"`
}

// Store persists paper info under a root directory, one subdirectory per
// topic, each holding a papers_info.json keyed by paper id.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// TopicSlug maps a free-form topic to its directory name.
func TopicSlug(topic string) string {
	return strings.ReplaceAll(strings.ToLower(topic), " ", "_")
}

func (s *Store) topicFile(topic string) string {
	return filepath.Join(s.root, TopicSlug(topic), papersInfoFile)
}

// Save merges papers into the topic's existing records and writes the file
// atomically. Existing entries for the same id are overwritten.
func (s *Store) Save(topic string, papers map[string]Paper) error {
	dir := filepath.Join(s.root, TopicSlug(topic))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create topic dir: %w", err)
	}

	existing, err := s.Topic(topic)
	if err != nil {
		// A missing or corrupted file starts fresh, same as an empty topic.
		existing = map[string]Paper{}
	}
	for id, paper := range papers {
		existing[id] = paper
	}

	payload, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode papers: %w", err)
	}

	// Write-then-rename so readers never observe a partial file.
	target := filepath.Join(dir, papersInfoFile)
	tmp, err := os.CreateTemp(dir, papersInfoFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write papers: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close papers: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: replace papers: %w", err)
	}
	return nil
}

// Topic loads the saved records for one topic.
func (s *Store) Topic(topic string) (map[string]Paper, error) {
	data, err := os.ReadFile(s.topicFile(topic))
	if err != nil {
		return nil, err
	}
	papers := map[string]Paper{}
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("store: %s: %w: %v", s.topicFile(topic), ErrCorrupted, err)
	}
	return papers, nil
}

// Topics lists topic directories that hold a papers file, sorted by name.
func (s *Store) Topics() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read root: %w", err)
	}
	topics := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, entry.Name(), papersInfoFile)); err == nil {
			topics = append(topics, entry.Name())
		}
	}
	sort.Strings(topics)
	return topics, nil
}

// Find scans every topic for a paper id. The boolean reports whether the
// paper was found; unreadable topic files are skipped.
func (s *Store) Find(paperID string) (Paper, bool, error) {
	topics, err := s.Topics()
	if err != nil {
		return Paper{}, false, err
	}
	for _, topic := range topics {
		papers, err := s.Topic(topic)
		if err != nil {
			continue
		}
		if paper, ok := papers[paperID]; ok {
			return paper, true, nil
		}
	}
	return Paper{}, false, nil
}

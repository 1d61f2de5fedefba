// Package truncate caps tool output before it re-enters the model context.
package truncate

import "strings"

const (
	DefaultMaxLines = 400
	DefaultMaxBytes = 16 * 1024
)

// Options configures truncation thresholds. Zero values fall back to the
// package defaults.
type Options struct {
	MaxLines int
	MaxBytes int
}

// Mode controls which end of the content survives.
type Mode string

const (
	ModeHead Mode = "head"
	ModeTail Mode = "tail"
)

// Result captures the truncated content and metadata for event reporting.
type Result struct {
	Content     string
	Truncated   bool
	TruncatedBy string // "lines" | "bytes" | ""
	TotalLines  int
	TotalBytes  int
	OutputLines int
	OutputBytes int
}

// Apply truncates content according to mode and options.
func Apply(content string, mode Mode, opts Options) Result {
	maxLines, maxBytes := normalize(opts)
	lines := strings.Split(content, "\n")
	totalLines := len(lines)
	totalBytes := len(content)

	if totalLines <= maxLines && totalBytes <= maxBytes {
		return Result{
			Content:     content,
			TotalLines:  totalLines,
			TotalBytes:  totalBytes,
			OutputLines: totalLines,
			OutputBytes: totalBytes,
		}
	}

	kept := make([]string, 0, min(totalLines, maxLines))
	outputBytes := 0
	truncatedBy := "lines"

	take := func(line string) bool {
		cost := len(line)
		if len(kept) > 0 {
			cost++ // newline
		}
		if outputBytes+cost > maxBytes {
			truncatedBy = "bytes"
			return false
		}
		outputBytes += cost
		return true
	}

	switch mode {
	case ModeTail:
		for i := totalLines - 1; i >= 0 && len(kept) < maxLines; i-- {
			if !take(lines[i]) {
				break
			}
			kept = append([]string{lines[i]}, kept...)
		}
	default:
		for i := 0; i < totalLines && len(kept) < maxLines; i++ {
			if !take(lines[i]) {
				break
			}
			kept = append(kept, lines[i])
		}
	}

	out := strings.Join(kept, "\n")
	return Result{
		Content:     out,
		Truncated:   true,
		TruncatedBy: truncatedBy,
		TotalLines:  totalLines,
		TotalBytes:  totalBytes,
		OutputLines: len(kept),
		OutputBytes: len(out),
	}
}

func normalize(opts Options) (int, int) {
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return maxLines, maxBytes
}

// Package report collects the artifacts an analysis run leaves in its
// output directory: report documents and the generated "about" summary.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/greg-hellings/osapanel/pkg/result"
)

const (
	// DefaultPattern matches the PDF reports the tool writes.
	DefaultPattern = "*.pdf"
	// DefaultSummaryFile holds the generated About section.
	DefaultSummaryFile = "about_section.md"
)

// Artifacts is what a run produced.
type Artifacts struct {
	Files   []result.ReportFile
	Summary *string
}

// Collector finds artifacts in a run output directory.
type Collector struct {
	Patterns    []string
	SummaryFile string
}

// NewCollector returns a collector for patterns (DefaultPattern if none)
// and summaryFile (DefaultSummaryFile if empty).
func NewCollector(patterns []string, summaryFile string) *Collector {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	if summaryFile == "" {
		summaryFile = DefaultSummaryFile
	}
	return &Collector{Patterns: patterns, SummaryFile: summaryFile}
}

// Collect scans dir. A missing directory yields empty artifacts.
func (c *Collector) Collect(dir string) (*Artifacts, error) {
	out := &Artifacts{Files: []result.ReportFile{}}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("Output directory does not exist", "dir", dir)
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat output directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path %s is not a directory", dir)
	}

	seen := make(map[string]bool)
	for _, pattern := range c.Patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad report pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if fi, err := os.Stat(m); err != nil || fi.IsDir() {
				continue
			}
			seen[m] = true
			out.Files = append(out.Files, result.ReportFile{Path: m, DisplayName: filepath.Base(m)})
		}
	}
	sort.Slice(out.Files, func(i, j int) bool {
		return out.Files[i].DisplayName < out.Files[j].DisplayName
	})

	summary, err := readSummary(filepath.Join(dir, c.SummaryFile))
	if err != nil {
		return nil, err
	}
	out.Summary = summary

	slog.Debug("Collected run artifacts", "dir", dir, "reports", len(out.Files), "summary", summary != nil)
	return out, nil
}

func readSummary(path string) (*string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

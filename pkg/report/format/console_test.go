package format

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/greg-hellings/osapanel/pkg/result"
)

// helper to build a sample result
func sampleResult() *result.Result {
	summary := "OSA: tool for improving open source repositories.\nTags: python, llm"
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &result.Result{
		ExitCode:  0,
		Succeeded: true,
		Message:   result.MessageSuccess,
		Log:       "cloning\nanalyzing\ndone\n",
		ReportFiles: []result.ReportFile{
			{Path: "/tmp/session-1/run-1/a.pdf", DisplayName: "a.pdf"},
			{Path: "/tmp/session-1/run-1/b.pdf", DisplayName: "b.pdf"},
		},
		Summary:    &summary,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Warnings:   []string{"GIT_TOKEN is not set"},
	}
}

func TestConsoleFormatterBasicRender(t *testing.T) {
	res := sampleResult()

	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false // deterministic output for assertions

	if err := f.Render(res, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	out := buf.String()

	expectContains(t, out, "SUCCESS (exit code 0) in 2s", "status banner missing")
	expectContains(t, out, result.MessageSuccess, "message missing")
	expectContains(t, out, "warning: GIT_TOKEN is not set", "warning missing")
	expectContains(t, out, "a.pdf", "first report missing")
	expectContains(t, out, "b.pdf", "second report missing")
	expectContains(t, out, "About section:", "about header missing")
	expectContains(t, out, "Tags: python, llm", "about text missing")

	if strings.Index(out, "a.pdf") > strings.Index(out, "b.pdf") {
		t.Errorf("reports rendered out of order")
	}
	if strings.Contains(out, "Log:") {
		t.Errorf("log should be hidden by default")
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("unexpected ANSI color sequences found when colors disabled")
	}
}

func TestConsoleFormatterFailureWithLogTail(t *testing.T) {
	res := &result.Result{
		ExitCode: 2,
		Message:  result.MessageFailure,
		Log:      "one\ntwo\nthree\n",
	}

	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	f.LogTailLines = 2

	if err := f.Render(res, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	out := buf.String()

	expectContains(t, out, "FAILED (exit code 2)", "failure banner missing")
	expectContains(t, out, "Log:\ntwo\nthree", "log tail missing")
	if strings.Contains(out, "Log:\none") {
		t.Errorf("log tail should drop earlier lines")
	}
	if strings.Contains(out, "About section:") {
		t.Errorf("about section should be absent without summary")
	}
}

func TestConsoleFormatterTimedOut(t *testing.T) {
	res := &result.Result{ExitCode: 124, TimedOut: true, Message: result.MessageTimeout}

	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	if err := f.Render(res, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	expectContains(t, buf.String(), "TIMED OUT (exit code 124)", "timeout banner missing")
}

func TestConsoleFormatterInterrupted(t *testing.T) {
	res := &result.Result{ExitCode: 130, Interrupted: true, Message: result.MessageInterrupted}

	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = false
	if err := f.Render(res, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	expectContains(t, buf.String(), "INTERRUPTED (exit code 130)", "interrupted banner missing")
	expectContains(t, buf.String(), result.MessageInterrupted, "interrupted message missing")
}

func TestConsoleFormatterColorsEnabled(t *testing.T) {
	res := &result.Result{ExitCode: 1, Message: result.MessageFailure}

	var buf bytes.Buffer
	f := NewConsoleFormatter()
	f.EnableColors = true

	if err := f.Render(res, &buf); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("expected ANSI color sequences but none found")
	}
	if !strings.Contains(stripANSI(out), "FAILED") {
		t.Errorf("expected FAILED marker in output (stripANSI)")
	}
}

func TestConsoleFormatterNilResult(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsoleFormatter().Render(nil, &buf); err == nil {
		t.Fatalf("expected error rendering nil result, got nil")
	}
}

func TestLogTail(t *testing.T) {
	tests := []struct {
		log  string
		n    int
		want string
	}{
		{"a\nb\nc\n", 0, ""},
		{"a\nb\nc\n", -1, "a\nb\nc"},
		{"a\nb\nc\n", 2, "b\nc"},
		{"a\nb\n", 10, "a\nb"},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := logTail(tt.log, tt.n); got != tt.want {
			t.Errorf("logTail(%q, %d) = %q, want %q", tt.log, tt.n, got, tt.want)
		}
	}
}

func TestTruncateLeft(t *testing.T) {
	if got := truncateLeft("/very/long/path/report.pdf", 11); got != "…report.pdf" {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := truncateLeft("short", 10); got != "short" {
		t.Errorf("short strings must be kept, got %q", got)
	}
	// wide runes take two columns each
	if got := truncateLeft("/out/报告报告.pdf", 9); got != "…报告.pdf" {
		t.Errorf("unexpected wide truncation %q", got)
	}
}

func expectContains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Fatalf("%s: expected to contain %q\nFull output:\n%s", msg, substr, s)
	}
}

// stripANSI removes ANSI escape sequences for simplified checks.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x1b {
			inEsc = true
			continue
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

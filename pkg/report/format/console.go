// Package format renders run results for a terminal. The report table
// adapts to the console width and status lines can be colored.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/greg-hellings/osapanel/pkg/result"
)

// ConsoleFormatter renders a Result as a status banner, a table of report
// files, the generated About section and optionally the log tail.
type ConsoleFormatter struct {
	// MaxPathColWidth constrains the path column. If 0, the width is derived
	// from the terminal.
	MaxPathColWidth int

	// LogTailLines is the number of trailing log lines to print. 0 hides the
	// log, a negative value prints all of it.
	LogTailLines int

	// EnableColors toggles ANSI color output for the status banner.
	EnableColors bool
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		LogTailLines: 0,
		EnableColors: true,
	}
}

// Render writes the formatted result to writer.
func (f *ConsoleFormatter) Render(res *result.Result, writer io.Writer) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}

	if _, err := fmt.Fprintln(writer, f.banner(res)); err != nil {
		return fmt.Errorf("failed writing status banner: %w", err)
	}
	if _, err := fmt.Fprintln(writer, res.Message); err != nil {
		return fmt.Errorf("failed writing message: %w", err)
	}
	for _, w := range res.Warnings {
		if _, err := fmt.Fprintf(writer, "%s %s\n", f.color("warning:", text.FgYellow), w); err != nil {
			return fmt.Errorf("failed writing warning: %w", err)
		}
	}

	if len(res.ReportFiles) > 0 {
		if _, err := fmt.Fprintln(writer); err != nil {
			return fmt.Errorf("failed writing spacer newline: %w", err)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(writer)
		tw.SetStyle(table.StyleRounded)
		tw.Style().Options.SeparateRows = false
		tw.Style().Options.DrawBorder = true
		tw.AppendHeader(table.Row{"#", "Report", "Path"})
		if cfg := f.buildColumnConfig(res, writer); len(cfg) > 0 {
			tw.SetColumnConfigs(cfg)
		}
		for i, rf := range res.ReportFiles {
			tw.AppendRow(table.Row{i + 1, rf.DisplayName, rf.Path})
		}
		tw.Render()
	}

	if res.Summary != nil {
		if _, err := fmt.Fprintf(writer, "\nAbout section:\n%s\n", *res.Summary); err != nil {
			return fmt.Errorf("failed writing about section: %w", err)
		}
	}

	if tail := logTail(res.Log, f.LogTailLines); tail != "" {
		if _, err := fmt.Fprintf(writer, "\nLog:\n%s\n", tail); err != nil {
			return fmt.Errorf("failed writing log: %w", err)
		}
	}

	return nil
}

func (f *ConsoleFormatter) banner(res *result.Result) string {
	var status string
	switch {
	case res.TimedOut:
		status = f.color("TIMED OUT", text.FgRed)
	case res.Interrupted:
		status = f.color("INTERRUPTED", text.FgYellow)
	case res.Succeeded:
		status = f.color("SUCCESS", text.FgGreen)
	default:
		status = f.color("FAILED", text.FgRed)
	}
	line := fmt.Sprintf("%s (exit code %d)", status, res.ExitCode)
	if d := res.Duration(); d > 0 {
		line += fmt.Sprintf(" in %s", d.Round(1e6))
	}
	return line
}

// buildColumnConfig constrains the path column to fit the terminal.
func (f *ConsoleFormatter) buildColumnConfig(res *result.Result, w io.Writer) []table.ColumnConfig {
	pathWidth := f.MaxPathColWidth
	if pathWidth <= 0 {
		termWidth := detectTerminalWidth(w)
		if termWidth <= 0 {
			return nil
		}
		if termWidth < 60 {
			termWidth = 60
		}
		nameWidth := 0
		for _, rf := range res.ReportFiles {
			if l := runewidth.StringWidth(rf.DisplayName); l > nameWidth {
				nameWidth = l
			}
		}
		// borders, padding and the index column
		pathWidth = termWidth - nameWidth - 14
		if pathWidth < 20 {
			pathWidth = 20
		}
	}

	return []table.ColumnConfig{
		{
			Number:      3,
			WidthMax:    pathWidth,
			Transformer: truncTransformer(pathWidth),
		},
	}
}

// logTail returns the last n lines of log. n < 0 returns the whole log.
func logTail(log string, n int) string {
	log = strings.TrimRight(log, "\n")
	if n == 0 || log == "" {
		return ""
	}
	if n < 0 {
		return log
	}
	lines := strings.Split(log, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer that ellipsizes wide cells,
// keeping the end of the value (the file name part of a path). Widths are
// terminal columns, so CJK file names are measured correctly.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if runewidth.StringWidth(s) > max {
			if max <= 1 {
				return "…"
			}
			return truncateLeft(s, max)
		}
		return s
	}
}

// truncateLeft keeps the widest suffix of s that fits in max columns
// together with a leading ellipsis.
func truncateLeft(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= max {
		return s
	}
	runes := []rune(s)
	width := 0
	start := len(runes)
	for start > 0 {
		w := runewidth.RuneWidth(runes[start-1])
		if width+w > max-1 {
			break
		}
		width += w
		start--
	}
	return "…" + string(runes[start:])
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}

// RenderConsole renders res to w using the default console formatter.
func RenderConsole(res *result.Result, w io.Writer) error {
	return NewConsoleFormatter().Render(res, w)
}

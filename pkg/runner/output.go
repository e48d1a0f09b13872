package runner

import (
	"bytes"
	"strings"
	"sync"
)

// maxLineBytes caps a partial line held while waiting for a terminator.
const maxLineBytes = 64 << 10

// lineWriter splits a byte stream into lines and hands each one to emit.
// Lines end at "\n", "\r\n" or a bare "\r", so carriage-return progress
// output arrives one update at a time. A partial line longer than
// maxLineBytes is emitted as is. Flush delivers the trailing partial line.
type lineWriter struct {
	emit func(string)
	max  int
	buf  []byte
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit, max: maxLineBytes}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		next := i + 1
		if w.buf[i] == '\r' {
			// Wait for the next byte to tell "\r\n" from a bare "\r".
			if next == len(w.buf) {
				break
			}
			if w.buf[next] == '\n' {
				next++
			} else if i == 0 {
				w.buf = w.buf[next:]
				continue
			}
		}
		line := string(w.buf[:i])
		w.buf = w.buf[next:]
		w.emit(line)
	}
	for len(w.buf) > w.max {
		line := string(w.buf[:w.max])
		w.buf = w.buf[w.max:]
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	line := strings.TrimRight(string(w.buf), "\r")
	w.buf = nil
	if line == "" {
		return
	}
	w.emit(line)
}

// logBuffer accumulates run output. When it grows past max bytes the oldest
// whole lines are dropped.
type logBuffer struct {
	mu        sync.RWMutex
	b         strings.Builder
	max       int
	truncated bool
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (l *logBuffer) AppendLine(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.b.WriteString(line)
	l.b.WriteByte('\n')
	if l.max <= 0 || l.b.Len() <= l.max {
		return
	}

	s := l.b.String()
	cut := len(s) - l.max
	if i := strings.IndexByte(s[cut:], '\n'); i >= 0 && cut+i+1 < len(s) {
		cut += i + 1
	}
	l.b.Reset()
	l.b.WriteString(s[cut:])
	l.truncated = true
}

func (l *logBuffer) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.b.String()
}

// Truncated reports whether older output was dropped.
func (l *logBuffer) Truncated() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.truncated
}

// tailLines returns at most n trailing lines of s.
func tailLines(s string, n int) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// redactor masks secrets in captured output.
type redactor struct {
	secrets []string
}

func newRedactor(secrets ...string) *redactor {
	r := &redactor{}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r
}

func (r *redactor) Redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "***")
	}
	return s
}

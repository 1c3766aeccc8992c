// Package terminal provides the output buffer and command history backing a
// pty session.
package terminal

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// CSI and OSC alternatives come first so the single-character form
	// cannot swallow their introducers.
	ansiEscape   = regexp.MustCompile(`\x1B(?:\[[0-?]*[ -/]*[@-~]|\][^\x07\x1B]*(?:\x07|\x1B\\)|[@-Z\\-_])`)
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B-\x0C\x0E-\x1F\x7F]`)
)

// Buffer is a bounded, line-oriented store of terminal output. Appends decode
// permissively, reassemble lines on \n, and collapse carriage-return
// overwrites to the last segment. Oldest lines are evicted first.
type Buffer struct {
	mu        sync.Mutex
	maxLines  int
	lines     []string
	total     int // lines ever completed; never decreases, survives eviction
	current   strings.Builder
	pendingCR bool
}

// NewBuffer builds a buffer retaining at most maxLines reassembled lines.
func NewBuffer(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = 1000
	}
	return &Buffer{maxLines: maxLines}
}

// Append decodes data and feeds it through line reassembly. Invalid byte
// sequences are replaced, never fatal.
func (b *Buffer) Append(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		// CR followed by LF is an ordinary line ending; CR followed by
		// anything else rewinds to the start of the line for overwrite.
		if b.pendingCR {
			b.pendingCR = false
			if r != '\n' {
				b.current.Reset()
			}
		}
		switch r {
		case '\n':
			b.pushLine()
		case '\r':
			b.pendingCR = true
		case '\b':
			cur := b.current.String()
			if cur != "" {
				_, last := utf8.DecodeLastRuneInString(cur)
				b.current.Reset()
				b.current.WriteString(cur[:len(cur)-last])
			}
		case '\t':
			pad := 8 - b.current.Len()%8
			b.current.WriteString(strings.Repeat(" ", pad))
		default:
			if r >= 32 || r == utf8.RuneError {
				b.current.WriteRune(r)
			} else if r == 0x1B {
				// keep escape introducers so PlainText can strip whole sequences
				b.current.WriteRune(r)
			}
		}
	}
}

func (b *Buffer) pushLine() {
	line := strings.TrimRight(b.current.String(), " \t")
	b.current.Reset()
	b.total++
	b.lines = append(b.lines, line)
	if len(b.lines) > b.maxLines {
		b.lines = b.lines[len(b.lines)-b.maxLines:]
	}
}

// Lines returns the reassembled lines in the absolute index range
// [from, from+count), along with the absolute index of the first returned
// line. Absolute indexes count every line ever completed, so they stay
// valid after eviction; the range is clamped to what is still retained.
// count <= 0 means everything from the offset.
func (b *Buffer) Lines(from, count int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if from < 0 {
		from = 0
	}
	end := b.total
	if count > 0 && from+count < end {
		end = from + count
	}
	evicted := b.total - len(b.lines)
	if from < evicted {
		from = evicted
	}
	if from >= end {
		return nil, from
	}
	out := make([]string, end-from)
	copy(out, b.lines[from-evicted:end-evicted])
	return out, from
}

// Recent returns the most recent count complete lines.
func (b *Buffer) Recent(count int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	slice := b.lines
	if count > 0 && count < len(slice) {
		slice = slice[len(slice)-count:]
	}
	out := make([]string, len(slice))
	copy(out, slice)
	return out
}

// Len reports the number of complete lines retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Total reports the number of complete lines ever appended, including lines
// the ring has since evicted. Use it as the absolute index of the next line.
func (b *Buffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// PlainText returns buffer content with ANSI escape sequences and control
// bytes stripped. Safe input for the redactor and context window.
func (b *Buffer) PlainText() string {
	b.mu.Lock()
	lines := make([]string, len(b.lines))
	copy(lines, b.lines)
	if cur := b.current.String(); cur != "" {
		lines = append(lines, cur)
	}
	b.mu.Unlock()

	for i, line := range lines {
		lines[i] = StripANSI(line)
	}
	return strings.Join(lines, "\n")
}

// Match is one search hit within the retained window. Line is the absolute
// line index.
type Match struct {
	Line int
	Text string
}

// Search returns lines matching pattern. Invalid patterns fall back to a
// literal substring match.
func (b *Buffer) Search(pattern string) []Match {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
	}
	var results []Match
	lines, start := b.Lines(0, 0)
	for i, line := range lines {
		plain := StripANSI(line)
		if re.MatchString(plain) {
			results = append(results, Match{Line: start + i, Text: plain})
		}
	}
	return results
}

// Clear drops all retained lines. The absolute line counter keeps counting
// so indexes handed out before the clear stay consistent.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.current.Reset()
	b.pendingCR = false
}

// StripANSI removes ANSI escape sequences and residual control bytes.
func StripANSI(text string) string {
	text = ansiEscape.ReplaceAllString(text, "")
	return controlChars.ReplaceAllString(text, "")
}

package terminal

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferReassemblesLines(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("hello "))
	buf.Append([]byte("world\nsecond line\n"))

	got, start := buf.Lines(0, 0)
	want := []string{"hello world", "second line"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lines mismatch (-want +got):\n%s", diff)
	}
	if start != 0 {
		t.Fatalf("expected start index 0, got %d", start)
	}
}

func TestBufferFIFOEviction(t *testing.T) {
	max := 5
	buf := NewBuffer(max)
	for i := 0; i <= max; i++ {
		buf.Append([]byte(fmt.Sprintf("line-%d\n", i)))
	}

	if buf.Len() != max {
		t.Fatalf("expected %d lines after overflow, got %d", max, buf.Len())
	}
	lines, start := buf.Lines(0, 0)
	if lines[0] == "line-0" {
		t.Fatalf("oldest line should have been evicted, got %q first", lines[0])
	}
	if lines[0] != "line-1" {
		t.Fatalf("expected line-1 first after eviction, got %q", lines[0])
	}
	if start != 1 {
		t.Fatalf("expected clamped start index 1, got %d", start)
	}
}

func TestBufferAbsoluteIndexesSurviveEviction(t *testing.T) {
	buf := NewBuffer(4)
	for i := 0; i < 10; i++ {
		buf.Append([]byte(fmt.Sprintf("line-%d\n", i)))
	}

	if buf.Total() != 10 {
		t.Fatalf("expected total 10, got %d", buf.Total())
	}
	got, start := buf.Lines(7, 2)
	want := []string{"line-7", "line-8"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("absolute range mismatch (-want +got):\n%s", diff)
	}
	if start != 7 {
		t.Fatalf("expected start index 7, got %d", start)
	}

	// range fully evicted
	if got, _ := buf.Lines(0, 3); got != nil {
		t.Fatalf("expected nil for an evicted range, got %v", got)
	}

	// partially evicted range clamps its start but keeps its end
	got, start = buf.Lines(4, 4)
	want = []string{"line-6", "line-7"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clamped range mismatch (-want +got):\n%s", diff)
	}
	if start != 6 {
		t.Fatalf("expected clamped start index 6, got %d", start)
	}
}

func TestBufferCarriageReturnOverwrite(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("progress 10%\rprogress 99%\rdone\n"))

	lines, _ := buf.Lines(0, 0)
	if len(lines) != 1 || lines[0] != "done" {
		t.Fatalf("expected CR collapse to last segment, got %v", lines)
	}
}

func TestBufferCRLFLineEndings(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("first\r\nsecond\r"))
	buf.Append([]byte("\nthird\r\n"))

	got, _ := buf.Lines(0, 0)
	want := []string{"first", "second", "third"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("crlf handling mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferBackspaceRuneBoundary(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("hé\bx\n"))

	got, _ := buf.Lines(0, 0)
	if len(got) != 1 || got[0] != "hx" {
		t.Fatalf("expected backspace to drop the whole rune, got %v", got)
	}
}

func TestBufferInvalidUTF8(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte{0xff, 0xfe, 'o', 'k', '\n'})

	lines, _ := buf.Lines(0, 0)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %v", lines)
	}
}

func TestBufferPlainTextStripsANSI(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("\x1b[31mred error\x1b[0m\n"))

	if got := buf.PlainText(); got != "red error" {
		t.Fatalf("expected stripped text, got %q", got)
	}
}

func TestStripANSIHandlesOSC(t *testing.T) {
	in := "\x1b]0;title\x07body"
	if got := StripANSI(in); got != "body" {
		t.Fatalf("expected OSC removal, got %q", got)
	}
}

func TestBufferSearch(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("alpha\nBeta match\ngamma\n"))

	hits := buf.Search("beta")
	if len(hits) != 1 || hits[0].Line != 1 {
		t.Fatalf("expected one case-insensitive hit on line 1, got %+v", hits)
	}
}

func TestBufferClear(t *testing.T) {
	buf := NewBuffer(10)
	buf.Append([]byte("something\n"))
	buf.Clear()
	if buf.Len() != 0 || buf.PlainText() != "" {
		t.Fatalf("expected empty buffer after clear")
	}
	if buf.Total() != 1 {
		t.Fatalf("clear must not rewind the absolute counter, got %d", buf.Total())
	}
}

package cli

import (
	"fmt"
	"strings"
	"testing"
)

func TestLogWriterKeepsRecentLines(t *testing.T) {
	w := NewLogWriter(3)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(w, "line %d\n", i)
	}

	got := w.Lines()
	want := []string{"line 3", "line 4", "line 5"}
	if len(got) != len(want) {
		t.Fatalf("Lines() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Lines()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLogWriterSplitsMultiLineWrites(t *testing.T) {
	w := NewLogWriter(10)
	n, err := w.Write([]byte("first\nsecond\nthird\n"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len("first\nsecond\nthird\n") {
		t.Fatalf("n = %d", n)
	}
	if got := w.Lines(); len(got) != 3 || got[1] != "second" {
		t.Fatalf("Lines() = %v", got)
	}
}

func TestLogWriterChannelNotifies(t *testing.T) {
	w := NewLogWriter(4)
	w.Write([]byte("hello\n"))
	select {
	case line := <-w.Channel():
		if line != "hello" {
			t.Fatalf("channel line = %q", line)
		}
	default:
		t.Fatal("no line on channel")
	}
}

func TestFrameHeightMatchesRender(t *testing.T) {
	frame := Frame{
		Styles: NewStyles(DefaultTheme),
		Title:  "TEST",
		Status: "running",
		Sections: []Section{
			{Label: "Stats", Lines: 2, Content: func() []string { return []string{"a", "b"} }},
			{Label: "Log", Lines: 3, Content: func() []string { return nil }},
		},
		Help: "q quits",
	}

	out := frame.Render(60)
	rows := strings.Count(out, "\n") + 1
	if rows != frame.Height() {
		t.Fatalf("rendered %d rows, Height() = %d", rows, frame.Height())
	}
}

func TestFrameSectionShowsLastLines(t *testing.T) {
	content := []string{"old 1", "old 2", "new 1", "new 2"}
	frame := Frame{
		Styles:   NewStyles(DefaultTheme),
		Title:    "T",
		Sections: []Section{{Label: "L", Lines: 2, Content: func() []string { return content }}},
	}

	out := frame.Render(40)
	if strings.Contains(out, "old 1") {
		t.Fatalf("overflowed line still rendered:\n%s", out)
	}
	for _, want := range []string{"new 1", "new 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFrameTruncatesWideContent(t *testing.T) {
	long := strings.Repeat("x", 200)
	frame := Frame{
		Styles:   NewStyles(DefaultTheme),
		Title:    "T",
		Sections: []Section{{Label: "L", Lines: 1, Content: func() []string { return []string{long} }}},
	}

	out := frame.Render(40)
	if !strings.Contains(out, "…") {
		t.Fatal("expected truncation ellipsis")
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "x") && strings.Count(line, "x") > 40 {
			t.Fatalf("line wider than frame: %q", line)
		}
	}
}

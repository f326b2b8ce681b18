package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/tokligence/streamledger/internal/history"
)

func TestPreview(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"line one\nline   two", 40, "line one line two"},
		{"abcdefghij", 8, "abcde..."},
		{"ünïcødé text", 6, "ünï..."},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := Preview(tc.in, tc.n); got != tc.want {
			t.Fatalf("Preview(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestHistoryTable(t *testing.T) {
	id := uuid.New()
	page := history.Page{Records: []history.Record{{
		ID:        id,
		Prompt:    "what is go",
		Response:  "Echo: what is go\nThis is a simulated streaming response.",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}, Total: 1, Limit: 10}
	out := HistoryTable(page, 30)
	if !strings.Contains(out, "PROMPT") || !strings.Contains(out, id.String()) {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if strings.Contains(out, "\nThis is") {
		t.Fatalf("response should be flattened:\n%s", out)
	}
}

func TestPrinterWritesToDestination(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Success("saved %d", 1)
	p.Error("failed")
	if buf.String() != "✓ saved 1\n✗ failed\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

package ui

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/tokligence/streamledger/internal/history"
)

var (
	// Color definitions for terminal output
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
)

// Printer writes decorated messages to one destination.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Success(format string, args ...any) {
	successColor.Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func (p *Printer) Error(format string, args ...any) {
	errorColor.Fprintf(p.w, "✗ %s\n", fmt.Sprintf(format, args...))
}

func (p *Printer) Warning(format string, args ...any) {
	warningColor.Fprintf(p.w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...any) {
	infoColor.Fprintf(p.w, "ℹ %s\n", fmt.Sprintf(format, args...))
}

func (p *Printer) Bold(format string, args ...any) {
	boldColor.Fprintln(p.w, fmt.Sprintf(format, args...))
}

// HistoryTable renders a page of conversations, one row per record.
func HistoryTable(page history.Page, width int) string {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = false
	table.AddRow("ID", "CREATED", "PROMPT", "RESPONSE")
	for _, rec := range page.Records {
		table.AddRow(
			rec.ID.String(),
			rec.CreatedAt.Local().Format(time.DateTime),
			Preview(rec.Prompt, width),
			Preview(rec.Response, width),
		)
	}
	return table.String()
}

// RecordDetail renders one conversation in full.
func RecordDetail(rec history.Record) string {
	table := uitable.New()
	table.Wrap = true
	table.MaxColWidth = 100
	table.AddRow("ID:", rec.ID.String())
	table.AddRow("Created:", rec.CreatedAt.Local().Format(time.RFC3339))
	table.AddRow("Prompt:", rec.Prompt)
	table.AddRow("Response:", rec.Response)
	return table.String()
}

// Preview flattens whitespace and cuts s to at most n runes.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mschirtzinger/daysync/internal/cloud"
	"github.com/mschirtzinger/daysync/internal/schema"
)

// previewWidth caps the content column of TodoTable.
const previewWidth = 48

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
// Newlines are flattened.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return boldStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// ShortID returns the first block of a UUID.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// TodoTable renders records as a table, one row per record.
func TodoTable(records []schema.TaskRecord) string {
	if len(records) == 0 {
		return RenderMuted("No todos.")
	}
	t := newTable("ID", "DATE", "TITLE", "CONTENT")
	for _, r := range records {
		t.Row(ShortID(r.ID), r.Date, Truncate(r.Title, 32), Truncate(r.Content, previewWidth))
	}
	return t.Render()
}

// TodoDetail renders one record in full.
func TodoDetail(r schema.TaskRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", RenderBold(r.Title))
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("id:"), r.ID)
	fmt.Fprintf(&b, "%s %s\n", RenderMuted("date:"), r.Date)
	fmt.Fprintf(&b, "%s %s\n\n", RenderMuted("created:"), r.CreatedAt)
	b.WriteString(r.Content)
	if !strings.HasSuffix(r.Content, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// RemoteTable renders a provider listing.
func RemoteTable(files []cloud.RemoteFile) string {
	if len(files) == 0 {
		return RenderMuted("No remote backups.")
	}
	t := newTable("NAME", "UPDATED", "ID")
	for _, f := range files {
		t.Row(f.Name, f.UpdatedAt, f.ID)
	}
	return t.Render()
}

// KeyValues renders aligned label/value lines in order.
func KeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if n := utf8.RuneCountInString(p[0]); n > width {
			width = n
		}
	}
	var b strings.Builder
	for _, p := range pairs {
		label := p[0] + ":" + strings.Repeat(" ", width-utf8.RuneCountInString(p[0]))
		fmt.Fprintf(&b, "%s %s\n", RenderMuted(label), p[1])
	}
	return b.String()
}

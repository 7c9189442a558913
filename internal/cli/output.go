package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/runoshun/tracker/internal/domain"
)

// Status colors.
var statusStyles = map[domain.Status]lipgloss.Style{
	domain.StatusNew:        lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")),
	domain.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")),
	domain.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
}

func renderStatus(s domain.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}

// printItems writes items as a table.
func printItems(w io.Writer, items []*domain.Item) error {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "No items found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tSTART\tDURATION\tEPIC\tNAME")
	for _, it := range items {
		epic := "-"
		if it.Kind == domain.KindSubtask && it.EpicID != 0 {
			epic = fmt.Sprintf("#%d", it.EpicID)
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID,
			it.Kind.Slug(),
			renderStatus(it.Status),
			formatStart(it),
			formatDuration(it),
			epic,
			it.Name,
		)
	}
	return tw.Flush()
}

// printItem writes one item in detail.
func printItem(w io.Writer, it *domain.Item) {
	_, _ = fmt.Fprintf(w, "#%d %s\n", it.ID, it.Name)
	_, _ = fmt.Fprintf(w, "  Type:     %s\n", it.Kind.Slug())
	_, _ = fmt.Fprintf(w, "  Status:   %s\n", renderStatus(it.Status))
	_, _ = fmt.Fprintf(w, "  Start:    %s\n", formatStart(it))
	_, _ = fmt.Fprintf(w, "  Duration: %s\n", formatDuration(it))
	if end, ok := it.EndTime(); ok {
		_, _ = fmt.Fprintf(w, "  End:      %s\n", domain.FormatStart(end))
	}
	switch it.Kind {
	case domain.KindSubtask:
		if it.EpicID != 0 {
			_, _ = fmt.Fprintf(w, "  Epic:     #%d\n", it.EpicID)
		}
	case domain.KindEpic:
		ids := make([]string, 0, len(it.Subtasks))
		for _, id := range it.Subtasks {
			ids = append(ids, fmt.Sprintf("#%d", id))
		}
		_, _ = fmt.Fprintf(w, "  Subtasks: [%s]\n", strings.Join(ids, ", "))
	case domain.KindTask:
	}
	if it.Description != "" {
		_, _ = fmt.Fprintln(w)
		for _, line := range strings.Split(it.Description, "\n") {
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func formatStart(it *domain.Item) string {
	if !it.HasStart() {
		return "-"
	}
	return domain.FormatStart(it.Start)
}

func formatDuration(it *domain.Item) string {
	if it.Duration == 0 && !it.HasStart() {
		return "-"
	}
	return it.Duration.String()
}

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/prdeck/prdeck/internal/inbox"
)

const maxTitleWidth = 34

var columnOrder = []inbox.Column{
	inbox.ColumnInbox,
	inbox.ColumnNeedsAttention,
	inbox.ColumnReviewed,
	inbox.ColumnDone,
}

var columnLabels = map[inbox.Column]string{
	inbox.ColumnInbox:          "Inbox",
	inbox.ColumnNeedsAttention: "Needs attention",
	inbox.ColumnReviewed:       "Reviewed",
	inbox.ColumnDone:           "Done",
}

// RenderBoard draws the four-column review board from a state snapshot.
func RenderBoard(state *inbox.State) string {
	byColumn := map[inbox.Column][]inbox.PR{}
	for _, pr := range state.PRs {
		byColumn[pr.Column] = append(byColumn[pr.Column], pr)
	}

	columns := make([]string, 0, len(columnOrder))
	for _, col := range columnOrder {
		columns = append(columns, renderColumn(col, byColumn[col]))
	}

	header := TitleStyle.Render("prdeck")
	if state.LastPollAt != nil {
		header += DimStyle.Render("  last poll " + state.LastPollAt.Local().Format("15:04:05"))
	} else {
		header += DimStyle.Render("  never polled")
	}
	board := lipgloss.JoinHorizontal(lipgloss.Top, columns...)
	return lipgloss.JoinVertical(lipgloss.Left, header, board)
}

func renderColumn(col inbox.Column, prs []inbox.PR) string {
	label := columnLabels[col]
	title := HeaderStyle.Render(fmt.Sprintf("%s (%d)", label, len(prs)))
	if col == inbox.ColumnNeedsAttention && len(prs) > 0 {
		title = AttnStyle.Render(fmt.Sprintf("%s (%d)", label, len(prs)))
	}

	lines := []string{title}
	if len(prs) == 0 {
		lines = append(lines, DimStyle.Render("  (empty)"))
	}
	for _, pr := range prs {
		lines = append(lines, renderCard(pr)...)
	}
	return ColumnStyle.Render(strings.Join(lines, "\n"))
}

func renderCard(pr inbox.PR) []string {
	ref := fmt.Sprintf("%s/%s#%d", pr.Owner, pr.Repo, pr.Number)
	title := Truncate(pr.Title, maxTitleWidth)
	author := ""
	if pr.Author != "" {
		author = DimStyle.Render("@" + pr.Author)
	}
	return []string{
		OKStyle.Render(ref) + " " + author,
		"  " + title,
	}
}

// Truncate shortens text to maxLen, ANSI-aware, appending an ellipsis.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if lipgloss.Width(text) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return lipgloss.NewStyle().MaxWidth(maxLen).Render(text)
	}
	return lipgloss.NewStyle().MaxWidth(maxLen-3).Render(text) + "..."
}

// RenderSources draws the source registry as a flat list.
func RenderSources(sources []inbox.Source) string {
	if len(sources) == 0 {
		return DimStyle.Render("no sources configured")
	}
	lines := make([]string, 0, len(sources))
	for _, src := range sources {
		state := OKStyle.Render("enabled")
		if !src.Enabled {
			state = DimStyle.Render("disabled")
		}
		detail := src.Query
		if src.Kind == inbox.SourceKindChannel {
			detail = "#" + src.ChannelName
		}
		lines = append(lines, fmt.Sprintf("%s  %s  %s  %s",
			DimStyle.Render(src.ID), TitleStyle.Render(src.Name), state, detail))
	}
	return strings.Join(lines, "\n")
}

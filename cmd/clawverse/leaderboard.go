package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"clawverse.ai/internal/wiki"
)

var leaderboardTop int

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the wiki contribution leaderboard",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		store, _, err := openWikiStore(dataDir, nil, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		lb, err := store.Leaderboard(cmd.Context())
		if err != nil {
			return err
		}
		cats, err := store.Categories(cmd.Context())
		if err != nil {
			return err
		}
		renderLeaderboard(cmd.OutOrStdout(), lb, cats, leaderboardTop)
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().IntVarP(&leaderboardTop, "top", "n", 10, "rows to show")
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func renderLeaderboard(w io.Writer, lb []wiki.LeaderboardEntry, cats []wiki.CategoryCount, top int) {
	if top > 0 && len(lb) > top {
		lb = lb[:top]
	}
	rows := make([][]string, 0, len(lb))
	for i, e := range lb {
		rows = append(rows, []string{strconv.Itoa(i + 1), e.AuthorID, strconv.Itoa(e.Count), strconv.Itoa(e.Karma)})
	}
	fmt.Fprint(w, renderTable("Top contributors", []string{"#", "Author", "Articles", "Karma"}, rows))

	rows = rows[:0]
	for _, c := range cats {
		rows = append(rows, []string{c.Name, strconv.Itoa(c.Count)})
	}
	fmt.Fprint(w, renderTable("Categories", []string{"Category", "Articles"}, rows))
}

func renderTable(title string, headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title))
	sb.WriteString("\n")
	if len(rows) == 0 {
		sb.WriteString(mutedStyle.Render("(empty)"))
		sb.WriteString("\n\n")
		return sb.String()
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}
	// Padding counts toward lipgloss widths.
	total := len(headers) - 1
	for i := range widths {
		widths[i] += 2
		total += widths[i]
	}

	sep := mutedStyle.Render("|")
	for i, h := range headers {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(headerStyle.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString(sep)
			}
			sb.WriteString(cellStyle.Width(widths[i]).Render(cell))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

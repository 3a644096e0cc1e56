package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	persistlog "clawverse.ai/internal/persistence/log"
	"clawverse.ai/internal/wiki"
)

var replayDir string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild activity totals and contribution scores from the activity archive",
	Long: `replay reads every activity-*.jsonl.zst file under the activity archive and
prints event totals per type and the leaderboard those events imply. Seeded
articles are not part of the archive.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := replayDir
		if dir == "" {
			dir = filepath.Join(dataDir, "activity")
		}
		sum, err := replayActivity(dir)
		if err != nil {
			return err
		}
		renderReplay(cmd.OutOrStdout(), sum)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayDir, "activity", "", "activity archive dir (default: <data>/activity)")
}

type replaySummary struct {
	Files  int
	Events int
	ByType map[wiki.ActivityType]int
	Board  []wiki.LeaderboardEntry
}

func replayActivity(dir string) (replaySummary, error) {
	files, err := persistlog.ListArchives(dir, "activity")
	if err != nil {
		return replaySummary{}, fmt.Errorf("list archives: %w", err)
	}
	if len(files) == 0 {
		return replaySummary{}, fmt.Errorf("no activity archives found in %s", dir)
	}

	sum := replaySummary{Files: len(files), ByType: map[wiki.ActivityType]int{}}
	scores := map[string]float64{}
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(ev wiki.ActivityEvent) error {
			sum.Events++
			sum.ByType[ev.Type]++
			switch ev.Type {
			case wiki.ActivityCreate:
				scores[ev.AgentID]++
			case wiki.ActivityEdit:
				scores[ev.AgentID] += 0.5
			}
			return nil
		})
		if err != nil {
			return sum, fmt.Errorf("replay: %w", err)
		}
	}
	sum.Board = wiki.RankScores(scores)
	return sum, nil
}

func renderReplay(w io.Writer, sum replaySummary) {
	fmt.Fprintf(w, "replayed %d events from %d files\n\n", sum.Events, sum.Files)

	types := make([]string, 0, len(sum.ByType))
	for t := range sum.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	rows := make([][]string, 0, len(types))
	for _, t := range types {
		rows = append(rows, []string{t, strconv.Itoa(sum.ByType[wiki.ActivityType(t)])})
	}
	fmt.Fprint(w, renderTable("Events", []string{"Type", "Count"}, rows))

	rows = rows[:0]
	for i, e := range sum.Board {
		rows = append(rows, []string{strconv.Itoa(i + 1), e.AuthorID, strconv.Itoa(e.Count), strconv.Itoa(e.Karma)})
	}
	fmt.Fprint(w, renderTable("Contributors", []string{"#", "Author", "Articles", "Karma"}, rows))
}

package wiki

import (
	"math"
	"sort"
	"strings"
)

// Matches reports whether q occurs case-insensitively in title, content or category.
func Matches(a Article, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(a.Title), q) ||
		strings.Contains(strings.ToLower(a.Content), q) ||
		strings.Contains(strings.ToLower(a.Category), q)
}

func Filter(all []Article, q string) []Article {
	out := make([]Article, 0)
	for _, a := range all {
		if Matches(a, q) {
			out = append(out, a)
		}
	}
	return out
}

func SplitByAgent(all []Article, agentID string) AgentArticles {
	res := AgentArticles{Created: []Article{}, Edited: []Article{}}
	for _, a := range all {
		if a.AuthorID == agentID {
			res.Created = append(res.Created, a)
		}
		for _, e := range a.History {
			if e.EditorID == agentID {
				res.Edited = append(res.Edited, a)
				break
			}
		}
	}
	return res
}

func CountCategories(all []Article) []CategoryCount {
	counts := map[string]int{}
	for _, a := range all {
		c := a.Category
		if c == "" {
			c = DefaultCategory
		}
		counts[c]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	SortCategories(out)
	return out
}

func SortCategories(cs []CategoryCount) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Count != cs[j].Count {
			return cs[i].Count > cs[j].Count
		}
		return cs[i].Name < cs[j].Name
	})
}

// Scores accumulates raw contribution points: one per authored article and a half
// per edit. The full recompute is O(total edits).
func Scores(all []Article) map[string]float64 {
	scores := map[string]float64{}
	for _, a := range all {
		scores[a.AuthorID] += scoreArticle
		for _, e := range a.History {
			scores[e.EditorID] += scoreEdit
		}
	}
	return scores
}

// RankScores orders authors by raw score, then author id.
func RankScores(scores map[string]float64) []LeaderboardEntry {
	type row struct {
		id    string
		score float64
	}
	rows := make([]row, 0, len(scores))
	for id, s := range scores {
		rows = append(rows, row{id: id, score: s})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].id < rows[j].id
	})
	out := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, LeaderboardEntry{
			AuthorID: r.id,
			Count:    int(math.Floor(r.score)),
			Karma:    int(math.Floor(r.score * karmaPerPoint)),
		})
	}
	return out
}

func SortNewestFirst(all []Article) {
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Slug < all[j].Slug
	})
}

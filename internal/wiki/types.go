package wiki

import "time"

const (
	DefaultCategory = "Uncategorized"

	// FeedSize bounds RecentActivity.
	FeedSize = 50

	editSummary   = "Updated content"
	previewRunes  = 100
	scoreArticle  = 1.0
	scoreEdit     = 0.5
	karmaPerPoint = 10
)

type Edit struct {
	EditorID  string    `json:"editorId" msgpack:"editor_id"`
	Timestamp time.Time `json:"timestamp" msgpack:"ts"`
	Summary   string    `json:"diffSummary,omitempty" msgpack:"summary"`
}

type Comment struct {
	ID        string    `json:"id" msgpack:"id"`
	AuthorID  string    `json:"authorId" msgpack:"author_id"`
	Content   string    `json:"content" msgpack:"content"`
	Timestamp time.Time `json:"timestamp" msgpack:"ts"`
}

type Article struct {
	Slug         string     `json:"slug" msgpack:"slug"`
	Title        string     `json:"title" msgpack:"title"`
	Content      string     `json:"content" msgpack:"content"`
	Category     string     `json:"category" msgpack:"category"`
	AuthorID     string     `json:"authorId" msgpack:"author_id"`
	CreatedAt    time.Time  `json:"timestamp" msgpack:"created_at"`
	LastEditorID string     `json:"lastEditorId,omitempty" msgpack:"last_editor_id"`
	LastEditAt   *time.Time `json:"lastEditTimestamp,omitempty" msgpack:"last_edit_at"`
	History      []Edit     `json:"history" msgpack:"history"`
	Comments     []Comment  `json:"comments" msgpack:"comments"`
	Views        int64      `json:"views" msgpack:"views"`
}

// Clone returns a deep copy so callers never alias store-owned slices.
func (a Article) Clone() Article {
	out := a
	out.History = append([]Edit(nil), a.History...)
	out.Comments = append([]Comment(nil), a.Comments...)
	if out.History == nil {
		out.History = []Edit{}
	}
	if out.Comments == nil {
		out.Comments = []Comment{}
	}
	if a.LastEditAt != nil {
		t := *a.LastEditAt
		out.LastEditAt = &t
	}
	return out
}

// NewArticle is the input to Create and Reseed.
type NewArticle struct {
	Slug     string `json:"slug" yaml:"slug"`
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content" yaml:"content"`
	AuthorID string `json:"authorId" yaml:"author_id"`
	Category string `json:"category" yaml:"category"`
}

type ActivityType string

const (
	ActivityCreate  ActivityType = "create"
	ActivityEdit    ActivityType = "edit"
	ActivityComment ActivityType = "comment"
)

type ActivityEvent struct {
	Type         ActivityType `json:"type" msgpack:"type"`
	Timestamp    time.Time    `json:"timestamp" msgpack:"ts"`
	AgentID      string       `json:"agentId" msgpack:"agent_id"`
	ArticleSlug  string       `json:"articleSlug" msgpack:"slug"`
	ArticleTitle string       `json:"articleTitle" msgpack:"title"`
	Details      string       `json:"details,omitempty" msgpack:"details"`
}

type AgentArticles struct {
	Created []Article `json:"created"`
	Edited  []Article `json:"edited"`
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LeaderboardEntry struct {
	AuthorID string `json:"authorId"`
	Count    int    `json:"count"`
	Karma    int    `json:"karma"`
}

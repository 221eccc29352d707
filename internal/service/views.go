package service

import (
	"time"

	"feedreader/internal/model"
)

// BlogView is the external representation of a blog.
type BlogView struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	URL            string     `json:"url"`
	FeedURL        *string    `json:"feed_url"`
	ScrapeSelector *string    `json:"scrape_selector"`
	Mode           string     `json:"mode"`
	LastScanned    *time.Time `json:"last_scanned"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BlogSummaryView is a blog with its article counters.
type BlogSummaryView struct {
	BlogView
	TotalArticles  int `json:"total_articles"`
	UnreadArticles int `json:"unread_articles"`
}

// ArticleView is the external representation of an article.
type ArticleView struct {
	ID             int64      `json:"id"`
	BlogID         int64      `json:"blog_id"`
	BlogName       string     `json:"blog_name"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	PublishedDate  *time.Time `json:"published_date"`
	DiscoveredDate time.Time  `json:"discovered_date"`
	IsRead         bool       `json:"is_read"`
}

func newBlogView(b model.Blog) BlogView {
	return BlogView{
		ID:             b.ID,
		Name:           b.Name,
		URL:            b.URL,
		FeedURL:        optional(b.FeedURL),
		ScrapeSelector: optional(b.ScrapeSelector),
		Mode:           b.Mode().Kind.String(),
		LastScanned:    b.LastScanned,
		CreatedAt:      b.CreatedAt,
	}
}

func newBlogSummaryView(b model.BlogSummary) BlogSummaryView {
	return BlogSummaryView{
		BlogView:       newBlogView(b.Blog),
		TotalArticles:  b.TotalArticles,
		UnreadArticles: b.UnreadArticles,
	}
}

func newArticleView(a model.Article) ArticleView {
	return ArticleView(a)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"feedreader/internal/model"
)

// ErrNotFound is returned when a blog or article does not exist.
var ErrNotFound = errors.New("not found")

// ArticleFilter narrows ListArticles and CountArticles.
// Since and Before compare against the published date, falling back to the discovered date.
type ArticleFilter struct {
	BlogName    string
	IncludeRead bool
	Limit       int
	Since       *time.Time
	Before      *time.Time
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateBlog(ctx context.Context, blog *model.Blog) error
	GetBlogByName(ctx context.Context, name string) (*model.Blog, error)
	ListBlogs(ctx context.Context) ([]model.BlogSummary, error)
	BlogNames(ctx context.Context) ([]string, error)
	RemoveBlog(ctx context.Context, name string) (int, error)
	TouchLastScanned(ctx context.Context, blogID int64, at time.Time) error

	FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	BulkInsertArticles(ctx context.Context, articles []model.Article) (int, error)
	ListArticles(ctx context.Context, f ArticleFilter) ([]model.Article, error)
	CountArticles(ctx context.Context, f ArticleFilter) (int, error)
	MarkRead(ctx context.Context, id int64) (*model.Article, error)
	MarkUnread(ctx context.Context, id int64) (*model.Article, error)
	MarkAllRead(ctx context.Context, blogName string) (int, error)

	Close() error
}

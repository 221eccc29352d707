// Package service implements the feed reader operations on top of storage, discovery and scanning.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"feedreader/internal/model"
	"feedreader/internal/scanner"
	"feedreader/internal/storage"
)

// DefaultLimit is the number of articles returned when no limit is given.
const DefaultLimit = 50

// Discoverer finds the feed URL for a homepage.
type Discoverer interface {
	Discover(ctx context.Context, homepage string) (string, bool)
}

// Scanner ingests new articles for a set of blogs.
type Scanner interface {
	Scan(ctx context.Context, blogs []model.Blog) scanner.Result
}

// ValidationError reports a malformed operation argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Service exposes the feed reader operations.
type Service struct {
	store      storage.Storage
	discoverer Discoverer
	scanner    Scanner
	log        *slog.Logger
	now        func() time.Time
}

// New creates a Service.
func New(store storage.Storage, d Discoverer, sc Scanner, log *slog.Logger) *Service {
	return &Service{
		store:      store,
		discoverer: d,
		scanner:    sc,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for relative date filters.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AddBlogInput holds the arguments of AddBlog.
type AddBlogInput struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	FeedURL        string `json:"feed_url"`
	ScrapeSelector string `json:"scrape_selector"`
}

// AddBlogResult is returned by AddBlog.
type AddBlogResult struct {
	Blog           BlogView `json:"blog"`
	FeedDiscovered bool     `json:"feed_discovered"`
}

// AddBlog registers a blog. Without an explicit feed URL the feed is discovered from
// the homepage; when that fails a scrape selector is required.
func (s *Service) AddBlog(ctx context.Context, in AddBlogInput) (*AddBlogResult, error) {
	blog := model.Blog{
		Name:           strings.TrimSpace(in.Name),
		URL:            normalizeURL(in.URL),
		FeedURL:        normalizeURL(in.FeedURL),
		ScrapeSelector: strings.TrimSpace(in.ScrapeSelector),
	}
	if blog.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if blog.URL == "" {
		return nil, &ValidationError{Field: "url", Reason: "must not be empty"}
	}

	// Fail fast on a taken name before spending time on discovery.
	if _, err := s.store.GetBlogByName(ctx, blog.Name); err == nil {
		return nil, &model.DuplicateError{Field: "name", Value: blog.Name}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check blog name: %w", err)
	}

	discovered := false
	if blog.FeedURL == "" {
		if feedURL, ok := s.discoverer.Discover(ctx, blog.URL); ok {
			blog.FeedURL = feedURL
			discovered = true
		} else if blog.ScrapeSelector == "" {
			return nil, &model.DiscoveryFailedError{URL: blog.URL}
		}
	}

	if err := s.store.CreateBlog(ctx, &blog); err != nil {
		return nil, err
	}
	s.log.Info("blog added", "blog", blog.Name, "mode", blog.Mode().Kind, "feed_discovered", discovered)
	return &AddBlogResult{Blog: newBlogView(blog), FeedDiscovered: discovered}, nil
}

// RemoveBlogResult is returned by RemoveBlog.
type RemoveBlogResult struct {
	Name            string `json:"name"`
	ArticlesDeleted int    `json:"articles_deleted"`
	Message         string `json:"message"`
}

// RemoveBlog deletes a blog and all of its articles.
func (s *Service) RemoveBlog(ctx context.Context, name string) (*RemoveBlogResult, error) {
	n, err := s.store.RemoveBlog(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, s.blogNotFound(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("remove blog: %w", err)
	}
	s.log.Info("blog removed", "blog", name, "articles_deleted", n)
	return &RemoveBlogResult{
		Name:            name,
		ArticlesDeleted: n,
		Message:         fmt.Sprintf("Removed blog %q and %d articles", name, n),
	}, nil
}

// ListBlogsResult is returned by ListBlogs.
type ListBlogsResult struct {
	Count       int               `json:"count"`
	TotalUnread int               `json:"total_unread"`
	Blogs       []BlogSummaryView `json:"blogs"`
}

// ListBlogs returns every blog with its article counters.
func (s *Service) ListBlogs(ctx context.Context) (*ListBlogsResult, error) {
	blogs, err := s.store.ListBlogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	views := lo.Map(blogs, func(b model.BlogSummary, _ int) BlogSummaryView { return newBlogSummaryView(b) })
	return &ListBlogsResult{
		Count:       len(views),
		TotalUnread: lo.SumBy(blogs, func(b model.BlogSummary) int { return b.UnreadArticles }),
		Blogs:       views,
	}, nil
}

// ScanBlogs scans one blog by name, or every blog when name is empty.
func (s *Service) ScanBlogs(ctx context.Context, name string) (*scanner.Result, error) {
	var blogs []model.Blog
	if name != "" {
		blog, err := s.store.GetBlogByName(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.blogNotFound(ctx, name)
		}
		if err != nil {
			return nil, fmt.Errorf("get blog: %w", err)
		}
		blogs = []model.Blog{*blog}
	} else {
		summaries, err := s.store.ListBlogs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blogs: %w", err)
		}
		blogs = lo.Map(summaries, func(b model.BlogSummary, _ int) model.Blog { return b.Blog })
	}

	res := s.scanner.Scan(ctx, blogs)
	return &res, nil
}

// ListArticlesInput holds the arguments of ListArticles. Since and Before accept a
// date, a date-time without zone (read as UTC) or RFC 3339. Days, when positive,
// replaces Since with now minus that many days.
type ListArticlesInput struct {
	BlogName    string `json:"blog_name"`
	IncludeRead bool   `json:"include_read"`
	Limit       int    `json:"limit"`
	Since       string `json:"since"`
	Before      string `json:"before"`
	Days        int    `json:"days"`
}

// AppliedFilters echoes the filters ListArticles actually used.
type AppliedFilters struct {
	BlogName    *string    `json:"blog_name"`
	IncludeRead bool       `json:"include_read"`
	Limit       int        `json:"limit"`
	Days        *int       `json:"days"`
	Since       *time.Time `json:"since"`
	Before      *time.Time `json:"before"`
}

// ListArticlesResult is returned by ListArticles. Total counts every match, ignoring the limit.
type ListArticlesResult struct {
	Count    int            `json:"count"`
	Total    int            `json:"total"`
	Filters  AppliedFilters `json:"filters_applied"`
	Articles []ArticleView  `json:"articles"`
}

// ListArticles returns articles newest first.
func (s *Service) ListArticles(ctx context.Context, in ListArticlesInput) (*ListArticlesResult, error) {
	f := storage.ArticleFilter{
		BlogName:    strings.TrimSpace(in.BlogName),
		IncludeRead: in.IncludeRead,
		Limit:       in.Limit,
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if in.Days < 0 {
		return nil, &ValidationError{Field: "days", Reason: "must not be negative"}
	}

	var err error
	if in.Days > 0 {
		since := s.now().UTC().Add(-time.Duration(in.Days) * 24 * time.Hour)
		f.Since = &since
	} else if f.Since, err = parseDate("since", in.Since); err != nil {
		return nil, err
	}
	if f.Before, err = parseDate("before", in.Before); err != nil {
		return nil, err
	}

	if f.BlogName != "" {
		if _, err := s.store.GetBlogByName(ctx, f.BlogName); errors.Is(err, storage.ErrNotFound) {
			return nil, s.blogNotFound(ctx, f.BlogName)
		} else if err != nil {
			return nil, fmt.Errorf("get blog: %w", err)
		}
	}

	articles, err := s.store.ListArticles(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	total, err := s.store.CountArticles(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}

	filters := AppliedFilters{
		IncludeRead: f.IncludeRead,
		Limit:       f.Limit,
		Since:       f.Since,
		Before:      f.Before,
	}
	if f.BlogName != "" {
		filters.BlogName = &f.BlogName
	}
	if in.Days > 0 {
		filters.Days = &in.Days
	}

	return &ListArticlesResult{
		Count:    len(articles),
		Total:    total,
		Filters:  filters,
		Articles: lo.Map(articles, func(a model.Article, _ int) ArticleView { return newArticleView(a) }),
	}, nil
}

// MarkArticleRead marks a single article as read.
func (s *Service) MarkArticleRead(ctx context.Context, id int64) (*ArticleView, error) {
	return s.setRead(ctx, id, s.store.MarkRead)
}

// MarkArticleUnread marks a single article as unread.
func (s *Service) MarkArticleUnread(ctx context.Context, id int64) (*ArticleView, error) {
	return s.setRead(ctx, id, s.store.MarkUnread)
}

func (s *Service) setRead(ctx context.Context, id int64, mark func(context.Context, int64) (*model.Article, error)) (*ArticleView, error) {
	if id <= 0 {
		return nil, &ValidationError{Field: "article_id", Reason: "must be a positive integer"}
	}
	a, err := mark(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &model.NotFoundError{Entity: "article", Key: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}
	v := newArticleView(*a)
	return &v, nil
}

// MarkAllReadResult is returned by MarkAllRead.
type MarkAllReadResult struct {
	ArticlesMarkedRead int     `json:"articles_marked_read"`
	BlogFilter         *string `json:"blog_filter"`
}

// MarkAllRead marks every unread article as read, optionally limited to one blog.
func (s *Service) MarkAllRead(ctx context.Context, blogName string) (*MarkAllReadResult, error) {
	n, err := s.store.MarkAllRead(ctx, blogName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, s.blogNotFound(ctx, blogName)
	}
	if err != nil {
		return nil, fmt.Errorf("mark all read: %w", err)
	}
	res := &MarkAllReadResult{ArticlesMarkedRead: n}
	if blogName != "" {
		res.BlogFilter = &blogName
	}
	return res, nil
}

// blogNotFound builds a NotFoundError listing the blogs that do exist.
func (s *Service) blogNotFound(ctx context.Context, name string) error {
	known, err := s.store.BlogNames(ctx)
	if err != nil {
		s.log.Warn("list blog names", "error", err)
	}
	return &model.NotFoundError{Entity: "blog", Key: name, Known: known}
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + raw
	}
	return raw
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%q is not a date; use 2025-01-01 or 2025-01-01T00:00:00", raw),
	}
}

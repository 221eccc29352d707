// Package scanner pulls new articles for a set of blogs and stores the unseen ones.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"feedreader/internal/feedparser"
	"feedreader/internal/fetcher"
	"feedreader/internal/model"
	"feedreader/internal/scraper"
	"feedreader/internal/storage"
)

// DefaultConcurrency is the number of blogs scanned at once when none is configured.
const DefaultConcurrency = 4

// Error kinds recorded in BlogError.
const (
	KindNotConfigured = "not_configured"
	KindFetch         = "fetch_failed"
	KindParse         = "parse_failed"
	KindScrape        = "scrape_failed"
	KindStorage       = "storage_failed"
	KindTimeout       = "timeout"
)

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

// BlogResult is the outcome of scanning a single blog.
type BlogResult struct {
	Blog        string `json:"blog"`
	Mode        string `json:"mode"`
	Found       int    `json:"found"`
	NewArticles int    `json:"new_articles"`
	Error       string `json:"error,omitempty"`
}

// BlogError describes why a blog could not be scanned.
type BlogError struct {
	Blog    string `json:"blog"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result aggregates a scan. PerBlog follows the order of the input blogs.
type Result struct {
	Scanned     int          `json:"scanned"`
	NewArticles int          `json:"new_articles"`
	PerBlog     []BlogResult `json:"per_blog"`
	Errors      []BlogError  `json:"errors"`
}

// Scanner fetches, parses and deduplicates articles for blogs.
type Scanner struct {
	store       storage.Storage
	fetcher     Fetcher
	log         *slog.Logger
	concurrency int
	now         func() time.Time
}

// New creates a Scanner. A non-positive concurrency selects DefaultConcurrency.
func New(store storage.Storage, f Fetcher, concurrency int, log *slog.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scanner{
		store:       store,
		fetcher:     f,
		log:         log,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for discovered and last-scanned timestamps.
func (s *Scanner) SetClock(now func() time.Time) {
	s.now = now
}

type outcome struct {
	result BlogResult
	err    *BlogError
}

// Scan processes every blog with bounded parallelism. It never fails as a whole;
// per-blog failures are reported in Result.Errors.
func (s *Scanner) Scan(ctx context.Context, blogs []model.Blog) Result {
	outcomes := make([]outcome, len(blogs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, blog := range blogs {
		g.Go(func() error {
			outcomes[i] = s.scanBlog(ctx, blog)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Scanned: len(blogs),
		PerBlog: make([]BlogResult, 0, len(blogs)),
		Errors:  []BlogError{},
	}
	for _, o := range outcomes {
		res.PerBlog = append(res.PerBlog, o.result)
		res.NewArticles += o.result.NewArticles
		if o.err != nil {
			res.Errors = append(res.Errors, *o.err)
		}
	}

	s.log.Info("scan finished", "scanned", res.Scanned, "new_articles", res.NewArticles, "errors", len(res.Errors))
	return res
}

func (s *Scanner) scanBlog(ctx context.Context, blog model.Blog) outcome {
	mode := blog.Mode()
	s.log.Debug("scanning blog", "blog", blog.Name, "mode", mode.Kind)

	if mode.Kind == model.ModeUnconfigured {
		return s.fail(blog, mode, KindNotConfigured, &model.NotConfiguredError{Blog: blog.Name})
	}

	entries, kind, err := s.collect(ctx, blog, mode)
	s.touch(ctx, blog)
	if err != nil {
		return s.fail(blog, mode, kind, err)
	}

	found, inserted, err := s.persist(ctx, blog, entries)
	if err != nil {
		o := s.fail(blog, mode, KindStorage, err)
		o.result.Found = found
		return o
	}

	if inserted > 0 {
		s.log.Info("new articles", "blog", blog.Name, "count", inserted)
	}
	return outcome{result: BlogResult{
		Blog:        blog.Name,
		Mode:        mode.Kind.String(),
		Found:       found,
		NewArticles: inserted,
	}}
}

// collect fetches the blog's source and turns it into entries.
func (s *Scanner) collect(ctx context.Context, blog model.Blog, mode model.IngestionMode) ([]model.Entry, string, error) {
	switch mode.Kind {
	case model.ModeFeed:
		page, err := s.fetcher.Fetch(ctx, mode.Target)
		if err != nil {
			return nil, KindFetch, err
		}
		entries, err := feedparser.Parse(page.Body, page.URL)
		if err != nil {
			return nil, KindParse, err
		}
		return entries, "", nil
	case model.ModeScrape:
		page, err := s.fetcher.Fetch(ctx, blog.URL)
		if err != nil {
			return nil, KindFetch, err
		}
		entries, err := scraper.Scrape(page.Body, mode.Target, page.URL)
		if err != nil {
			return nil, KindScrape, err
		}
		return entries, "", nil
	default:
		return nil, KindNotConfigured, &model.NotConfiguredError{Blog: blog.Name}
	}
}

// persist stores the entries whose URLs are not yet known. It returns the number of
// usable candidates and the number actually inserted.
func (s *Scanner) persist(ctx context.Context, blog model.Blog, entries []model.Entry) (int, int, error) {
	candidates := lo.UniqBy(
		lo.Filter(entries, func(e model.Entry, _ int) bool {
			return e.Title != "" && e.URL != ""
		}),
		func(e model.Entry) string { return e.URL },
	)
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	existing, err := s.store.FindExistingURLs(ctx, lo.Map(candidates, func(e model.Entry, _ int) string { return e.URL }))
	if err != nil {
		return len(candidates), 0, err
	}

	now := s.now()
	fresh := lo.FilterMap(candidates, func(e model.Entry, _ int) (model.Article, bool) {
		if _, seen := existing[e.URL]; seen {
			return model.Article{}, false
		}
		return model.Article{
			BlogID:         blog.ID,
			Title:          e.Title,
			URL:            e.URL,
			PublishedDate:  e.Published,
			DiscoveredDate: now,
		}, true
	})
	if len(fresh) == 0 {
		return len(candidates), 0, nil
	}

	inserted, err := s.store.BulkInsertArticles(ctx, fresh)
	if err != nil {
		return len(candidates), 0, err
	}
	return len(candidates), inserted, nil
}

func (s *Scanner) touch(ctx context.Context, blog model.Blog) {
	if err := s.store.TouchLastScanned(ctx, blog.ID, s.now()); err != nil {
		s.log.Error("update last scanned", "blog", blog.Name, "error", err)
	}
}

func (s *Scanner) fail(blog model.Blog, mode model.IngestionMode, kind string, err error) outcome {
	var fe *fetcher.FetchError
	if errors.As(err, &fe) && errors.Is(fe.Err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	s.log.Warn("scan failed", "blog", blog.Name, "kind", kind, "error", err)

	return outcome{
		result: BlogResult{
			Blog:  blog.Name,
			Mode:  mode.Kind.String(),
			Error: err.Error(),
		},
		err: &BlogError{Blog: blog.Name, Kind: kind, Message: err.Error()},
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedreader/internal/model"
	"feedreader/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// maxQueryParams keeps IN (...) lists well below SQLite's host parameter limit.
const maxQueryParams = 500

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
//
// The pool is limited to one connection: SQLite allows a single writer and
// ":memory:" databases are per-connection.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := migrations.Run(db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateBlog inserts a new blog and populates its ID and CreatedAt.
func (s *SQLite) CreateBlog(ctx context.Context, blog *model.Blog) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO blogs (name, url, feed_url, scrape_selector, created_at) VALUES (?, ?, ?, ?, ?)`,
		blog.Name, blog.URL, nullString(blog.FeedURL), nullString(blog.ScrapeSelector), now,
	)
	if err != nil {
		if dup := duplicateBlogError(err, blog); dup != nil {
			return dup
		}
		return fmt.Errorf("insert blog: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	blog.ID = id
	blog.CreatedAt = parseTime(now)
	return nil
}

// GetBlogByName returns a single blog by its exact name.
func (s *SQLite) GetBlogByName(ctx context.Context, name string) (*model.Blog, error) {
	var row dbBlog
	err := s.db.GetContext(ctx, &row,
		`SELECT id, name, url, feed_url, scrape_selector, last_scanned, created_at
		 FROM blogs WHERE name = ?`, name,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blog: %w", err)
	}
	blog := row.toModel()
	return &blog, nil
}

// ListBlogs returns every blog with its total and unread article counts, ordered by name.
func (s *SQLite) ListBlogs(ctx context.Context) ([]model.BlogSummary, error) {
	var rows []dbBlogSummary
	err := s.db.SelectContext(ctx, &rows,
		`SELECT b.id, b.name, b.url, b.feed_url, b.scrape_selector, b.last_scanned, b.created_at,
		        COUNT(a.id) AS total_articles,
		        COALESCE(SUM(CASE WHEN a.is_read = 0 THEN 1 ELSE 0 END), 0) AS unread_articles
		 FROM blogs b
		 LEFT JOIN articles a ON a.blog_id = b.id
		 GROUP BY b.id
		 ORDER BY b.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query blogs: %w", err)
	}
	return lo.Map(rows, func(r dbBlogSummary, _ int) model.BlogSummary {
		return model.BlogSummary{
			Blog:           r.toModel(),
			TotalArticles:  r.TotalArticles,
			UnreadArticles: r.UnreadArticles,
		}
	}), nil
}

// BlogNames returns all blog names in alphabetical order.
func (s *SQLite) BlogNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM blogs ORDER BY name`); err != nil {
		return nil, fmt.Errorf("query blog names: %w", err)
	}
	return names, nil
}

// RemoveBlog deletes a blog and all of its articles, returning how many articles were removed.
func (s *SQLite) RemoveBlog(ctx context.Context, name string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.GetContext(ctx, &id, `SELECT id FROM blogs WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find blog: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE blog_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete articles: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM blogs WHERE id = ?`, id); err != nil {
		return 0, fmt.Errorf("delete blog: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(deleted), nil
}

// TouchLastScanned records the time of a scan attempt.
func (s *SQLite) TouchLastScanned(ctx context.Context, blogID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE blogs SET last_scanned = ? WHERE id = ?`, formatTime(at), blogID,
	)
	if err != nil {
		return fmt.Errorf("update last scanned: %w", err)
	}
	return nil
}

// FindExistingURLs returns the subset of urls already stored for any blog.
// Lookups are split into chunks so arbitrarily large candidate sets are fully checked.
func (s *SQLite) FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, chunk := range lo.Chunk(lo.Uniq(urls), maxQueryParams) {
		query, args, err := sqlx.In(`SELECT url FROM articles WHERE url IN (?)`, chunk)
		if err != nil {
			return nil, fmt.Errorf("build url query: %w", err)
		}
		var found []string
		if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("query existing urls: %w", err)
		}
		for _, u := range found {
			existing[u] = struct{}{}
		}
	}
	return existing, nil
}

// BulkInsertArticles inserts articles in one transaction. Rows whose URL already
// exists are ignored; the returned count covers only rows actually inserted.
func (s *SQLite) BulkInsertArticles(ctx context.Context, articles []model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT OR IGNORE INTO articles (blog_id, title, url, published_date, discovered_date, is_read)
		 VALUES (?, ?, ?, ?, ?, 0)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, a := range articles {
		res, err := stmt.ExecContext(ctx,
			a.BlogID, a.Title, a.URL, nullTime(a.PublishedDate), formatTime(a.DiscoveredDate),
		)
		if err != nil {
			return 0, fmt.Errorf("insert article %s: %w", a.URL, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ListArticles returns articles matching f, newest first, bounded by f.Limit.
func (s *SQLite) ListArticles(ctx context.Context, f ArticleFilter) ([]model.Article, error) {
	where, args := f.where()
	query := articleSelect + where +
		` ORDER BY COALESCE(a.published_date, a.discovered_date) DESC, a.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var rows []dbArticle
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	return lo.Map(rows, func(r dbArticle, _ int) model.Article { return r.toModel() }), nil
}

// CountArticles returns how many articles match f, ignoring f.Limit.
func (s *SQLite) CountArticles(ctx context.Context, f ArticleFilter) (int, error) {
	where, args := f.where()
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM articles a JOIN blogs b ON b.id = a.blog_id`+where, args...,
	)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// MarkRead sets is_read on an article and returns the updated row.
func (s *SQLite) MarkRead(ctx context.Context, id int64) (*model.Article, error) {
	return s.setRead(ctx, id, true)
}

// MarkUnread clears is_read on an article and returns the updated row.
func (s *SQLite) MarkUnread(ctx context.Context, id int64) (*model.Article, error) {
	return s.setRead(ctx, id, false)
}

func (s *SQLite) setRead(ctx context.Context, id int64, read bool) (*model.Article, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE articles SET is_read = ? WHERE id = ?`, boolToInt(read), id); err != nil {
		return nil, fmt.Errorf("update article: %w", err)
	}

	var row dbArticle
	err = tx.GetContext(ctx, &row, articleSelect+` WHERE a.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	article := row.toModel()
	return &article, nil
}

// MarkAllRead marks every unread article as read, limited to one blog when
// blogName is non-empty. It returns the number of rows changed.
func (s *SQLite) MarkAllRead(ctx context.Context, blogName string) (int, error) {
	query := `UPDATE articles SET is_read = 1 WHERE is_read = 0`
	var args []any

	if blogName != "" {
		var id int64
		err := s.db.GetContext(ctx, &id, `SELECT id FROM blogs WHERE name = ?`, blogName)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("find blog: %w", err)
		}
		query += ` AND blog_id = ?`
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

const articleSelect = `SELECT a.id, a.blog_id, b.name AS blog_name, a.title, a.url,
       a.published_date, a.discovered_date, a.is_read
FROM articles a
JOIN blogs b ON b.id = a.blog_id`

func (f ArticleFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.BlogName != "" {
		conds = append(conds, "b.name = ?")
		args = append(args, f.BlogName)
	}
	if !f.IncludeRead {
		conds = append(conds, "a.is_read = 0")
	}
	if f.Since != nil {
		conds = append(conds, "COALESCE(a.published_date, a.discovered_date) >= ?")
		args = append(args, formatTime(*f.Since))
	}
	if f.Before != nil {
		conds = append(conds, "COALESCE(a.published_date, a.discovered_date) < ?")
		args = append(args, formatTime(*f.Before))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type dbBlog struct {
	ID             int64          `db:"id"`
	Name           string         `db:"name"`
	URL            string         `db:"url"`
	FeedURL        sql.NullString `db:"feed_url"`
	ScrapeSelector sql.NullString `db:"scrape_selector"`
	LastScanned    sql.NullString `db:"last_scanned"`
	CreatedAt      string         `db:"created_at"`
}

func (r dbBlog) toModel() model.Blog {
	b := model.Blog{
		ID:             r.ID,
		Name:           r.Name,
		URL:            r.URL,
		FeedURL:        r.FeedURL.String,
		ScrapeSelector: r.ScrapeSelector.String,
		CreatedAt:      parseTime(r.CreatedAt),
	}
	if r.LastScanned.Valid {
		t := parseTime(r.LastScanned.String)
		b.LastScanned = &t
	}
	return b
}

type dbBlogSummary struct {
	dbBlog
	TotalArticles  int `db:"total_articles"`
	UnreadArticles int `db:"unread_articles"`
}

type dbArticle struct {
	ID             int64          `db:"id"`
	BlogID         int64          `db:"blog_id"`
	BlogName       string         `db:"blog_name"`
	Title          string         `db:"title"`
	URL            string         `db:"url"`
	PublishedDate  sql.NullString `db:"published_date"`
	DiscoveredDate string         `db:"discovered_date"`
	IsRead         bool           `db:"is_read"`
}

func (r dbArticle) toModel() model.Article {
	a := model.Article{
		ID:             r.ID,
		BlogID:         r.BlogID,
		BlogName:       r.BlogName,
		Title:          r.Title,
		URL:            r.URL,
		DiscoveredDate: parseTime(r.DiscoveredDate),
		IsRead:         r.IsRead,
	}
	if r.PublishedDate.Valid {
		t := parseTime(r.PublishedDate.String)
		a.PublishedDate = &t
	}
	return a
}

func duplicateBlogError(err error, blog *model.Blog) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: blogs.name"):
		return &model.DuplicateError{Field: "name", Value: blog.Name}
	case strings.Contains(msg, "UNIQUE constraint failed: blogs.url"):
		return &model.DuplicateError{Field: "url", Value: blog.URL}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"feedreader/internal/service"
)

// ArgumentError reports tool arguments that could not be decoded.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%s is not an integer", string(data))
	}
	*n = flexInt(v)
	return nil
}

func decodeArgs(toolName string, raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ArgumentError{Tool: toolName, Err: err}
	}
	return nil
}

type nameArgs struct {
	Name string `json:"name"`
}

type blogNameArgs struct {
	BlogName string `json:"blog_name"`
}

type articleArgs struct {
	ArticleID flexInt `json:"article_id"`
}

type listArticlesArgs struct {
	BlogName    string  `json:"blog_name"`
	IncludeRead bool    `json:"include_read"`
	Limit       flexInt `json:"limit"`
	Since       string  `json:"since"`
	Before      string  `json:"before"`
	Days        flexInt `json:"days"`
}

func (s *Server) registerTools() {
	s.register("add_blog",
		"Track a blog. Without feed_url the feed is discovered from the homepage; scrape_selector is the fallback when no feed exists.",
		[]string{"name", "url", "feed_url?", "scrape_selector?"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in service.AddBlogInput
			if err := decodeArgs("add_blog", raw, &in); err != nil {
				return nil, err
			}
			return s.ops.AddBlog(ctx, in)
		})

	s.register("remove_blog",
		"Remove a blog and all of its articles.",
		[]string{"name"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in nameArgs
			if err := decodeArgs("remove_blog", raw, &in); err != nil {
				return nil, err
			}
			if strings.TrimSpace(in.Name) == "" {
				return nil, &service.ValidationError{Field: "name", Reason: "must not be empty"}
			}
			return s.ops.RemoveBlog(ctx, in.Name)
		})

	s.register("list_blogs",
		"List tracked blogs with total and unread article counts.",
		[]string{},
		func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.ops.ListBlogs(ctx)
		})

	s.register("scan_blogs",
		"Fetch new articles for every blog, or only blog_name.",
		[]string{"blog_name?"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in blogNameArgs
			if err := decodeArgs("scan_blogs", raw, &in); err != nil {
				return nil, err
			}
			return s.ops.ScanBlogs(ctx, strings.TrimSpace(in.BlogName))
		})

	s.register("list_articles",
		"List articles newest first. days overrides since; before bounds the range from above.",
		[]string{"blog_name?", "include_read?", "limit?", "since?", "before?", "days?"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in listArticlesArgs
			if err := decodeArgs("list_articles", raw, &in); err != nil {
				return nil, err
			}
			return s.ops.ListArticles(ctx, service.ListArticlesInput{
				BlogName:    in.BlogName,
				IncludeRead: in.IncludeRead,
				Limit:       int(in.Limit),
				Since:       in.Since,
				Before:      in.Before,
				Days:        int(in.Days),
			})
		})

	s.register("mark_article_read",
		"Mark one article as read.",
		[]string{"article_id"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in articleArgs
			if err := decodeArgs("mark_article_read", raw, &in); err != nil {
				return nil, err
			}
			return s.ops.MarkArticleRead(ctx, int64(in.ArticleID))
		})

	s.register("mark_article_unread",
		"Mark one article as unread.",
		[]string{"article_id"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in articleArgs
			if err := decodeArgs("mark_article_unread", raw, &in); err != nil {
				return nil, err
			}
			return s.ops.MarkArticleUnread(ctx, int64(in.ArticleID))
		})

	s.register("mark_all_read",
		"Mark every unread article as read, optionally only for blog_name.",
		[]string{"blog_name?"},
		func(ctx context.Context, raw json.RawMessage) (any, error) {
			var in blogNameArgs
			if err := decodeArgs("mark_all_read", raw, &in); err != nil {
				return nil, err
			}
			return s.ops.MarkAllRead(ctx, strings.TrimSpace(in.BlogName))
		})
}

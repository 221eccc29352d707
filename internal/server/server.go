// Package server exposes the feed reader operations as named tools over stdio and HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"feedreader/internal/model"
	"feedreader/internal/scanner"
	"feedreader/internal/service"
)

// Operations is the set of operations the tools dispatch to.
type Operations interface {
	AddBlog(ctx context.Context, in service.AddBlogInput) (*service.AddBlogResult, error)
	RemoveBlog(ctx context.Context, name string) (*service.RemoveBlogResult, error)
	ListBlogs(ctx context.Context) (*service.ListBlogsResult, error)
	ScanBlogs(ctx context.Context, name string) (*scanner.Result, error)
	ListArticles(ctx context.Context, in service.ListArticlesInput) (*service.ListArticlesResult, error)
	MarkArticleRead(ctx context.Context, id int64) (*service.ArticleView, error)
	MarkArticleUnread(ctx context.Context, id int64) (*service.ArticleView, error)
	MarkAllRead(ctx context.Context, blogName string) (*service.MarkAllReadResult, error)
}

var _ Operations = (*service.Service)(nil)

// Call is a single tool invocation.
type Call struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is the outcome of a Call.
type Response struct {
	Success bool     `json:"success"`
	Result  any      `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
	Hint    []string `json:"hint,omitempty"`
}

// Tool describes a registered tool.
type Tool struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Arguments   []string `json:"arguments"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type tool struct {
	Tool
	handle handlerFunc
}

// Server dispatches tool calls to Operations.
type Server struct {
	ops   Operations
	log   *slog.Logger
	tools map[string]tool
}

// New creates a Server with every tool registered.
func New(ops Operations, log *slog.Logger) *Server {
	s := &Server{ops: ops, log: log, tools: make(map[string]tool)}
	s.registerTools()
	return s
}

func (s *Server) register(name, description string, args []string, h handlerFunc) {
	s.tools[name] = tool{
		Tool:   Tool{Name: name, Description: description, Arguments: args},
		handle: h,
	}
}

// Tools returns the registered tools ordered by name.
func (s *Server) Tools() []Tool {
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Tool)
	}
	slices.SortFunc(out, func(a, b Tool) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Handle runs a single call. Failures are reported in the Response, never returned.
func (s *Server) Handle(ctx context.Context, call Call) Response {
	resp, _ := s.dispatch(ctx, call)
	return resp
}

// dispatch runs a call and also returns the underlying error for transports that classify it.
func (s *Server) dispatch(ctx context.Context, call Call) (Response, error) {
	t, ok := s.tools[call.Tool]
	if !ok {
		names := make([]string, 0, len(s.tools))
		for _, tl := range s.Tools() {
			names = append(names, tl.Name)
		}
		err := &UnknownToolError{Name: call.Tool}
		return Response{
			Error: err.Error(),
			Hint:  []string{"available tools: " + strings.Join(names, ", ")},
		}, err
	}

	s.log.Debug("tool call", "tool", call.Tool, "arguments", string(call.Arguments))

	result, err := t.handle(ctx, call.Arguments)
	if err != nil {
		s.log.Warn("tool failed", "tool", call.Tool, "error", err)
		return Response{Error: err.Error(), Hint: s.hints(err)}, err
	}
	return Response{Success: true, Result: result}, nil
}

// UnknownToolError is returned for a call naming no registered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// hints derives remediation advice from an error.
func (s *Server) hints(err error) []string {
	var (
		notFound  *model.NotFoundError
		dup       *model.DuplicateError
		discovery *model.DiscoveryFailedError
		invalid   *service.ValidationError
		badArgs   *ArgumentError
	)
	switch {
	case errors.As(err, &notFound):
		if notFound.Entity == "article" {
			return []string{"use list_articles to find valid article ids"}
		}
		if len(notFound.Known) == 0 {
			return []string{"no blogs are registered yet; use add_blog"}
		}
		return []string{"known blogs: " + strings.Join(notFound.Known, ", ")}
	case errors.As(err, &dup):
		return []string{"use list_blogs to see registered blogs"}
	case errors.As(err, &discovery):
		return []string{"pass feed_url explicitly, or scrape_selector to extract article links from the page"}
	case errors.As(err, &invalid):
		if invalid.Field == "since" || invalid.Field == "before" {
			return []string{"dates accept 2025-01-01, 2025-01-01T00:00:00 or RFC 3339"}
		}
		return []string{fmt.Sprintf("check the %s argument", invalid.Field)}
	case errors.As(err, &badArgs):
		if t, ok := s.tools[badArgs.Tool]; ok && len(t.Arguments) > 0 {
			return []string{"expected arguments: " + strings.Join(t.Arguments, ", ")}
		}
	}
	return nil
}

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedreader/internal/model"
	"feedreader/internal/scanner"
	"feedreader/internal/service"
)

type recordedCall struct {
	Op  string
	Arg any
}

// mockOps records every operation and fails blog lookups for "ghost".
type mockOps struct {
	calls []recordedCall
}

func (m *mockOps) record(op string, arg any) {
	m.calls = append(m.calls, recordedCall{Op: op, Arg: arg})
}

var errGhost = &model.NotFoundError{Entity: "blog", Key: "ghost", Known: []string{"alpha", "beta"}}

func (m *mockOps) AddBlog(_ context.Context, in service.AddBlogInput) (*service.AddBlogResult, error) {
	m.record("AddBlog", in)
	if in.URL == "https://nofeed.example.com" {
		return nil, &model.DiscoveryFailedError{URL: in.URL}
	}
	return &service.AddBlogResult{Blog: service.BlogView{ID: 1, Name: in.Name, URL: in.URL, Mode: "feed"}, FeedDiscovered: true}, nil
}

func (m *mockOps) RemoveBlog(_ context.Context, name string) (*service.RemoveBlogResult, error) {
	m.record("RemoveBlog", name)
	if name == "ghost" {
		return nil, errGhost
	}
	return &service.RemoveBlogResult{Name: name, ArticlesDeleted: 3}, nil
}

func (m *mockOps) ListBlogs(context.Context) (*service.ListBlogsResult, error) {
	m.record("ListBlogs", nil)
	return &service.ListBlogsResult{Blogs: []service.BlogSummaryView{}}, nil
}

func (m *mockOps) ScanBlogs(_ context.Context, name string) (*scanner.Result, error) {
	m.record("ScanBlogs", name)
	return &scanner.Result{Scanned: 2, NewArticles: 5}, nil
}

func (m *mockOps) ListArticles(_ context.Context, in service.ListArticlesInput) (*service.ListArticlesResult, error) {
	m.record("ListArticles", in)
	if in.Since == "yesterday" {
		return nil, &service.ValidationError{Field: "since", Reason: "not a date"}
	}
	return &service.ListArticlesResult{Articles: []service.ArticleView{}}, nil
}

func (m *mockOps) MarkArticleRead(_ context.Context, id int64) (*service.ArticleView, error) {
	m.record("MarkArticleRead", id)
	return &service.ArticleView{ID: id, IsRead: true}, nil
}

func (m *mockOps) MarkArticleUnread(_ context.Context, id int64) (*service.ArticleView, error) {
	m.record("MarkArticleUnread", id)
	return &service.ArticleView{ID: id}, nil
}

func (m *mockOps) MarkAllRead(_ context.Context, blogName string) (*service.MarkAllReadResult, error) {
	m.record("MarkAllRead", blogName)
	return &service.MarkAllReadResult{ArticlesMarkedRead: 4}, nil
}

func newTestServer() (*Server, *mockOps) {
	ops := &mockOps{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ops, log), ops
}

func TestHandleDispatch(t *testing.T) {
	tests := []struct {
		name string
		call Call
		want recordedCall
	}{
		{
			name: "add_blog",
			call: Call{Tool: "add_blog", Arguments: json.RawMessage(`{"name":"simonwillison","url":"simonwillison.net"}`)},
			want: recordedCall{Op: "AddBlog", Arg: service.AddBlogInput{Name: "simonwillison", URL: "simonwillison.net"}},
		},
		{
			name: "remove_blog",
			call: Call{Tool: "remove_blog", Arguments: json.RawMessage(`{"name":"alpha"}`)},
			want: recordedCall{Op: "RemoveBlog", Arg: "alpha"},
		},
		{
			name: "list_blogs without arguments",
			call: Call{Tool: "list_blogs"},
			want: recordedCall{Op: "ListBlogs"},
		},
		{
			name: "scan_blogs trims name",
			call: Call{Tool: "scan_blogs", Arguments: json.RawMessage(`{"blog_name":" alpha "}`)},
			want: recordedCall{Op: "ScanBlogs", Arg: "alpha"},
		},
		{
			name: "list_articles with string numbers",
			call: Call{Tool: "list_articles", Arguments: json.RawMessage(`{"blog_name":"alpha","include_read":true,"limit":"10","days":7,"before":"2026-01-28"}`)},
			want: recordedCall{Op: "ListArticles", Arg: service.ListArticlesInput{BlogName: "alpha", IncludeRead: true, Limit: 10, Days: 7, Before: "2026-01-28"}},
		},
		{
			name: "mark_article_read",
			call: Call{Tool: "mark_article_read", Arguments: json.RawMessage(`{"article_id":42}`)},
			want: recordedCall{Op: "MarkArticleRead", Arg: int64(42)},
		},
		{
			name: "mark_article_unread",
			call: Call{Tool: "mark_article_unread", Arguments: json.RawMessage(`{"article_id":"42"}`)},
			want: recordedCall{Op: "MarkArticleUnread", Arg: int64(42)},
		},
		{
			name: "mark_all_read",
			call: Call{Tool: "mark_all_read", Arguments: json.RawMessage(`{}`)},
			want: recordedCall{Op: "MarkAllRead", Arg: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ops := newTestServer()
			resp := s.Handle(context.Background(), tt.call)
			if !resp.Success {
				t.Fatalf("expected success, got error %q", resp.Error)
			}
			if diff := cmp.Diff([]recordedCall{tt.want}, ops.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleFailures(t *testing.T) {
	tests := []struct {
		name     string
		call     Call
		wantErr  string
		wantHint []string
	}{
		{
			name:     "unknown tool",
			call:     Call{Tool: "delete_everything"},
			wantErr:  `unknown tool "delete_everything"`,
			wantHint: []string{"available tools: add_blog, list_articles, list_blogs, mark_all_read, mark_article_read, mark_article_unread, remove_blog, scan_blogs"},
		},
		{
			name:     "unknown blog lists known names",
			call:     Call{Tool: "remove_blog", Arguments: json.RawMessage(`{"name":"ghost"}`)},
			wantErr:  errGhost.Error(),
			wantHint: []string{"known blogs: alpha, beta"},
		},
		{
			name:     "empty name",
			call:     Call{Tool: "remove_blog", Arguments: json.RawMessage(`{"name":"  "}`)},
			wantErr:  "invalid name: must not be empty",
			wantHint: []string{"check the name argument"},
		},
		{
			name:     "discovery failure",
			call:     Call{Tool: "add_blog", Arguments: json.RawMessage(`{"name":"x","url":"https://nofeed.example.com"}`)},
			wantErr:  (&model.DiscoveryFailedError{URL: "https://nofeed.example.com"}).Error(),
			wantHint: []string{"pass feed_url explicitly, or scrape_selector to extract article links from the page"},
		},
		{
			name:     "bad date",
			call:     Call{Tool: "list_articles", Arguments: json.RawMessage(`{"since":"yesterday"}`)},
			wantErr:  "invalid since: not a date",
			wantHint: []string{"dates accept 2025-01-01, 2025-01-01T00:00:00 or RFC 3339"},
		},
		{
			name:     "non-numeric id",
			call:     Call{Tool: "mark_article_read", Arguments: json.RawMessage(`{"article_id":"abc"}`)},
			wantHint: []string{"expected arguments: article_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer()
			resp := s.Handle(context.Background(), tt.call)
			if resp.Success {
				t.Fatal("expected failure")
			}
			if tt.wantErr != "" {
				if diff := cmp.Diff(tt.wantErr, resp.Error); diff != "" {
					t.Errorf("error mismatch (-want +got):\n%s", diff)
				}
			}
			if diff := cmp.Diff(tt.wantHint, resp.Hint); diff != "" {
				t.Errorf("hint mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServeStdio(t *testing.T) {
	s, ops := newTestServer()
	input := strings.Join([]string{
		`{"tool":"scan_blogs","arguments":{}}`,
		``,
		`not json`,
		`{"tool":"mark_all_read","arguments":{"blog_name":"alpha"}}`,
	}, "\n")

	var out strings.Builder
	if err := s.ServeStdio(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("serve stdio: %v", err)
	}

	var got []bool
	sc := bufio.NewScanner(strings.NewReader(out.String()))
	for sc.Scan() {
		var resp Response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", sc.Text(), err)
		}
		got = append(got, resp.Success)
	}
	if diff := cmp.Diff([]bool{true, false, true}, got); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
	want := []recordedCall{{Op: "ScanBlogs", Arg: ""}, {Op: "MarkAllRead", Arg: "alpha"}}
	if diff := cmp.Diff(want, ops.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "tool list", method: http.MethodGet, path: "/tools", wantStatus: http.StatusOK},
		{name: "successful call", method: http.MethodPost, path: "/tools/scan_blogs", body: `{"blog_name":"alpha"}`, wantStatus: http.StatusOK},
		{name: "empty body", method: http.MethodPost, path: "/tools/list_blogs", wantStatus: http.StatusOK},
		{name: "unknown tool", method: http.MethodPost, path: "/tools/nope", wantStatus: http.StatusNotFound},
		{name: "unknown blog", method: http.MethodPost, path: "/tools/remove_blog", body: `{"name":"ghost"}`, wantStatus: http.StatusNotFound},
		{name: "invalid date", method: http.MethodPost, path: "/tools/list_articles", body: `{"since":"yesterday"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/tools/list_articles", body: `{"limit":`, wantStatus: http.StatusBadRequest},
		{name: "discovery failure", method: http.MethodPost, path: "/tools/add_blog", body: `{"name":"x","url":"https://nofeed.example.com"}`, wantStatus: http.StatusUnprocessableEntity},
	}

	s, _ := newTestServer()
	h := s.NewHTTPHandler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if diff := cmp.Diff(tt.wantStatus, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s\nbody: %s", diff, rec.Body.String())
			}
			if !json.Valid(rec.Body.Bytes()) {
				t.Errorf("response is not json: %s", rec.Body.String())
			}
		})
	}
}

func TestToolsListsEveryOperation(t *testing.T) {
	s, _ := newTestServer()
	var names []string
	for _, tl := range s.Tools() {
		names = append(names, tl.Name)
	}
	want := []string{
		"add_blog", "list_articles", "list_blogs", "mark_all_read",
		"mark_article_read", "mark_article_unread", "remove_blog", "scan_blogs",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tools mismatch (-want +got):\n%s", diff)
	}
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in      string
		want    flexInt
		wantErr bool
	}{
		{in: `12`, want: 12},
		{in: `"12"`, want: 12},
		{in: `null`, want: 0},
		{in: `""`, want: 0},
		{in: `1.5`, wantErr: true},
		{in: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got flexInt
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArgumentErrorUnwraps(t *testing.T) {
	err := decodeArgs("list_articles", json.RawMessage(`{"limit":[]}`), &listArticlesArgs{})
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected *ArgumentError, got %v", err)
	}
	if argErr.Unwrap() == nil {
		t.Error("expected wrapped decode error")
	}
}

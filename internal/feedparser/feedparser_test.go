package feedparser

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feedreader/internal/model"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <link>https://example.com</link>
    <item>
      <title>  First post </title>
      <link>https://example.com/first</link>
      <pubDate>Mon, 26 Jan 2026 10:00:00 +0100</pubDate>
    </item>
    <item>
      <title>Undated</title>
      <link>https://example.com/undated</link>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
    </item>
    <item>
      <title>No link</title>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <id>urn:example</id>
  <updated>2026-01-27T12:00:00Z</updated>
  <entry>
    <title>Updated only</title>
    <id>urn:example:1</id>
    <link href="https://atom.example.com/one"/>
    <updated>2026-01-27T12:00:00Z</updated>
  </entry>
  <entry>
    <title>Published wins</title>
    <id>urn:example:2</id>
    <link href="https://atom.example.com/two"/>
    <published>2026-01-20T08:30:00Z</published>
    <updated>2026-01-25T08:30:00Z</updated>
  </entry>
</feed>`

const emptyRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Quiet</title><link>https://quiet.example.com</link></channel></rss>`

func ptr[T any](v T) *T { return &v }

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []model.Entry
	}{
		{
			name: "rss with skipped entries",
			data: sampleRSS,
			want: []model.Entry{
				{
					Title:     "First post",
					URL:       "https://example.com/first",
					Published: ptr(time.Date(2026, 1, 26, 9, 0, 0, 0, time.UTC)),
				},
				{Title: "Undated", URL: "https://example.com/undated"},
			},
		},
		{
			name: "atom published then updated",
			data: sampleAtom,
			want: []model.Entry{
				{
					Title:     "Updated only",
					URL:       "https://atom.example.com/one",
					Published: ptr(time.Date(2026, 1, 27, 12, 0, 0, 0, time.UTC)),
				},
				{
					Title:     "Published wins",
					URL:       "https://atom.example.com/two",
					Published: ptr(time.Date(2026, 1, 20, 8, 30, 0, 0, time.UTC)),
				},
			},
		},
		{
			name: "empty feed is valid",
			data: emptyRSS,
			want: []model.Entry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRejectsNonFeed(t *testing.T) {
	inputs := map[string]string{
		"html page": "<html><head><title>Home</title></head><body><p>hello</p></body></html>",
		"garbage":   "this is not a feed",
		"empty":     "",
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), nil)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
		})
	}
}

func TestParseResolvesRelativeLinks(t *testing.T) {
	const relativeRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Relative</title>
    <link>https://blog.example.com/</link>
    <item><title>Root relative</title><link>/posts/1</link></item>
    <item><title>Absolute</title><link>https://other.example.com/posts/2</link></item>
  </channel>
</rss>`

	const relativeAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Relative</title>
  <id>urn:relative</id>
  <updated>2026-01-27T12:00:00Z</updated>
  <entry>
    <title>Root relative</title>
    <id>urn:relative:1</id>
    <link href="/posts/1"/>
  </entry>
  <entry>
    <title>Path relative</title>
    <id>urn:relative:2</id>
    <link href="notes/2"/>
  </entry>
</feed>`

	tests := []struct {
		name string
		data string
		base string
		want []model.Entry
	}{
		{
			name: "rss",
			data: relativeRSS,
			base: "https://blog.example.com/feed.xml",
			want: []model.Entry{
				{Title: "Root relative", URL: "https://blog.example.com/posts/1"},
				{Title: "Absolute", URL: "https://other.example.com/posts/2"},
			},
		},
		{
			name: "atom",
			data: relativeAtom,
			base: "https://blog.example.com/blog/atom.xml",
			want: []model.Entry{
				{Title: "Root relative", URL: "https://blog.example.com/posts/1"},
				{Title: "Path relative", URL: "https://blog.example.com/blog/notes/2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := url.Parse(tt.base)
			if err != nil {
				t.Fatalf("parse base: %v", err)
			}
			got, err := Parse([]byte(tt.data), base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

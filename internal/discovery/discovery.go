// Package discovery locates a blog's feed from its homepage.
package discovery

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feedreader/internal/fetcher"
	"feedreader/internal/feedparser"
)

// linkTypes maps advertised feed MIME types to their rank; lower is preferred.
var linkTypes = map[string]int{
	"application/rss+xml":   0,
	"application/atom+xml":  0,
	"application/feed+json": 1,
	"application/json":      1,
	"application/xml":       2,
	"text/xml":              2,
}

// probePaths are tried against the site origin when no link tag yields a feed.
var probePaths = []string{
	"/feed",
	"/rss",
	"/feed.xml",
	"/rss.xml",
	"/atom.xml",
	"/index.xml",
	"/feeds/posts/default",
	"/feed/",
	"/rss/",
	"/?feed=rss2",
	"/blog/feed",
	"/blog/rss",
}

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

// Discoverer finds feed URLs by inspecting link tags and probing well-known paths.
type Discoverer struct {
	fetcher Fetcher
	log     *slog.Logger
}

// New creates a Discoverer.
func New(f Fetcher, log *slog.Logger) *Discoverer {
	return &Discoverer{fetcher: f, log: log}
}

// source yields candidate feed URLs. It is only called when earlier sources found nothing.
type source func(ctx context.Context) []string

// Discover returns the first candidate that fetches successfully and parses as a feed.
// The boolean is false when nothing was found; failures never escape.
func (d *Discoverer) Discover(ctx context.Context, homepage string) (string, bool) {
	base, err := url.Parse(homepage)
	if err != nil || base.Host == "" {
		d.log.Warn("discovery: invalid homepage", "url", homepage, "error", err)
		return "", false
	}
	if base.Path == "" {
		base.Path = "/"
	}

	// base may move to the post-redirect location once the homepage is fetched.
	sources := []source{
		func(ctx context.Context) []string {
			var links []string
			links, base = d.linkCandidates(ctx, base)
			return links
		},
		func(context.Context) []string {
			return probeCandidates(base)
		},
	}

	tried := make(map[string]struct{})
	for _, next := range sources {
		for _, candidate := range next(ctx) {
			if _, ok := tried[candidate]; ok {
				continue
			}
			tried[candidate] = struct{}{}
			if d.validate(ctx, candidate) {
				d.log.Info("discovered feed", "homepage", homepage, "feed_url", candidate)
				return candidate, true
			}
		}
	}

	d.log.Info("no feed discovered", "homepage", homepage, "tried", len(tried))
	return "", false
}

func (d *Discoverer) linkCandidates(ctx context.Context, base *url.URL) ([]string, *url.URL) {
	page, err := d.fetcher.Fetch(ctx, base.String())
	if err != nil {
		d.log.Debug("discovery: homepage fetch failed", "url", base.String(), "error", err)
		return nil, base
	}
	if page.URL != nil && page.URL.Host != "" {
		base = page.URL
	}
	return LinkCandidates(page.Body, base), base
}

// LinkCandidates returns the feed URLs advertised by link rel="alternate" tags in an HTML
// page, resolved against base and ordered by type preference, then document order.
func LinkCandidates(html []byte, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	type ranked struct {
		url  string
		rank int
	}
	var found []ranked

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if !hasToken(s.AttrOr("rel", ""), "alternate") {
			return
		}
		mime := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		rank, ok := linkTypes[mime]
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil || ref.String() == "" {
			return
		}
		found = append(found, ranked{url: base.ResolveReference(ref).String(), rank: rank})
	})

	slices.SortStableFunc(found, func(a, b ranked) int { return a.rank - b.rank })

	out := make([]string, 0, len(found))
	for _, r := range found {
		out = append(out, r.url)
	}
	return out
}

func probeCandidates(base *url.URL) []string {
	origin := url.URL{Scheme: base.Scheme, Host: base.Host}
	out := make([]string, 0, len(probePaths))
	for _, p := range probePaths {
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		out = append(out, origin.ResolveReference(ref).String())
	}
	return out
}

func (d *Discoverer) validate(ctx context.Context, candidate string) bool {
	page, err := d.fetcher.Fetch(ctx, candidate)
	if err != nil {
		d.log.Debug("discovery: candidate fetch failed", "url", candidate, "error", err)
		return false
	}
	if _, err := feedparser.Parse(page.Body, page.URL); err != nil {
		d.log.Debug("discovery: candidate is not a feed", "url", candidate, "error", err)
		return false
	}
	return true
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

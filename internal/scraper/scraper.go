// Package scraper extracts article links from HTML pages that have no feed.
package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"feedreader/internal/model"
)

// Scrape selects every element matching selector in page and turns it into an entry.
// A match that is not itself a link contributes its first a[href] descendant.
// Entries are unique by resolved URL; titles may be empty.
func Scrape(page []byte, selector string, baseURL *url.URL) ([]model.Entry, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var entries []model.Entry
	seen := make(map[string]struct{})

	doc.FindMatcher(matcher).Each(func(_ int, s *goquery.Selection) {
		link := s
		if goquery.NodeName(s) != "a" {
			link = s.Find("a[href]").First()
		}
		if link.Length() == 0 {
			return
		}

		href, ok := resolve(baseURL, link.AttrOr("href", ""))
		if !ok {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		entries = append(entries, model.Entry{
			Title: firstNonEmpty(
				collapse(link.Text()),
				collapse(link.AttrOr("title", "")),
				collapse(s.Text()),
			),
			URL: href,
		})
	})

	return entries, nil
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String(), true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

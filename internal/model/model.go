// Package model defines the domain types used across the application.
package model

import "time"

// Blog is a tracked site. Name is the external handle and never changes.
type Blog struct {
	ID             int64
	Name           string
	URL            string
	FeedURL        string
	ScrapeSelector string
	LastScanned    *time.Time
	CreatedAt      time.Time
}

// ModeKind enumerates how a blog's articles are obtained.
type ModeKind int

// Supported ingestion modes.
const (
	ModeUnconfigured ModeKind = iota
	ModeFeed
	ModeScrape
)

func (k ModeKind) String() string {
	switch k {
	case ModeFeed:
		return "feed"
	case ModeScrape:
		return "scrape"
	default:
		return "unconfigured"
	}
}

// IngestionMode is the resolved way a blog is scanned. Target holds the feed URL
// for ModeFeed and the CSS selector for ModeScrape.
type IngestionMode struct {
	Kind   ModeKind
	Target string
}

// Mode resolves the blog's ingestion mode. A feed URL takes precedence over a selector.
func (b Blog) Mode() IngestionMode {
	switch {
	case b.FeedURL != "":
		return IngestionMode{Kind: ModeFeed, Target: b.FeedURL}
	case b.ScrapeSelector != "":
		return IngestionMode{Kind: ModeScrape, Target: b.ScrapeSelector}
	default:
		return IngestionMode{Kind: ModeUnconfigured}
	}
}

// BlogSummary is a blog together with its article counters.
type BlogSummary struct {
	Blog
	TotalArticles  int
	UnreadArticles int
}

// Article is a single post discovered from a blog. URL is globally unique.
type Article struct {
	ID             int64
	BlogID         int64
	BlogName       string
	Title          string
	URL            string
	PublishedDate  *time.Time
	DiscoveredDate time.Time
	IsRead         bool
}

// Entry is a candidate article produced by a feed parser or scraper before persistence.
type Entry struct {
	Title     string
	URL       string
	Published *time.Time
}

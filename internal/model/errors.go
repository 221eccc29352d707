package model

import (
	"fmt"
	"strings"
)

// NotFoundError reports a blog or article that could not be resolved.
// Known lists valid keys when that helps the caller recover.
type NotFoundError struct {
	Entity string
	Key    string
	Known  []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Entity, e.Key)
	if len(e.Known) > 0 {
		msg += "; known: " + strings.Join(e.Known, ", ")
	}
	return msg
}

// DuplicateError reports a blog whose name or URL is already registered.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("blog with %s %q already exists", e.Field, e.Value)
}

// DiscoveryFailedError is returned when no feed was found and no selector was given.
type DiscoveryFailedError struct {
	URL string
}

func (e *DiscoveryFailedError) Error() string {
	return fmt.Sprintf("could not discover a feed for %s; provide feed_url or scrape_selector", e.URL)
}

// NotConfiguredError is recorded for a blog that has neither a feed URL nor a selector.
type NotConfiguredError struct {
	Blog string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("blog %q has no feed_url or scrape_selector", e.Blog)
}

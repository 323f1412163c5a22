// Package headlines collects a day's news headlines from RSS feeds for live
// scoring.
package headlines

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"

	"headline-vol/internal/domain"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

const (
	maxTitleLen     = 300
	maxItemsPerFeed = 100
	feedConcurrency = 4
)

// Item is one feed entry.
type Item struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Feed        string
}

type RSSSource struct {
	client  *http.Client
	tracer  trace.Tracer
	feeds   []string
	limiter *RateLimiter
}

func NewRSSSource(tracer trace.Tracer, feeds []string, limiter *RateLimiter) *RSSSource {
	if limiter == nil {
		limiter = NewRateLimiter(feedConcurrency, time.Second)
	}
	return &RSSSource{
		client:  &http.Client{Timeout: 20 * time.Second},
		tracer:  tracer,
		feeds:   feeds,
		limiter: limiter,
	}
}

// Headlines returns up to 25 distinct titles published on the UTC day of
// date, oldest first. A failing feed is logged and skipped; an error is
// returned only when every feed fails.
func (s *RSSSource) Headlines(ctx context.Context, date time.Time) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "headlines.collect")
	defer span.End()

	day := domain.DateKey(date)
	results := make([][]Item, len(s.feeds))
	failures := make([]error, len(s.feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(feedConcurrency)
	for i, feed := range s.feeds {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			items, err := s.FetchFeed(gctx, feed)
			if err != nil {
				log.Warn().Err(err).Str("feed", feed).Msg("headline feed failed")
				failures[i] = err
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	failed := 0
	var all []Item
	for i := range s.feeds {
		if failures[i] != nil {
			failed++
			continue
		}
		for _, it := range results[i] {
			if domain.DateKey(it.PublishedAt) == day {
				all = append(all, it)
			}
		}
	}
	if len(s.feeds) > 0 && failed == len(s.feeds) {
		return nil, fmt.Errorf("all %d headline feeds failed: %w", failed, failures[0])
	}

	out := Select(all)
	span.SetAttributes(attribute.String("date", day), attribute.Int("feeds_failed", failed), attribute.Int("headlines", len(out)))
	return out, nil
}

// Select orders items by publish time and keeps the first 25 distinct
// titles. Titles are compared after case folding and NFKC normalization.
func Select(items []Item) []string {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PublishedAt.Before(sorted[j].PublishedAt) })

	seen := make(map[string]struct{}, len(sorted))
	out := make([]string, 0, domain.HeadlineSlots)
	for _, it := range sorted {
		if len(out) == domain.HeadlineSlots {
			break
		}
		key := strings.ToLower(norm.NFKC.String(it.Title))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it.Title)
	}
	return out
}

func (s *RSSSource) FetchFeed(ctx context.Context, feedURL string) ([]Item, error) {
	_, span := s.tracer.Start(ctx, "headlines.fetch-feed")
	defer span.End()

	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	span.SetAttributes(attribute.String("feed", feedURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rss fetch error %d: %s", resp.StatusCode, string(body))
	}

	var rss struct {
		Channel struct {
			Items []struct {
				Title   string `xml:"title"`
				Link    string `xml:"link"`
				PubDate string `xml:"pubDate"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decode rss payload: %w", err)
	}

	items := make([]Item, 0, min(maxItemsPerFeed, len(rss.Channel.Items)))
	for _, row := range rss.Channel.Items {
		if len(items) == maxItemsPerFeed {
			break
		}
		title := cleanTitle(row.Title)
		if title == "" {
			continue
		}
		published := parseRSSDate(row.PubDate)
		if published.IsZero() {
			continue
		}
		items = append(items, Item{Title: title, Link: strings.TrimSpace(row.Link), PublishedAt: published, Feed: feedURL})
	}
	return items, nil
}

func parseRSSDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// cleanTitle drops markup and control characters and collapses whitespace.
func cleanTitle(in string) string {
	var b strings.Builder
	inside := false
	for _, r := range in {
		switch {
		case r == '<':
			inside = true
			continue
		case r == '>':
			inside = false
			continue
		case inside:
			continue
		case unicode.IsControl(r):
			r = ' '
		}
		b.WriteRune(r)
	}
	title := strings.Join(strings.Fields(b.String()), " ")
	if len(title) > maxTitleLen {
		title = strings.ToValidUTF8(title[:maxTitleLen], "")
	}
	return title
}

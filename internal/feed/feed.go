// Package feed reads community content from public Atom feeds. It serves
// as a read-only corpus source when no API credentials are configured.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/forum"
)

// Source parses per-community Atom feeds. URL templates take the community
// name as their single %s verb.
type Source struct {
	parser         *gofeed.Parser
	commentsURL    string
	submissionsURL string
	logger         *zap.Logger
}

// New creates a feed source.
func New(logger *zap.Logger, commentsURL, submissionsURL, userAgent string) *Source {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: 30 * time.Second}
	return &Source{
		parser:         parser,
		commentsURL:    commentsURL,
		submissionsURL: submissionsURL,
		logger:         logger,
	}
}

// Recent returns up to limit feed entries, newest first.
func (s *Source) Recent(ctx context.Context, community string, kind forum.Kind, limit int) ([]forum.Item, error) {
	tmpl := s.commentsURL
	if kind == forum.KindSubmission {
		tmpl = s.submissionsURL
	}
	if tmpl == "" {
		return nil, nil
	}
	feedURL := fmt.Sprintf(tmpl, community)

	parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	var items []forum.Item
	for _, entry := range parsed.Items {
		if len(items) >= limit {
			break
		}
		it, ok := parseItem(entry, community, kind)
		if !ok {
			continue
		}
		items = append(items, it)
	}

	s.logger.Debug("parsed feed",
		zap.String("url", feedURL),
		zap.Int("entries", len(parsed.Items)),
		zap.Int("items", len(items)),
	)
	return items, nil
}

func parseItem(entry *gofeed.Item, community string, kind forum.Kind) (forum.Item, bool) {
	id := entry.GUID
	if id == "" {
		return forum.Item{}, false
	}
	id = strings.TrimPrefix(strings.TrimPrefix(id, "t1_"), "t3_")

	it := forum.Item{
		ID:        id,
		Kind:      kind,
		Community: community,
		Permalink: entry.Link,
		Author:    authorName(entry),
	}
	if entry.PublishedParsed != nil {
		it.CreatedAt = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		it.CreatedAt = entry.UpdatedParsed.UTC()
	}

	html := entry.Content
	if html == "" {
		html = entry.Description
	}
	body, link := extract(html)

	switch kind {
	case forum.KindComment:
		if body == "" {
			return forum.Item{}, false
		}
		it.Body = body
	case forum.KindSubmission:
		it.Title = strings.TrimSpace(entry.Title)
		if it.Title == "" {
			return forum.Item{}, false
		}
		if link == "" || link == entry.Link || strings.Contains(link, "/comments/") {
			it.IsSelf = true
			it.Body = body
		} else {
			it.URL = link
		}
	}
	return it, true
}

func authorName(entry *gofeed.Item) string {
	var name string
	if entry.Author != nil {
		name = entry.Author.Name
	} else if len(entry.Authors) > 0 {
		name = entry.Authors[0].Name
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "/u/")
	return strings.TrimPrefix(name, "u/")
}

// extract returns the markdown-rendered text and the external "[link]"
// target from an entry's HTML.
func extract(html string) (string, string) {
	if html == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}

	var link string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) == "[link]" {
			link, _ = a.Attr("href")
			return false
		}
		return true
	})

	md := doc.Find("div.md").First()
	if md.Length() == 0 {
		return "", link
	}
	var paragraphs []string
	md.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return strings.Join(strings.Fields(md.Text()), " "), link
	}
	return strings.Join(paragraphs, "\n"), link
}

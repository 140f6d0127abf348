package reddit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/forum"
)

// flairBatch is the most rows the flair CSV endpoint accepts per call.
const flairBatch = 100

var _ forum.Session = (*Client)(nil)

// Recent returns the newest comments or submissions of a community.
func (c *Client) Recent(ctx context.Context, community string, kind forum.Kind, limit int) ([]forum.Item, error) {
	path := "/r/" + community + "/new"
	if kind == forum.KindComment {
		path = "/r/" + community + "/comments"
	}
	return c.listing(ctx, path, nil, limit)
}

// Top returns the best-scoring submissions in a time window.
func (c *Client) Top(ctx context.Context, community string, period forum.Period, limit int) ([]forum.Item, error) {
	return c.listing(ctx, "/r/"+community+"/top", url.Values{"t": {string(period)}}, limit)
}

// Hot returns the front page of a community.
func (c *Client) Hot(ctx context.Context, community string, limit int) ([]forum.Item, error) {
	return c.listing(ctx, "/r/"+community+"/hot", nil, limit)
}

// listing pages through a listing endpoint until limit items are read or
// the listing ends.
func (c *Client) listing(ctx context.Context, path string, query url.Values, limit int) ([]forum.Item, error) {
	var items []forum.Item
	after := ""
	for len(items) < limit {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(min(pageSize, limit-len(items))))
		if after != "" {
			q.Set("after", after)
		}

		var page listing
		if err := c.get(ctx, path, q, &page); err != nil {
			return nil, err
		}
		for _, t := range page.Data.Children {
			if it, ok := t.item(); ok {
				items = append(items, it)
			}
		}
		after = page.Data.After
		if after == "" || len(page.Data.Children) == 0 {
			break
		}
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Replies returns a submission's whole comment tree, flattened.
func (c *Client) Replies(ctx context.Context, submissionID string) ([]forum.Item, error) {
	var pages []listing
	q := url.Values{"limit": {"500"}}
	if err := c.get(ctx, "/comments/"+submissionID, q, &pages); err != nil {
		return nil, err
	}
	if len(pages) < 2 {
		return nil, nil
	}
	return flatten(pages[1].Data.Children, nil), nil
}

// Description returns the sidebar markdown of a community.
func (c *Client) Description(ctx context.Context, community string) (string, error) {
	settings, err := c.settings(ctx, community)
	if err != nil {
		return "", err
	}
	desc, _ := settings["description"].(string)
	return desc, nil
}

func (c *Client) settings(ctx context.Context, community string) (map[string]any, error) {
	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := c.get(ctx, "/r/"+community+"/about/edit", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("no settings for /r/%s", community)
	}
	return resp.Data, nil
}

// UpdateDescription rewrites the sidebar, keeping every other setting.
func (c *Client) UpdateDescription(ctx context.Context, community, text string) error {
	settings, err := c.settings(ctx, community)
	if err != nil {
		return err
	}

	form := url.Values{"api_type": {"json"}}
	for k, v := range settings {
		switch v := v.(type) {
		case string:
			form.Set(k, v)
		case bool:
			form.Set(k, strconv.FormatBool(v))
		case float64:
			form.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	if id, ok := settings["subreddit_id"].(string); ok {
		form.Set("sr", id)
	}
	form.Set("description", text)

	var resp apiErrors
	if err := c.post(ctx, "/api/site_admin", form, &resp); err != nil {
		return err
	}
	return resp.err()
}

// UpdateFlair sets user flair texts in batches.
func (c *Client) UpdateFlair(ctx context.Context, community string, labels []forum.Label) error {
	for start := 0; start < len(labels); start += flairBatch {
		end := min(start+flairBatch, len(labels))

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		for _, l := range labels[start:end] {
			w.Write([]string{l.User, l.Text, ""})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}

		form := url.Values{"flair_csv": {buf.String()}}
		if err := c.post(ctx, "/r/"+community+"/api/flaircsv", form, nil); err != nil {
			return err
		}
	}
	c.logger.Debug("updated flair", zap.String("community", community), zap.Int("labels", len(labels)))
	return nil
}

// Reply posts a comment under a submission or comment.
func (c *Client) Reply(ctx context.Context, target forum.Item, text string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {target.Fullname()},
		"text":     {text},
	}
	var resp apiErrors
	if err := c.post(ctx, "/api/comment", form, &resp); err != nil {
		return err
	}
	return resp.err()
}

// Submit creates a link post when post.URL is set, else a self post.
func (c *Client) Submit(ctx context.Context, community string, post forum.Post) error {
	form := url.Values{
		"api_type": {"json"},
		"sr":       {community},
		"title":    {post.Title},
		"resubmit": {"true"},
	}
	if post.URL != "" {
		form.Set("kind", "link")
		form.Set("url", post.URL)
	} else {
		form.Set("kind", "self")
		form.Set("text", post.Body)
	}
	var resp apiErrors
	if err := c.post(ctx, "/api/submit", form, &resp); err != nil {
		return err
	}
	return resp.err()
}

// Vote casts an up (1), down (-1) or cleared (0) vote.
func (c *Client) Vote(ctx context.Context, target forum.Item, direction int) error {
	form := url.Values{
		"id":  {target.Fullname()},
		"dir": {strconv.Itoa(direction)},
	}
	return c.post(ctx, "/api/vote", form, nil)
}

// Me returns the logged-in account's karma.
func (c *Client) Me(ctx context.Context) (forum.Profile, error) {
	var me struct {
		Name         string `json:"name"`
		CommentKarma int    `json:"comment_karma"`
		LinkKarma    int    `json:"link_karma"`
	}
	if err := c.get(ctx, "/api/v1/me", nil, &me); err != nil {
		return forum.Profile{}, err
	}
	return forum.Profile{
		Name:         strings.ToLower(me.Name),
		CommentKarma: me.CommentKarma,
		LinkKarma:    me.LinkKarma,
	}, nil
}

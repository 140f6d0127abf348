package reddit

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/TobiSchelling/subsim/internal/forum"
)

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID          string          `json:"id"`
	Subreddit   string          `json:"subreddit"`
	Author      string          `json:"author"`
	Body        string          `json:"body"`
	Title       string          `json:"title"`
	SelfText    string          `json:"selftext"`
	URL         string          `json:"url"`
	Permalink   string          `json:"permalink"`
	ParentID    string          `json:"parent_id"`
	Score       int             `json:"score"`
	UpvoteRatio float64         `json:"upvote_ratio"`
	NumComments int             `json:"num_comments"`
	Locked      bool            `json:"locked"`
	Over18      bool            `json:"over_18"`
	IsSelf      bool            `json:"is_self"`
	CreatedUTC  float64         `json:"created_utc"`
	Replies     json.RawMessage `json:"replies"`
}

// item converts a t1 or t3 thing. ok is false for any other kind.
func (t thing) item() (forum.Item, bool) {
	d := t.Data
	it := forum.Item{
		ID:        d.ID,
		Community: strings.ToLower(d.Subreddit),
		Author:    strings.ToLower(d.Author),
		Score:     d.Score,
		Locked:    d.Locked,
		Over18:    d.Over18,
		CreatedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
	}
	if d.Permalink != "" {
		it.Permalink = "https://www.reddit.com" + d.Permalink
	}

	switch t.Kind {
	case "t1":
		it.Kind = forum.KindComment
		it.Body = d.Body
		it.TopLevel = strings.HasPrefix(d.ParentID, "t3_")
	case "t3":
		it.Kind = forum.KindSubmission
		it.Title = d.Title
		it.UpvoteRatio = d.UpvoteRatio
		it.NumComments = d.NumComments
		it.IsSelf = d.IsSelf
		if d.IsSelf {
			it.Body = d.SelfText
		} else {
			it.URL = d.URL
		}
	default:
		return forum.Item{}, false
	}
	return it, true
}

// replies decodes the nested reply listing, which the API sends as an
// empty string when there are none.
func (d thingData) replies() []thing {
	raw := bytes.TrimSpace(d.Replies)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var l listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil
	}
	return l.Data.Children
}

// flatten walks a comment tree depth first.
func flatten(things []thing, out []forum.Item) []forum.Item {
	for _, t := range things {
		if t.Kind != "t1" {
			continue
		}
		if it, ok := t.item(); ok {
			out = append(out, it)
		}
		out = flatten(t.Data.replies(), out)
	}
	return out
}

type apiErrors struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

func (e apiErrors) err() error {
	if len(e.JSON.Errors) == 0 {
		return nil
	}
	parts := make([]string, 0, len(e.JSON.Errors))
	for _, fields := range e.JSON.Errors {
		strs := make([]string, 0, len(fields))
		for _, f := range fields {
			if s, ok := f.(string); ok && s != "" {
				strs = append(strs, s)
			}
		}
		parts = append(parts, strings.Join(strs, ": "))
	}
	return &APIError{Message: strings.Join(parts, "; ")}
}

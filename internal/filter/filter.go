// Package filter decides which existing posts and comments an account may
// act on.
package filter

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/TobiSchelling/subsim/internal/forum"
)

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Item      forum.Item
	Accepted  bool
	Reason    string
	Satisfied []string
}

// Rule checks one property of a candidate. Check returns an empty string
// when the item passes, otherwise a human-readable reason.
type Rule interface {
	Name() string
	Check(it forum.Item, rng *rand.Rand) string
}

// Settings configure the rule set.
type Settings struct {
	Owner          string
	IgnoredUsers   []string
	MinUpvoteRatio float64
	MinScore       int
}

// Filter evaluates rules in order and stops at the first failure.
type Filter struct {
	rules []Rule
	rng   *rand.Rand
}

// New returns a filter over the given rules.
func New(rng *rand.Rand, rules ...Rule) *Filter {
	return &Filter{rules: rules, rng: rng}
}

// ForComments returns the full rule set used to pick a post to comment on.
func ForComments(s Settings, rng *rand.Rand) *Filter {
	minScore := s.MinScore
	if minScore == 0 {
		minScore = 1
	}
	return New(rng,
		NotLocked{},
		MinUpvoteRatio{Min: s.MinUpvoteRatio},
		ScoreRange{Min: minScore, MaxLow: 10, MaxHigh: 30},
		CommentCountRange{MinLow: 0, MinHigh: 3, MaxLow: 10, MaxHigh: 30},
		NewAuthorNotExcluded(s.Owner, s.IgnoredUsers),
	)
}

// ForVotes returns the rule set used for vote targets.
func ForVotes(s Settings, rng *rand.Rand) *Filter {
	return New(rng,
		NotLocked{},
		NewAuthorNotExcluded(s.Owner, s.IgnoredUsers),
	)
}

// Accept evaluates one candidate. Random bounds are drawn on every call.
func (f *Filter) Accept(it forum.Item) Decision {
	d := Decision{Item: it}
	for _, r := range f.rules {
		if reason := r.Check(it, f.rng); reason != "" {
			d.Reason = fmt.Sprintf("%s: %s", r.Name(), reason)
			return d
		}
		d.Satisfied = append(d.Satisfied, r.Name())
	}
	d.Accepted = true
	return d
}

// First returns the first accepted item and the decisions made on the way.
func (f *Filter) First(items []forum.Item) (*forum.Item, []Decision) {
	var decisions []Decision
	for i := range items {
		d := f.Accept(items[i])
		decisions = append(decisions, d)
		if d.Accepted {
			return &items[i], decisions
		}
	}
	return nil, decisions
}

// All returns every accepted item.
func (f *Filter) All(items []forum.Item) []forum.Item {
	var out []forum.Item
	for _, it := range items {
		if f.Accept(it).Accepted {
			out = append(out, it)
		}
	}
	return out
}

// NotLocked rejects locked items.
type NotLocked struct{}

func (NotLocked) Name() string { return "not_locked" }

func (NotLocked) Check(it forum.Item, _ *rand.Rand) string {
	if it.Locked {
		return "item is locked"
	}
	return ""
}

// MinUpvoteRatio rejects submissions with a low upvote ratio. Items that
// carry no ratio pass.
type MinUpvoteRatio struct {
	Min float64
}

func (MinUpvoteRatio) Name() string { return "upvote_ratio" }

func (r MinUpvoteRatio) Check(it forum.Item, _ *rand.Rand) string {
	if it.Kind == forum.KindComment || it.UpvoteRatio == 0 {
		return ""
	}
	if it.UpvoteRatio < r.Min {
		return fmt.Sprintf("ratio %.2f below %.2f", it.UpvoteRatio, r.Min)
	}
	return ""
}

// ScoreRange requires Min <= score <= max, where max is drawn uniformly
// from [MaxLow, MaxHigh] per check.
type ScoreRange struct {
	Min     int
	MaxLow  int
	MaxHigh int
}

func (ScoreRange) Name() string { return "score_range" }

func (r ScoreRange) Check(it forum.Item, rng *rand.Rand) string {
	hi := uniformInt(rng, r.MaxLow, r.MaxHigh)
	if it.Score < r.Min {
		return fmt.Sprintf("score %d below %d", it.Score, r.Min)
	}
	if it.Score > hi {
		return fmt.Sprintf("score %d above %d", it.Score, hi)
	}
	return ""
}

// CommentCountRange bounds a submission's comment count with both bounds
// drawn per check. Comments pass.
type CommentCountRange struct {
	MinLow, MinHigh int
	MaxLow, MaxHigh int
}

func (CommentCountRange) Name() string { return "comment_range" }

func (r CommentCountRange) Check(it forum.Item, rng *rand.Rand) string {
	if it.Kind == forum.KindComment {
		return ""
	}
	lo := uniformInt(rng, r.MinLow, r.MinHigh)
	hi := uniformInt(rng, r.MaxLow, r.MaxHigh)
	if it.NumComments < lo {
		return fmt.Sprintf("%d comments below %d", it.NumComments, lo)
	}
	if it.NumComments > hi {
		return fmt.Sprintf("%d comments above %d", it.NumComments, hi)
	}
	return ""
}

// AuthorNotExcluded rejects items by the owner or ignored users.
type AuthorNotExcluded struct {
	excluded map[string]struct{}
}

// NewAuthorNotExcluded builds the rule from the owner and ignore list.
func NewAuthorNotExcluded(owner string, ignored []string) AuthorNotExcluded {
	ex := make(map[string]struct{}, len(ignored)+1)
	if owner != "" {
		ex[strings.ToLower(owner)] = struct{}{}
	}
	for _, u := range ignored {
		ex[strings.ToLower(u)] = struct{}{}
	}
	return AuthorNotExcluded{excluded: ex}
}

func (AuthorNotExcluded) Name() string { return "author" }

func (r AuthorNotExcluded) Check(it forum.Item, _ *rand.Rand) string {
	if _, ok := r.excluded[strings.ToLower(it.Author)]; ok {
		return fmt.Sprintf("author %s is excluded", it.Author)
	}
	return ""
}

func uniformInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

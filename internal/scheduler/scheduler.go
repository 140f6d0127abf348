// Package scheduler picks which account performs the next action.
package scheduler

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/TobiSchelling/subsim/internal/database"
)

// Action is a kind of account activity.
type Action string

const (
	ActionComment    Action = "comment"
	ActionSubmission Action = "submission"
	ActionVote       Action = "vote"
)

// oldestFraction of eligible accounts, by last action, forms the pick pool.
const oldestFraction = 0.25

// Policy holds per-account limits.
type Policy struct {
	Cooldown       map[Action]time.Duration
	MinKarmaToVote int
}

// Scheduler selects accounts fairly: accounts that never acted go first,
// otherwise a random account among the least recently active.
type Scheduler struct {
	policy Policy
	rng    *rand.Rand
	now    func() time.Time
}

// New returns a Scheduler. now may be nil to use time.Now.
func New(policy Policy, rng *rand.Rand, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{policy: policy, rng: rng, now: now}
}

// LastAction returns when the account last performed the action.
func LastAction(a *database.Account, action Action) *time.Time {
	switch action {
	case ActionComment:
		return a.LastCommented
	case ActionSubmission:
		return a.LastSubmitted
	case ActionVote:
		return a.LastVoted
	}
	return nil
}

// Eligible reports whether the account may perform the action now.
func (s *Scheduler) Eligible(a *database.Account, action Action) bool {
	switch action {
	case ActionComment:
		if !a.CanComment {
			return false
		}
	case ActionSubmission:
		if !a.CanSubmit {
			return false
		}
	case ActionVote:
		if !a.CanComment && !a.CanSubmit {
			return false
		}
		if a.TotalKarma() < s.policy.MinKarmaToVote {
			return false
		}
	default:
		return false
	}

	last := LastAction(a, action)
	if last == nil {
		return true
	}
	return s.now().Sub(*last) >= s.policy.Cooldown[action]
}

// PickFor returns the account to act next, or nil when none is eligible.
func (s *Scheduler) PickFor(accounts []database.Account, action Action) *database.Account {
	var never, acted []*database.Account
	for i := range accounts {
		a := &accounts[i]
		if !s.Eligible(a, action) {
			continue
		}
		if LastAction(a, action) == nil {
			never = append(never, a)
		} else {
			acted = append(acted, a)
		}
	}

	if len(never) > 0 {
		return never[s.rng.IntN(len(never))]
	}
	if len(acted) == 0 {
		return nil
	}

	sort.SliceStable(acted, func(i, j int) bool {
		return LastAction(acted[i], action).Before(*LastAction(acted[j], action))
	})
	pool := int(float64(len(acted)) * oldestFraction)
	if pool == 0 {
		pool = len(acted)
	}
	return acted[s.rng.IntN(pool)]
}

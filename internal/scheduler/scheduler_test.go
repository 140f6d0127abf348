package scheduler

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/subsim/internal/database"
)

var now = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func newScheduler(seed uint64, p Policy) *Scheduler {
	return New(p, rand.New(rand.NewPCG(seed, seed)), func() time.Time { return now })
}

func TestNeverActedHasPriority(t *testing.T) {
	s := newScheduler(1, Policy{})
	accounts := []database.Account{
		{Name: "old", CanComment: true, LastCommented: at(48 * time.Hour)},
		{Name: "fresh", CanComment: true},
		{Name: "older", CanComment: true, LastCommented: at(72 * time.Hour)},
	}
	for i := 0; i < 200; i++ {
		a := s.PickFor(accounts, ActionComment)
		require.NotNil(t, a)
		assert.Equal(t, "fresh", a.Name)
	}
}

func TestNeverActedPickedUniformly(t *testing.T) {
	s := newScheduler(2, Policy{})
	accounts := []database.Account{
		{Name: "a", CanComment: true},
		{Name: "b", CanComment: true},
	}
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		seen[s.PickFor(accounts, ActionComment).Name]++
	}
	assert.Greater(t, seen["a"], 0)
	assert.Greater(t, seen["b"], 0)
}

func TestMostRecentNeverPicked(t *testing.T) {
	s := newScheduler(3, Policy{})
	var accounts []database.Account
	for i := 0; i < 5; i++ {
		accounts = append(accounts, database.Account{
			Name:          fmt.Sprintf("acct%d", i),
			CanComment:    true,
			LastCommented: at(time.Duration(i+1) * time.Hour),
		})
	}
	// acct0 acted most recently. With five accounts the pool is the single oldest.
	for i := 0; i < 200; i++ {
		a := s.PickFor(accounts, ActionComment)
		require.NotNil(t, a)
		assert.NotEqual(t, "acct0", a.Name)
		assert.Equal(t, "acct4", a.Name)
	}
}

func TestOldestQuarterPool(t *testing.T) {
	s := newScheduler(4, Policy{})
	var accounts []database.Account
	for i := 0; i < 8; i++ {
		accounts = append(accounts, database.Account{
			Name:          fmt.Sprintf("acct%d", i),
			CanSubmit:     true,
			LastSubmitted: at(time.Duration(i+1) * time.Hour),
		})
	}
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		seen[s.PickFor(accounts, ActionSubmission).Name]++
	}
	assert.Len(t, seen, 2)
	assert.Greater(t, seen["acct7"], 0)
	assert.Greater(t, seen["acct6"], 0)
}

func TestSmallPoolUsesAll(t *testing.T) {
	s := newScheduler(5, Policy{})
	accounts := []database.Account{
		{Name: "a", CanComment: true, LastCommented: at(time.Hour)},
		{Name: "b", CanComment: true, LastCommented: at(2 * time.Hour)},
	}
	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		seen[s.PickFor(accounts, ActionComment).Name]++
	}
	assert.Len(t, seen, 2)
}

func TestCapabilityFlags(t *testing.T) {
	s := newScheduler(6, Policy{})
	accounts := []database.Account{
		{Name: "mod"},
		{Name: "commenter", CanComment: true},
	}
	assert.Nil(t, s.PickFor(accounts, ActionSubmission))
	assert.Equal(t, "commenter", s.PickFor(accounts, ActionComment).Name)
	assert.Equal(t, "commenter", s.PickFor(accounts, ActionVote).Name)
}

func TestCooldown(t *testing.T) {
	s := newScheduler(7, Policy{Cooldown: map[Action]time.Duration{ActionComment: time.Hour}})
	accounts := []database.Account{
		{Name: "recent", CanComment: true, LastCommented: at(30 * time.Minute)},
	}
	assert.Nil(t, s.PickFor(accounts, ActionComment))

	accounts[0].LastCommented = at(time.Hour)
	assert.NotNil(t, s.PickFor(accounts, ActionComment))
}

func TestVoteKarmaGate(t *testing.T) {
	s := newScheduler(8, Policy{MinKarmaToVote: 10})
	accounts := []database.Account{
		{Name: "poor", CanComment: true, CommentKarma: 5, LinkKarma: 4},
		{Name: "rich", CanComment: true, CommentKarma: 5, LinkKarma: 5},
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, "rich", s.PickFor(accounts, ActionVote).Name)
	}
}

func TestNoAccounts(t *testing.T) {
	s := newScheduler(9, Policy{})
	assert.Nil(t, s.PickFor(nil, ActionComment))
	assert.False(t, s.Eligible(&database.Account{CanComment: true}, Action("dance")))
}

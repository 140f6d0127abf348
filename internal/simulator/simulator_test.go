package simulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/forum"
	"github.com/TobiSchelling/subsim/internal/markov"
)

func commenter(name, sub string) database.Account {
	return database.Account{Name: name, Password: "pw", Subreddit: sub, CanComment: true, AddedAt: t0}
}

func submitter(name, sub string) database.Account {
	return database.Account{Name: name, Password: "pw", Subreddit: sub, CanSubmit: true, AddedAt: t0}
}

func TestCommentEndToEnd(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	rng := seeded(1)
	h.sess.recent["askreddit"] = map[forum.Kind][]forum.Item{
		forum.KindComment: sourceComments(rng, 50),
	}
	post := forum.Item{ID: "p1", Kind: forum.KindSubmission, Author: "someone", Score: 5, NumComments: 5, UpvoteRatio: 0.9}
	h.sess.top[forum.PeriodDay] = []forum.Item{post}
	h.sess.replies["p1"] = []forum.Item{{ID: "r1", Kind: forum.KindComment, Author: "someone"}}
	h.sess.profile = forum.Profile{Name: "askreddit_ss", CommentKarma: 7, LinkKarma: 2}

	tr, err := h.sim.Force(context.Background(), KindComment)
	require.NoError(t, err)
	require.Len(t, tr.Attempts, 1)
	res := tr.Attempts[0]
	require.True(t, res.Success, "attempt failed: %v", res.Err)
	assert.Equal(t, "askreddit_ss", res.Account)

	require.Len(t, h.sess.replied, 1)
	r := h.sess.replied[0]
	assert.NotEmpty(t, strings.TrimSpace(r.Text))
	assert.Contains(t, []string{"t3_p1", "t1_r1"}, r.Target.Fullname())

	n, err := h.db.CountComments("askreddit")
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	acct, err := h.db.GetAccount("askreddit_ss")
	require.NoError(t, err)
	assert.Equal(t, 1, acct.NumComments)
	require.NotNil(t, acct.LastCommented)
	assert.True(t, acct.LastCommented.Equal(t0))
	assert.Equal(t, 7, acct.CommentKarma)
	assert.Equal(t, 2, acct.LinkKarma)

	settings, err := h.db.GetAllSettings()
	require.NoError(t, err)
	assert.Equal(t, float64(t0.Unix()), settings[KeyLastComment])

	actions, err := h.db.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Success)
	assert.Equal(t, tr.ID, actions[0].TickID)
}

func TestCommentNoEligibleAccount(t *testing.T) {
	h := newHarness(t, nil, submitter("til_ss", "todayilearned"))

	res := h.sim.Attempt(context.Background(), KindComment)
	assert.False(t, res.Success)
	assert.True(t, res.Skipped())
	assert.ErrorIs(t, res.Err, ErrNoEligibleAccount)
	assert.Empty(t, h.sessions.creds, "no session is opened")
}

func TestCommentNoSuitableCandidate(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	h.sess.recent["askreddit"] = map[forum.Kind][]forum.Item{
		forum.KindComment: sourceComments(seeded(2), 30),
	}
	locked := forum.Item{ID: "p1", Kind: forum.KindSubmission, Score: 5, NumComments: 5, Locked: true}
	h.sess.top[forum.PeriodDay] = []forum.Item{locked}
	h.sess.top[forum.PeriodAll] = []forum.Item{locked}

	res := h.sim.Attempt(context.Background(), KindComment)
	assert.ErrorIs(t, res.Err, ErrNoSuitableCandidate)
	assert.Contains(t, h.sess.calls, "top:day")
	assert.Contains(t, h.sess.calls, "top:all")
	assert.Empty(t, h.sess.replied)
}

func TestCommentInsufficientData(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))

	res := h.sim.Attempt(context.Background(), KindComment)
	assert.False(t, res.Success)
	assert.False(t, res.Skipped())
	assert.Contains(t, res.Detail, "insufficient data")
}

func TestCommentSingleTokenCorpus(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	var spam []forum.Item
	for i := 0; i < 20; i++ {
		spam = append(spam, forum.Item{
			ID:        fmt.Sprintf("c%d", 20-i),
			Kind:      forum.KindComment,
			Author:    "someone",
			Body:      "spam",
			CreatedAt: t0.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	h.sess.recent["askreddit"] = map[forum.Kind][]forum.Item{forum.KindComment: spam}
	h.sess.top[forum.PeriodDay] = []forum.Item{{ID: "p1", Kind: forum.KindSubmission, Author: "someone", Score: 5, NumComments: 5}}

	res := h.sim.Attempt(context.Background(), KindComment)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, markov.ErrInsufficientData)
	assert.Empty(t, h.sess.replied)
}

func TestCommentPublishError(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	h.sess.recent["askreddit"] = map[forum.Kind][]forum.Item{
		forum.KindComment: sourceComments(seeded(3), 40),
	}
	h.sess.top[forum.PeriodDay] = []forum.Item{{ID: "p2", Kind: forum.KindSubmission, Score: 5, NumComments: 5}}
	h.sess.replies["p2"] = []forum.Item{{ID: "r1", Kind: forum.KindComment}}
	boom := errors.New("forbidden")
	h.sess.replyErr = boom

	res := h.sim.Attempt(context.Background(), KindComment)
	var pe *PublishError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "reply", pe.Op)
	assert.ErrorIs(t, res.Err, boom)

	acct, err := h.db.GetAccount("askreddit_ss")
	require.NoError(t, err)
	assert.Equal(t, 0, acct.NumComments)
}

func TestSubmissionSelfPost(t *testing.T) {
	h := newHarness(t, nil, submitter("til_ss", "todayilearned"))
	h.sess.recent["todayilearned"] = map[forum.Kind][]forum.Item{
		forum.KindSubmission: sourceSubmissions(seeded(4), 40, false),
	}

	res := h.sim.Attempt(context.Background(), KindSubmission)
	require.True(t, res.Success, "attempt failed: %v", res.Err)

	require.Len(t, h.sess.submitted, 1)
	post := h.sess.submitted[0]
	assert.NotEmpty(t, post.Title)
	assert.False(t, strings.HasSuffix(post.Title, "."))
	assert.Empty(t, post.URL)
	assert.Equal(t, " ", post.Body, "short self-texts train no body model")

	acct, err := h.db.GetAccount("til_ss")
	require.NoError(t, err)
	assert.Equal(t, 1, acct.NumSubmissions)
}

func TestSubmissionLinkPost(t *testing.T) {
	h := newHarness(t, nil, submitter("til_ss", "todayilearned"))
	h.sess.recent["todayilearned"] = map[forum.Kind][]forum.Item{
		forum.KindSubmission: sourceSubmissions(seeded(5), 20, true),
	}
	h.links.alive["https://example.com/3"] = true

	res := h.sim.Attempt(context.Background(), KindSubmission)
	require.True(t, res.Success, "attempt failed: %v", res.Err)

	require.Len(t, h.sess.submitted, 1)
	assert.Equal(t, "https://example.com/3", h.sess.submitted[0].URL)
	require.Len(t, h.links.asked, 1)
	assert.Len(t, h.links.asked[0], 20)
}

func TestSubmissionLinkPostRecordsPageTitle(t *testing.T) {
	h := newHarness(t, nil, submitter("til_ss", "todayilearned"))
	h.sess.recent["todayilearned"] = map[forum.Kind][]forum.Item{
		forum.KindSubmission: sourceSubmissions(seeded(5), 20, true),
	}
	h.links.alive["https://example.com/7"] = true
	h.links.titles["https://example.com/7"] = "Seven Quiet Rivers"

	tr, err := h.sim.Force(context.Background(), KindSubmission)
	require.NoError(t, err)
	res := tr.Attempts[0]
	require.True(t, res.Success, "attempt failed: %v", res.Err)
	require.Len(t, h.sess.submitted, 1)
	assert.Equal(t, "https://example.com/7", h.sess.submitted[0].URL)
	assert.Contains(t, res.Detail, "https://example.com/7")
	assert.Contains(t, res.Detail, `"Seven Quiet Rivers"`)

	actions, err := h.db.RecentActions(1)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Contains(t, actions[0].Detail, "Seven Quiet Rivers")
}

func TestSubmissionDeadLinksFallBackToSelfPost(t *testing.T) {
	h := newHarness(t, nil, submitter("til_ss", "todayilearned"))
	h.sess.recent["todayilearned"] = map[forum.Kind][]forum.Item{
		forum.KindSubmission: sourceSubmissions(seeded(6), 20, true),
	}

	res := h.sim.Attempt(context.Background(), KindSubmission)
	require.True(t, res.Success, "attempt failed: %v", res.Err)
	require.Len(t, h.sess.submitted, 1)
	assert.Empty(t, h.sess.submitted[0].URL)
	assert.Equal(t, " ", h.sess.submitted[0].Body)
}

func voteHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	sub := func(id string, locked bool) forum.Item {
		return forum.Item{ID: id, Kind: forum.KindSubmission, Author: "someone", Locked: locked}
	}
	h.sess.top[forum.PeriodDay] = []forum.Item{
		sub("p1", false), sub("p2", false), sub("p3", false), sub("p4", true),
		{ID: "p5", Kind: forum.KindSubmission, Author: "Owner"},
	}
	h.sess.hot = []forum.Item{sub("p1", false), sub("h1", false), sub("h2", false), sub("h3", false)}
	var comments []forum.Item
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"} {
		comments = append(comments, forum.Item{ID: id, Kind: forum.KindComment, Author: "someone"})
	}
	h.sess.recent["sim"] = map[forum.Kind][]forum.Item{forum.KindComment: comments}
	return h
}

func TestVote(t *testing.T) {
	h := voteHarness(t)

	res := h.sim.Attempt(context.Background(), KindVote)
	require.True(t, res.Success, "attempt failed: %v", res.Err)
	require.Len(t, h.sess.votes, 10)

	targets := make(map[string]bool)
	for _, v := range h.sess.votes {
		targets[v.Target.Fullname()] = true
		assert.Contains(t, []int{1, -1}, v.Direction)
	}
	assert.Len(t, targets, 10, "no item is voted twice")
	for _, want := range []string{"t3_p1", "t3_p2", "t3_p3", "t3_h1", "t3_h2", "t1_c1", "t1_c5"} {
		assert.True(t, targets[want], "expected vote on %s", want)
	}
	for _, never := range []string{"t3_p4", "t3_p5", "t3_h3", "t1_c6"} {
		assert.False(t, targets[never], "unexpected vote on %s", never)
	}

	acct, err := h.db.GetAccount("askreddit_ss")
	require.NoError(t, err)
	assert.Equal(t, 10, acct.NumVotes)
	assert.NotNil(t, acct.LastVoted)
}

func TestVoteFailsFast(t *testing.T) {
	h := voteHarness(t)
	h.sess.voteErr = errors.New("rate limited")

	res := h.sim.Attempt(context.Background(), KindVote)
	var pe *PublishError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "vote", pe.Op)

	voteCalls := 0
	for _, c := range h.sess.calls {
		if c == "vote" {
			voteCalls++
		}
	}
	assert.Equal(t, 1, voteCalls)

	acct, err := h.db.GetAccount("askreddit_ss")
	require.NoError(t, err)
	assert.Equal(t, 0, acct.NumVotes)
	assert.Nil(t, acct.LastVoted)
}

func TestVoteLaterFailureRecordsNothing(t *testing.T) {
	h := voteHarness(t)
	h.sess.voteErr = errors.New("rate limited")
	h.sess.voteFailAt = 3

	res := h.sim.Attempt(context.Background(), KindVote)
	assert.False(t, res.Success)
	var pe *PublishError
	require.ErrorAs(t, res.Err, &pe)
	assert.Len(t, h.sess.votes, 2, "votes before the failure went out")
	assert.Equal(t, 3, h.sess.voteCalls, "no vote after the failure")

	acct, err := h.db.GetAccount("askreddit_ss")
	require.NoError(t, err)
	assert.Equal(t, 0, acct.NumVotes)
	assert.Nil(t, acct.LastVoted)
	assert.Nil(t, h.sim.accounts[0].LastVoted)
}

func TestVoteKarmaGate(t *testing.T) {
	h := voteHarness(t)
	_, err := h.db.SeedSettings(map[string]any{"min_karma_to_vote": 5})
	require.NoError(t, err)

	res := h.sim.Attempt(context.Background(), KindVote)
	assert.True(t, res.Skipped())
	assert.Empty(t, h.sess.votes)
}

func TestAttemptKeepsAccountsCurrent(t *testing.T) {
	h := newHarness(t, nil, commenter("a_ss", "askreddit"), commenter("b_ss", "askreddit"))
	h.sess.recent["askreddit"] = map[forum.Kind][]forum.Item{
		forum.KindComment: sourceComments(seeded(8), 50),
	}
	h.sess.top[forum.PeriodDay] = []forum.Item{{ID: "p1", Kind: forum.KindSubmission, Author: "someone", Score: 5, NumComments: 5}}
	h.sess.replies["p1"] = []forum.Item{{ID: "r1", Kind: forum.KindComment, Author: "someone"}}

	var picked []string
	for i := 0; i < 2; i++ {
		res := h.sim.Attempt(context.Background(), KindComment)
		require.True(t, res.Success, "attempt %d failed: %v", i, res.Err)
		picked = append(picked, res.Account)
		h.now = h.now.Add(time.Minute)
	}
	assert.ElementsMatch(t, []string{"a_ss", "b_ss"}, picked, "never-acted account goes next")

	for _, a := range h.sim.accounts {
		require.NotNil(t, a.LastCommented, "%s", a.Name)
		assert.Equal(t, 1, a.NumComments, "%s", a.Name)
	}
}

func TestAttemptRecoversPanic(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	h.sessions.panic = true

	res := h.sim.Attempt(context.Background(), KindComment)
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "session pool exploded")
}

func TestAttemptSessionError(t *testing.T) {
	h := newHarness(t, nil, commenter("askreddit_ss", "askreddit"))
	h.sessions.err = errors.New("bad password")

	res := h.sim.Attempt(context.Background(), KindComment)
	assert.False(t, res.Success)
	assert.Equal(t, "askreddit_ss", res.Account)
	assert.Contains(t, res.Detail, "bad password")
	require.Len(t, h.sessions.creds, 1)
	assert.Equal(t, forum.Credentials{Username: "askreddit_ss", Password: "pw"}, h.sessions.creds[0])
}

func TestTickRespectsDelays(t *testing.T) {
	h := newHarness(t, map[string]any{
		KeyLastUpdate:  t0.Add(-time.Minute).Unix(),
		KeyLastComment: t0.Add(-time.Hour).Unix(),
	})

	tr, err := h.sim.Tick(context.Background())
	require.NoError(t, err)

	var kinds []Kind
	for _, a := range tr.Attempts {
		kinds = append(kinds, a.Kind)
		assert.True(t, a.Skipped(), "%s: %v", a.Kind, a.Err)
	}
	assert.Equal(t, []Kind{KindComment, KindSubmission, KindVote}, kinds)

	settings, err := h.db.GetAllSettings()
	require.NoError(t, err)
	assert.Equal(t, float64(t0.Add(-time.Hour).Unix()), settings[KeyLastComment], "skips do not advance delays")
	_, ok := settings[KeyLastVote]
	assert.False(t, ok)

	actions, err := h.db.RecentActions(10)
	require.NoError(t, err)
	assert.Len(t, actions, 3)
}

func TestTickStopsWhenCancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr, err := h.sim.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, tr.Attempts)
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t, map[string]any{"main_loop_delay_seconds": 3600})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.sim.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("vote")
	require.NoError(t, err)
	assert.Equal(t, KindVote, k)

	_, err = ParseKind("dance")
	assert.Error(t, err)
}

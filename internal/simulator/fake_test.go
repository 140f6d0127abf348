package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/corpus"
	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/fetch"
	"github.com/TobiSchelling/subsim/internal/forum"
)

var t0 = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

type reply struct {
	Target forum.Item
	Text   string
}

type vote struct {
	Target    forum.Item
	Direction int
}

// fakeSession is an in-memory forum.Session that records every call.
type fakeSession struct {
	mu sync.Mutex

	recent      map[string]map[forum.Kind][]forum.Item
	top         map[forum.Period][]forum.Item
	hot         []forum.Item
	replies     map[string][]forum.Item
	description string
	profile     forum.Profile

	replyErr, submitErr, voteErr error
	// voteFailAt fails the nth Vote call (1-based) with voteErr.
	voteFailAt int
	voteCalls  int
	readDescErr, descErr         error
	flairErr                     error

	calls        []string
	replied      []reply
	submitted    []forum.Post
	votes        []vote
	descriptions []string
	flairs       [][]forum.Label
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		recent:  make(map[string]map[forum.Kind][]forum.Item),
		top:     make(map[forum.Period][]forum.Item),
		replies: make(map[string][]forum.Item),
	}
}

func (f *fakeSession) called(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *fakeSession) Recent(_ context.Context, community string, kind forum.Kind, limit int) ([]forum.Item, error) {
	f.called("recent:" + community + ":" + string(kind))
	items := f.recent[community][kind]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeSession) Top(_ context.Context, _ string, period forum.Period, limit int) ([]forum.Item, error) {
	f.called("top:" + string(period))
	items := append([]forum.Item(nil), f.top[period]...)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeSession) Hot(_ context.Context, _ string, limit int) ([]forum.Item, error) {
	f.called("hot")
	items := append([]forum.Item(nil), f.hot...)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeSession) Replies(_ context.Context, submissionID string) ([]forum.Item, error) {
	f.called("replies")
	return f.replies[submissionID], nil
}

func (f *fakeSession) Description(context.Context, string) (string, error) {
	f.called("description")
	return f.description, f.readDescErr
}

func (f *fakeSession) Reply(_ context.Context, target forum.Item, text string) error {
	f.called("reply")
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replied = append(f.replied, reply{Target: target, Text: text})
	return nil
}

func (f *fakeSession) Submit(_ context.Context, _ string, post forum.Post) error {
	f.called("submit")
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, post)
	return nil
}

func (f *fakeSession) Vote(_ context.Context, target forum.Item, direction int) error {
	f.called("vote")
	f.voteCalls++
	if f.voteErr != nil && (f.voteFailAt == 0 || f.voteCalls == f.voteFailAt) {
		return f.voteErr
	}
	f.votes = append(f.votes, vote{Target: target, Direction: direction})
	return nil
}

func (f *fakeSession) UpdateDescription(_ context.Context, _ string, text string) error {
	f.called("update_description")
	if f.descErr != nil {
		return f.descErr
	}
	f.descriptions = append(f.descriptions, text)
	f.description = text
	return nil
}

func (f *fakeSession) UpdateFlair(_ context.Context, _ string, labels []forum.Label) error {
	f.called("update_flair")
	if f.flairErr != nil {
		return f.flairErr
	}
	f.flairs = append(f.flairs, labels)
	return nil
}

func (f *fakeSession) Me(context.Context) (forum.Profile, error) {
	return f.profile, nil
}

// fakeSessions hands out the same session for every account.
type fakeSessions struct {
	sess  *fakeSession
	err   error
	panic bool
	creds []forum.Credentials
}

func (f *fakeSessions) Session(_ context.Context, creds forum.Credentials) (forum.Session, error) {
	if f.panic {
		panic("session pool exploded")
	}
	f.creds = append(f.creds, creds)
	if f.err != nil {
		return nil, f.err
	}
	return f.sess, nil
}

type fakeLinks struct {
	alive  map[string]bool
	titles map[string]string
	asked  [][]string
}

func (f *fakeLinks) FirstAlive(_ context.Context, candidates []string) *fetch.Link {
	f.asked = append(f.asked, candidates)
	for _, c := range candidates {
		if f.alive[c] {
			return &fetch.Link{URL: c, Alive: true, Status: 200, Title: f.titles[c]}
		}
	}
	return nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// harness wires a simulator to a temp database and a fake platform.
type harness struct {
	db       *database.DB
	sess     *fakeSession
	sessions *fakeSessions
	links    *fakeLinks
	sim      *Simulator
	now      time.Time
}

func newHarness(t *testing.T, settings map[string]any, accounts ...database.Account) *harness {
	t.Helper()
	db := openTestDB(t)

	base := map[string]any{
		"subreddit": "sim",
		"owner":     "owner",
		"moderator": "simmod",
	}
	for k, v := range settings {
		base[k] = v
	}
	if _, err := db.SeedSettings(base); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}
	for _, a := range accounts {
		if err := db.UpsertAccount(a); err != nil {
			t.Fatalf("adding account: %v", err)
		}
	}

	h := &harness{
		db:    db,
		sess:  newFakeSession(),
		links: &fakeLinks{alive: make(map[string]bool), titles: make(map[string]string)},
		now:   t0,
	}
	h.sessions = &fakeSessions{sess: h.sess}
	store := corpus.New(db, zap.NewNop(), 100)
	h.sim = New(db, store, h.sessions, h.links, zap.NewNop(),
		WithRand(seeded(7)),
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

var vocab = []string{"apple", "river", "stone", "cloud", "green", "quiet", "light", "north", "paper", "smile"}

func sentence(rng *rand.Rand, words int) string {
	w := make([]string, words)
	for i := range w {
		w[i] = vocab[rng.IntN(len(vocab))]
	}
	w[0] = strings.ToUpper(w[0][:1]) + w[0][1:]
	return strings.Join(w, " ") + "."
}

// sourceComments returns n newest-first comments of two sentences each.
func sourceComments(rng *rand.Rand, n int) []forum.Item {
	items := make([]forum.Item, n)
	for i := range items {
		items[i] = forum.Item{
			ID:        fmt.Sprintf("c%d", n-i),
			Kind:      forum.KindComment,
			Author:    "someone",
			Body:      sentence(rng, 8) + " " + sentence(rng, 8),
			CreatedAt: t0.Add(-time.Duration(i+1) * time.Minute),
		}
	}
	return items
}

// sourceSubmissions returns n newest-first submissions, links when link
// is set, else self posts.
func sourceSubmissions(rng *rand.Rand, n int, link bool) []forum.Item {
	items := make([]forum.Item, n)
	for i := range items {
		it := forum.Item{
			ID:        fmt.Sprintf("s%d", n-i),
			Kind:      forum.KindSubmission,
			Author:    "someone",
			Title:     strings.TrimSuffix(sentence(rng, 7), "."),
			CreatedAt: t0.Add(-time.Duration(i+1) * time.Minute),
		}
		if link {
			it.URL = fmt.Sprintf("https://example.com/%d", n-i)
		} else {
			it.IsSelf = true
			it.Body = "Short text."
		}
		items[i] = it
	}
	return items
}

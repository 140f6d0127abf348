package database

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)

func TestInsertComment(t *testing.T) {
	db := openTestDB(t)
	ok, err := db.InsertComment(Comment{ID: "c1", Subreddit: "pics", Author: "a", Body: "Nice photo.", CreatedAt: t0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected comment to be inserted")
	}
}

func TestInsertDuplicateComment(t *testing.T) {
	db := openTestDB(t)
	_, _ = db.InsertComment(Comment{ID: "dup", Subreddit: "pics", Body: "First", CreatedAt: t0})
	ok, err := db.InsertComment(Comment{ID: "dup", Subreddit: "pics", Body: "Second", CreatedAt: t0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected duplicate to be ignored")
	}

	c, _ := db.NewestComment("pics")
	if c == nil || c.Body != "First" {
		t.Errorf("expected original body to be kept, got %+v", c)
	}
}

func TestNewestComment(t *testing.T) {
	db := openTestDB(t)
	if c, err := db.NewestComment("pics"); err != nil || c != nil {
		t.Fatalf("expected nil for empty subreddit, got %+v, %v", c, err)
	}

	db.InsertComment(Comment{ID: "old", Subreddit: "pics", Body: "x", CreatedAt: t0})
	db.InsertComment(Comment{ID: "new", Subreddit: "pics", Body: "y", CreatedAt: t0.Add(time.Hour)})
	db.InsertComment(Comment{ID: "other", Subreddit: "news", Body: "z", CreatedAt: t0.Add(2 * time.Hour)})

	c, err := db.NewestComment("pics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != "new" {
		t.Errorf("expected 'new', got %q", c.ID)
	}
	if !c.CreatedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected created_at round trip, got %v", c.CreatedAt)
	}
}

func TestRandomCommentsFilter(t *testing.T) {
	db := openTestDB(t)
	db.InsertComment(Comment{ID: "1", Subreddit: "pics", Author: "alice", Body: "keep me", CreatedAt: t0})
	db.InsertComment(Comment{ID: "2", Subreddit: "pics", Author: "AutoModerator", Body: "bot text", CreatedAt: t0})
	db.InsertComment(Comment{ID: "3", Subreddit: "pics", Author: "bob", Body: "hey +/u/user_simulator", CreatedAt: t0})
	db.InsertComment(Comment{ID: "4", Subreddit: "news", Author: "carol", Body: "elsewhere", CreatedAt: t0})

	got, err := db.RandomComments("pics", 10, SampleFilter{
		ExcludeAuthors: []string{"automoderator"},
		ExcludePhrases: []string{"+/u/user_simulator"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("expected only comment 1, got %+v", got)
	}
}

func TestRandomCommentsLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 20; i++ {
		db.InsertComment(Comment{ID: fmt.Sprintf("c%d", i), Subreddit: "pics", Body: "text", CreatedAt: t0})
	}
	got, err := db.RandomComments("pics", 5, SampleFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 comments, got %d", len(got))
	}
	n, _ := db.CountComments("pics")
	if n != 20 {
		t.Errorf("expected 20 stored, got %d", n)
	}
}

func TestRandomSubmissionsExcludeOver18(t *testing.T) {
	db := openTestDB(t)
	db.InsertSubmission(Submission{ID: "s1", Subreddit: "pics", Title: "Safe", IsSelf: true, CreatedAt: t0})
	db.InsertSubmission(Submission{ID: "s2", Subreddit: "pics", Title: "Spicy", URL: "https://x.com", Over18: true, CreatedAt: t0})

	got, err := db.RandomSubmissions("pics", 10, SampleFilter{ExcludeOver18: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Errorf("expected only s1, got %+v", got)
	}
	if !got[0].IsSelf {
		t.Error("expected is_self to round trip")
	}

	newest, _ := db.NewestSubmission("pics")
	if newest == nil {
		t.Fatal("expected newest submission")
	}
}

func TestAccountLifecycle(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertAccount(Account{Name: "bot_ss", Subreddit: "pics", CanComment: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := db.GetAccount("bot_ss")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("expected account")
	}
	if a.LastCommented != nil {
		t.Error("expected never-commented account")
	}
	if a.CanSubmit {
		t.Error("expected can_submit false")
	}

	if err := db.RecordComment("bot_ss", t0); err != nil {
		t.Fatalf("RecordComment: %v", err)
	}
	// An older timestamp must not move last_commented backwards.
	if err := db.RecordComment("bot_ss", t0.Add(-time.Hour)); err != nil {
		t.Fatalf("RecordComment: %v", err)
	}

	a, _ = db.GetAccount("bot_ss")
	if a.NumComments != 2 {
		t.Errorf("expected 2 comments, got %d", a.NumComments)
	}
	if a.LastCommented == nil || !a.LastCommented.Equal(t0) {
		t.Errorf("expected last_commented %v, got %v", t0, a.LastCommented)
	}

	// Upsert must not reset counters.
	db.UpsertAccount(Account{Name: "bot_ss", Subreddit: "news", CanComment: true, CanSubmit: true})
	a, _ = db.GetAccount("bot_ss")
	if a.NumComments != 2 || a.Subreddit != "news" || !a.CanSubmit {
		t.Errorf("unexpected account after upsert: %+v", a)
	}
}

func TestRecordUnknownAccount(t *testing.T) {
	db := openTestDB(t)
	if err := db.RecordVotes("ghost", 3, t0); err == nil {
		t.Error("expected error for unknown account")
	}
}

func TestMeanKarma(t *testing.T) {
	a := Account{CommentKarma: 10, NumComments: 3, LinkKarma: 5}
	if a.MeanCommentKarma() != 3.33 {
		t.Errorf("expected 3.33, got %v", a.MeanCommentKarma())
	}
	if a.MeanLinkKarma() != 0 {
		t.Errorf("expected 0 with no submissions, got %v", a.MeanLinkKarma())
	}
	if a.TotalKarma() != 15 {
		t.Errorf("expected 15, got %d", a.TotalKarma())
	}
}

func TestLeaderboard(t *testing.T) {
	db := openTestDB(t)
	db.UpsertAccount(Account{Name: "low", Subreddit: "a", CanComment: true})
	db.UpsertAccount(Account{Name: "high", Subreddit: "b", CanComment: true})
	db.UpsertAccount(Account{Name: "mod", Subreddit: "sim"})
	db.RecordComment("low", t0)
	db.RecordComment("high", t0)
	db.UpdateKarma("low", 1, 0)
	db.UpdateKarma("high", 50, 0)

	board, err := db.Leaderboard(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 ranked accounts, got %d", len(board))
	}
	if board[0].Name != "high" {
		t.Errorf("expected 'high' first, got %q", board[0].Name)
	}
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSetting("comment_delay_seconds", 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.UpsertSetting("ignored_users", []string{"automoderator"})

	n, err := db.SeedSettings(map[string]any{
		"comment_delay_seconds": 30,
		"voting_delay_seconds":  60,
	})
	if err != nil {
		t.Fatalf("SeedSettings: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 seeded setting, got %d", n)
	}

	settings, err := db.GetAllSettings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings["comment_delay_seconds"] != float64(600) {
		t.Errorf("expected stored value to win, got %v", settings["comment_delay_seconds"])
	}
	if settings["voting_delay_seconds"] != float64(60) {
		t.Errorf("expected seeded value 60, got %v", settings["voting_delay_seconds"])
	}
	users, ok := settings["ignored_users"].([]any)
	if !ok || len(users) != 1 || users[0] != "automoderator" {
		t.Errorf("expected list setting, got %v", settings["ignored_users"])
	}
}

func TestActionLogAndStats(t *testing.T) {
	db := openTestDB(t)
	name := "bot_ss"
	db.UpsertAccount(Account{Name: name, Subreddit: "pics", CanComment: true})
	db.InsertAction(ActionLog{TickID: "t1", Kind: "comment", Account: &name, Success: true, Detail: "ok", ActedAt: t0})
	db.InsertAction(ActionLog{TickID: "t1", Kind: "vote", Success: false, Detail: "no account", ActedAt: t0.Add(time.Second)})

	recent, err := db.RecentActions(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 2 || recent[0].Kind != "vote" {
		t.Errorf("expected newest first, got %+v", recent)
	}
	if recent[0].Account != nil {
		t.Error("expected nil account for skipped vote")
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Accounts != 1 || stats.Actions != 2 || stats.SuccessfulActions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

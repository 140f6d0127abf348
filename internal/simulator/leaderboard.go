package simulator

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/forum"
)

const (
	LeaderboardStart = "[](/leaderboard-start)"
	LeaderboardEnd   = "[](/leaderboard-end)"
	// LeaderboardRows caps the table; flair is set for every ranked account.
	LeaderboardRows = 100
)

var leaderboardSection = regexp.MustCompile(
	`(?is)` + regexp.QuoteMeta(LeaderboardStart) + `.*?` + regexp.QuoteMeta(LeaderboardEnd),
)

// LeaderboardTable renders ranked accounts as a markdown table.
func LeaderboardTable(ranked []database.Account, limit int) string {
	var b strings.Builder
	b.WriteString("\\#|Account|Avg Karma|\\#Com|\\#Sub|SR\n--:|:--|--:|--:|--:|:--")
	for i := range ranked {
		if limit > 0 && i >= limit {
			break
		}
		a := &ranked[i]
		fmt.Fprintf(&b, "\n%d|/u/%s|%.2f|%d|%d|/r/%s",
			i+1, a.Name, a.MeanCommentKarma(), a.NumComments, a.NumSubmissions, a.Subreddit)
	}
	return b.String()
}

// ReplaceLeaderboard swaps the delimited section of a sidebar for table.
// The section is appended when the sidebar has no delimiters.
func ReplaceLeaderboard(sidebar, table string) string {
	section := LeaderboardStart + "\n\n" + table + "\n\n" + LeaderboardEnd
	if leaderboardSection.MatchString(sidebar) {
		return leaderboardSection.ReplaceAllLiteralString(sidebar, section)
	}
	sidebar = strings.TrimRight(sidebar, " \t\r\n")
	if sidebar == "" {
		return section
	}
	return sidebar + "\n\n" + section
}

// FlairLabels ranks every account as "#rank / total (mean)".
func FlairLabels(ranked []database.Account) []forum.Label {
	labels := make([]forum.Label, len(ranked))
	for i := range ranked {
		a := &ranked[i]
		labels[i] = forum.Label{
			User: a.Name,
			Text: fmt.Sprintf("#%d / %d (%.2f)", i+1, len(ranked), a.MeanCommentKarma()),
		}
	}
	return labels
}

// leaderboard rewrites the sidebar then the flair, as the moderator. A
// flair failure leaves the new sidebar in place.
func (s *Simulator) leaderboard(ctx context.Context) (string, string, error) {
	mod := s.moderator()
	if mod == nil {
		return "", "", fmt.Errorf("moderator %q: %w", s.settings.Moderator, ErrNoEligibleAccount)
	}
	sess, err := s.session(ctx, mod)
	if err != nil {
		return mod.Name, "", err
	}

	// Negative limit means no limit.
	ranked, err := s.db.Leaderboard(-1)
	if err != nil {
		return mod.Name, "", fmt.Errorf("ranking accounts: %w", err)
	}

	sub := s.settings.Subreddit
	current, err := sess.Description(ctx, sub)
	if err != nil {
		return mod.Name, "", fmt.Errorf("reading sidebar of /r/%s: %w", sub, err)
	}
	sidebar := ReplaceLeaderboard(html.UnescapeString(current), LeaderboardTable(ranked, LeaderboardRows))

	if err := sess.UpdateDescription(ctx, sub, sidebar); err != nil {
		return mod.Name, "", &PublishError{Op: "update sidebar", Err: err}
	}
	if err := sess.UpdateFlair(ctx, sub, FlairLabels(ranked)); err != nil {
		return mod.Name, "", &PublishError{Op: "update flair", Err: err}
	}
	return mod.Name, fmt.Sprintf("ranked %d accounts", len(ranked)), nil
}

func (s *Simulator) moderator() *database.Account {
	if s.settings.Moderator == "" {
		return nil
	}
	for i := range s.accounts {
		if s.accounts[i].Name == s.settings.Moderator {
			return &s.accounts[i]
		}
	}
	return nil
}

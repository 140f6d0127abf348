package simulator

import (
	"time"

	"github.com/TobiSchelling/subsim/internal/config"
	"github.com/TobiSchelling/subsim/internal/filter"
	"github.com/TobiSchelling/subsim/internal/scheduler"
)

// Settings store keys for the last successful run of each action.
const (
	KeyLastComment    = "last_comment"
	KeyLastSubmission = "last_submission"
	KeyLastUpdate     = "last_update"
	KeyLastVote       = "last_vote"
)

// Settings is a snapshot of the settings store taken at the start of a tick.
type Settings struct {
	Subreddit string
	Owner     string
	Moderator string

	CommentDelay     time.Duration
	SubmissionDelay  time.Duration
	LeaderboardDelay time.Duration
	VoteDelay        time.Duration
	MainLoopDelay    time.Duration

	MaxCorpusSize  int
	MinKarmaToVote int
	Cooldown       map[scheduler.Action]time.Duration
	MaxTitleLength int
	MinUpvoteRatio float64
	IgnoredUsers   []string
	IgnoredPhrases []string

	LastComment    time.Time
	LastSubmission time.Time
	LastUpdate     time.Time
	LastVote       time.Time
}

// SettingsFromMap reads settings as returned by database.GetAllSettings.
// Missing or mistyped values fall back to defaults.
func SettingsFromMap(m map[string]any) Settings {
	return Settings{
		Subreddit: config.ParseSubreddit(stringValue(m, "subreddit")),
		Owner:     config.ParseUser(stringValue(m, "owner")),
		Moderator: config.ParseUser(stringValue(m, "moderator")),

		CommentDelay:     seconds(m, "comment_delay_seconds", 600),
		SubmissionDelay:  seconds(m, "submission_delay_seconds", 1200),
		LeaderboardDelay: seconds(m, "leaderboard_update_delay_seconds", 1800),
		VoteDelay:        seconds(m, "voting_delay_seconds", 60),
		MainLoopDelay:    seconds(m, "main_loop_delay_seconds", 60),

		MaxCorpusSize:  intValue(m, "max_corpus_size", 1000),
		MinKarmaToVote: intValue(m, "min_karma_to_vote", 0),
		Cooldown: map[scheduler.Action]time.Duration{
			scheduler.ActionComment:    seconds(m, "account_comment_cooldown_seconds", 0),
			scheduler.ActionSubmission: seconds(m, "account_submission_cooldown_seconds", 0),
			scheduler.ActionVote:       seconds(m, "account_vote_cooldown_seconds", 0),
		},
		MaxTitleLength: intValue(m, "max_title_length", 140),
		MinUpvoteRatio: floatValue(m, "min_upvote_ratio", 0.5),
		IgnoredUsers:   normalizedUsers(stringsValue(m, "ignored_users")),
		IgnoredPhrases: stringsValue(m, "ignored_phrases"),

		LastComment:    timeValue(m, KeyLastComment),
		LastSubmission: timeValue(m, KeyLastSubmission),
		LastUpdate:     timeValue(m, KeyLastUpdate),
		LastVote:       timeValue(m, KeyLastVote),
	}
}

// FilterSettings returns the candidate filter configuration.
func (s Settings) FilterSettings() filter.Settings {
	return filter.Settings{
		Owner:          s.Owner,
		IgnoredUsers:   s.IgnoredUsers,
		MinUpvoteRatio: s.MinUpvoteRatio,
		MinScore:       1,
	}
}

// Policy returns the per-account scheduling limits.
func (s Settings) Policy() scheduler.Policy {
	return scheduler.Policy{
		Cooldown:       s.Cooldown,
		MinKarmaToVote: s.MinKarmaToVote,
	}
}

// Due reports whether the global delay for kind has elapsed at now.
func (s Settings) Due(kind Kind, now time.Time) bool {
	var last time.Time
	var delay time.Duration
	switch kind {
	case KindComment:
		last, delay = s.LastComment, s.CommentDelay
	case KindSubmission:
		last, delay = s.LastSubmission, s.SubmissionDelay
	case KindLeaderboard:
		last, delay = s.LastUpdate, s.LeaderboardDelay
	case KindVote:
		last, delay = s.LastVote, s.VoteDelay
	default:
		return false
	}
	return last.IsZero() || now.Sub(last) >= delay
}

func lastKey(kind Kind) string {
	switch kind {
	case KindComment:
		return KeyLastComment
	case KindSubmission:
		return KeyLastSubmission
	case KindLeaderboard:
		return KeyLastUpdate
	case KindVote:
		return KeyLastVote
	}
	return ""
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func floatValue(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func intValue(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func seconds(m map[string]any, key string, def int) time.Duration {
	return time.Duration(intValue(m, key, def)) * time.Second
}

func stringsValue(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// timeValue reads a unix timestamp in seconds.
func timeValue(m map[string]any, key string) time.Time {
	secs := floatValue(m, key, 0)
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

func normalizedUsers(users []string) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = config.ParseUser(u)
	}
	return out
}

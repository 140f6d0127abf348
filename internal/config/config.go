package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Reddit    Reddit    `yaml:"reddit"`
	Simulator Simulator `yaml:"simulator"`
	Settings  Settings  `yaml:"settings"`
	Accounts  []Account `yaml:"accounts"`
	Corpus    Corpus    `yaml:"corpus"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Reddit struct {
	ClientID          string `yaml:"client_id"`
	ClientSecretEnv   string `yaml:"client_secret_env"`
	UserAgent         string `yaml:"user_agent"`
	AuthURL           string `yaml:"auth_url"`
	APIURL            string `yaml:"api_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

type Simulator struct {
	Subreddit string `yaml:"subreddit"`
	Owner     string `yaml:"owner"`
	Moderator string `yaml:"moderator"`
}

// Settings seed the runtime settings store. Keys already present in the
// store are left alone so values persisted by a running loop survive restarts.
type Settings struct {
	CommentDelaySeconds              int      `yaml:"comment_delay_seconds"`
	SubmissionDelaySeconds           int      `yaml:"submission_delay_seconds"`
	LeaderboardUpdateDelaySeconds    int      `yaml:"leaderboard_update_delay_seconds"`
	VotingDelaySeconds               int      `yaml:"voting_delay_seconds"`
	MainLoopDelaySeconds             int      `yaml:"main_loop_delay_seconds"`
	MaxCorpusSize                    int      `yaml:"max_corpus_size"`
	MinKarmaToVote                   int      `yaml:"min_karma_to_vote"`
	AccountCommentCooldownSeconds    int      `yaml:"account_comment_cooldown_seconds"`
	AccountSubmissionCooldownSeconds int      `yaml:"account_submission_cooldown_seconds"`
	AccountVoteCooldownSeconds       int      `yaml:"account_vote_cooldown_seconds"`
	MaxTitleLength                   int      `yaml:"max_title_length"`
	MinUpvoteRatio                   float64  `yaml:"min_upvote_ratio"`
	IgnoredUsers                     []string `yaml:"ignored_users"`
	IgnoredPhrases                   []string `yaml:"ignored_phrases"`
}

type Account struct {
	Name        string `yaml:"name"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
	Subreddit   string `yaml:"subreddit"`
	CanComment  bool   `yaml:"can_comment"`
	CanSubmit   bool   `yaml:"can_submit"`
}

type Corpus struct {
	Source            string `yaml:"source"` // "api" or "feed"
	CommentFeedURL    string `yaml:"comment_feed_url"`
	SubmissionFeedURL string `yaml:"submission_feed_url"`
	FetchLimit        int    `yaml:"fetch_limit"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for subsim.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "subsim")
}

// DataDir returns the XDG data directory for subsim.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "subsim")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/subsim/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'subsim init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Reddit: Reddit{
			ClientSecretEnv:   "REDDIT_CLIENT_SECRET",
			UserAgent:         "subsim/1.0 (subreddit simulator)",
			AuthURL:           "https://www.reddit.com",
			APIURL:            "https://oauth.reddit.com",
			RequestsPerMinute: 60,
			TimeoutSeconds:    30,
		},
		Settings: Settings{
			CommentDelaySeconds:           600,
			SubmissionDelaySeconds:        1200,
			LeaderboardUpdateDelaySeconds: 1800,
			VotingDelaySeconds:            60,
			MainLoopDelaySeconds:          60,
			MaxCorpusSize:                 1000,
			MaxTitleLength:                140,
			MinUpvoteRatio:                0.5,
			IgnoredPhrases:                []string{"+/u/user_simulator"},
		},
		Corpus: Corpus{
			Source:            "api",
			CommentFeedURL:    "https://www.reddit.com/r/%s/comments/.rss",
			SubmissionFeedURL: "https://www.reddit.com/r/%s/new/.rss",
			FetchLimit:        1000,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Simulator.Subreddit = ParseSubreddit(cfg.Simulator.Subreddit)
	cfg.Simulator.Owner = ParseUser(cfg.Simulator.Owner)
	cfg.Simulator.Moderator = ParseUser(cfg.Simulator.Moderator)
	for i := range cfg.Settings.IgnoredUsers {
		cfg.Settings.IgnoredUsers[i] = ParseUser(cfg.Settings.IgnoredUsers[i])
	}
	for i := range cfg.Accounts {
		cfg.Accounts[i].Name = ParseUser(cfg.Accounts[i].Name)
		cfg.Accounts[i].Subreddit = ParseSubreddit(cfg.Accounts[i].Subreddit)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// SettingsMap flattens the settings section into store keys.
func (c *Config) SettingsMap() map[string]any {
	s := c.Settings
	ignored := s.IgnoredUsers
	if ignored == nil {
		ignored = []string{}
	}
	phrases := s.IgnoredPhrases
	if phrases == nil {
		phrases = []string{}
	}
	return map[string]any{
		"subreddit":                           c.Simulator.Subreddit,
		"owner":                               c.Simulator.Owner,
		"moderator":                           c.Simulator.Moderator,
		"comment_delay_seconds":               s.CommentDelaySeconds,
		"submission_delay_seconds":            s.SubmissionDelaySeconds,
		"leaderboard_update_delay_seconds":    s.LeaderboardUpdateDelaySeconds,
		"voting_delay_seconds":                s.VotingDelaySeconds,
		"main_loop_delay_seconds":             s.MainLoopDelaySeconds,
		"max_corpus_size":                     s.MaxCorpusSize,
		"min_karma_to_vote":                   s.MinKarmaToVote,
		"account_comment_cooldown_seconds":    s.AccountCommentCooldownSeconds,
		"account_submission_cooldown_seconds": s.AccountSubmissionCooldownSeconds,
		"account_vote_cooldown_seconds":       s.AccountVoteCooldownSeconds,
		"max_title_length":                    s.MaxTitleLength,
		"min_upvote_ratio":                    s.MinUpvoteRatio,
		"ignored_users":                       ignored,
		"ignored_phrases":                     phrases,
	}
}

// ResolvePassword returns the inline password, or the value of PasswordEnv.
func (a Account) ResolvePassword() string {
	if a.Password != "" {
		return a.Password
	}
	if a.PasswordEnv != "" {
		return os.Getenv(a.PasswordEnv)
	}
	return ""
}

// ParseUser normalizes a username: "/u/Foo", "user/Foo" and "Foo" all become "foo".
func ParseUser(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "u/"):
		s = s[2:]
	case strings.HasPrefix(lower, "user/"):
		s = s[5:]
	}
	return strings.ToLower(s)
}

// ParseSubreddit normalizes a community name: "/r/Foo/" and "Foo" both become "foo".
func ParseSubreddit(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if strings.HasPrefix(strings.ToLower(s), "r/") {
		s = s[2:]
	}
	return strings.ToLower(s)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

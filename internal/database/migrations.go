package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS accounts (
    name TEXT PRIMARY KEY,
    password TEXT NOT NULL DEFAULT '',
    subreddit TEXT NOT NULL,
    added_at TEXT NOT NULL,
    can_comment INTEGER NOT NULL DEFAULT 1,
    can_submit INTEGER NOT NULL DEFAULT 1,
    comment_karma INTEGER NOT NULL DEFAULT 0,
    link_karma INTEGER NOT NULL DEFAULT 0,
    num_comments INTEGER NOT NULL DEFAULT 0,
    num_submissions INTEGER NOT NULL DEFAULT 0,
    num_votes INTEGER NOT NULL DEFAULT 0,
    last_commented TEXT,
    last_submitted TEXT,
    last_voted TEXT
);

CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    subreddit TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    permalink TEXT NOT NULL DEFAULT '',
    score INTEGER NOT NULL DEFAULT 0,
    top_level INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    subreddit TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    selftext TEXT NOT NULL DEFAULT '',
    permalink TEXT NOT NULL DEFAULT '',
    is_self INTEGER NOT NULL DEFAULT 0,
    over_18 INTEGER NOT NULL DEFAULT 0,
    score INTEGER NOT NULL DEFAULT 0,
    num_comments INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comments_subreddit ON comments(subreddit, created_at);
CREATE INDEX IF NOT EXISTS idx_submissions_subreddit ON submissions(subreddit, created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "add action log",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS action_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tick_id TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,
    account TEXT,
    success INTEGER NOT NULL DEFAULT 0,
    detail TEXT NOT NULL DEFAULT '',
    acted_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_log_acted_at ON action_log(acted_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

package database

import (
	"database/sql"
	"fmt"
	"time"
)

const accountColumns = `name, password, subreddit, added_at, can_comment, can_submit,
	comment_karma, link_karma, num_comments, num_submissions, num_votes,
	last_commented, last_submitted, last_voted`

// UpsertAccount inserts an account or updates its credentials, source
// community and capabilities. Counters and timestamps are never touched.
func (db *DB) UpsertAccount(a Account) error {
	added := a.AddedAt
	if added.IsZero() {
		added = time.Now()
	}
	_, err := db.conn.Exec(
		`INSERT INTO accounts (name, password, subreddit, added_at, can_comment, can_submit)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			password = excluded.password,
			subreddit = excluded.subreddit,
			can_comment = excluded.can_comment,
			can_submit = excluded.can_submit`,
		a.Name, a.Password, a.Subreddit, formatTime(added), a.CanComment, a.CanSubmit,
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", a.Name, err)
	}
	return nil
}

// GetAccount returns an account by name, or nil if not found.
func (db *DB) GetAccount(name string) (*Account, error) {
	rows, err := db.conn.Query(
		"SELECT "+accountColumns+" FROM accounts WHERE name = ?", name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// ListAccounts returns all accounts ordered by name.
func (db *DB) ListAccounts() ([]Account, error) {
	rows, err := db.conn.Query("SELECT " + accountColumns + " FROM accounts ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// Leaderboard returns commenting accounts ranked by mean comment karma.
func (db *DB) Leaderboard(limit int) ([]Account, error) {
	rows, err := db.conn.Query(
		`SELECT `+accountColumns+` FROM accounts
		WHERE can_comment = 1
		ORDER BY CASE WHEN num_comments > 0
			THEN ROUND(CAST(comment_karma AS REAL) / num_comments, 2) ELSE 0 END DESC,
			name ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// RecordComment counts a published comment. last_commented only moves forward.
func (db *DB) RecordComment(name string, at time.Time) error {
	return db.recordAction(name, "num_comments", "last_commented", 1, at)
}

// RecordSubmission counts a published submission.
func (db *DB) RecordSubmission(name string, at time.Time) error {
	return db.recordAction(name, "num_submissions", "last_submitted", 1, at)
}

// RecordVotes counts n cast votes.
func (db *DB) RecordVotes(name string, n int, at time.Time) error {
	return db.recordAction(name, "num_votes", "last_voted", n, at)
}

func (db *DB) recordAction(name, counter, lastCol string, n int, at time.Time) error {
	ts := formatTime(at)
	query := fmt.Sprintf(
		`UPDATE accounts SET %[1]s = %[1]s + ?,
			%[2]s = CASE WHEN %[2]s IS NULL OR %[2]s < ? THEN ? ELSE %[2]s END
		WHERE name = ?`, counter, lastCol,
	)
	res, err := db.conn.Exec(query, n, ts, ts, name)
	if err != nil {
		return fmt.Errorf("recording %s for %s: %w", counter, name, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("recording %s: account %s not found", counter, name)
	}
	return nil
}

// UpdateKarma stores karma totals reported by the forum.
func (db *DB) UpdateKarma(name string, commentKarma, linkKarma int) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET comment_karma = ?, link_karma = ? WHERE name = ?",
		commentKarma, linkKarma, name,
	)
	return err
}

func scanAccounts(rows *sql.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		var a Account
		var added string
		var lastCommented, lastSubmitted, lastVoted sql.NullString
		if err := rows.Scan(
			&a.Name, &a.Password, &a.Subreddit, &added, &a.CanComment, &a.CanSubmit,
			&a.CommentKarma, &a.LinkKarma, &a.NumComments, &a.NumSubmissions, &a.NumVotes,
			&lastCommented, &lastSubmitted, &lastVoted,
		); err != nil {
			return nil, err
		}
		a.AddedAt = parseTime(added)
		a.LastCommented = parseNullTime(lastCommented)
		a.LastSubmitted = parseNullTime(lastSubmitted)
		a.LastVoted = parseNullTime(lastVoted)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

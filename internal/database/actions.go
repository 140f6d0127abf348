package database

import (
	"database/sql"
	"time"
)

// InsertAction appends an entry to the action log.
func (db *DB) InsertAction(a ActionLog) (int64, error) {
	at := a.ActedAt
	if at.IsZero() {
		at = time.Now()
	}
	result, err := db.conn.Exec(
		`INSERT INTO action_log (tick_id, kind, account, success, detail, acted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.TickID, a.Kind, a.Account, a.Success, a.Detail, formatTime(at),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentActions returns the newest action log entries first.
func (db *DB) RecentActions(limit int) ([]ActionLog, error) {
	rows, err := db.conn.Query(
		`SELECT id, tick_id, kind, account, success, detail, acted_at
		FROM action_log ORDER BY acted_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ActionLog
	for rows.Next() {
		var a ActionLog
		var account sql.NullString
		var at string
		if err := rows.Scan(&a.ID, &a.TickID, &a.Kind, &account, &a.Success, &a.Detail, &at); err != nil {
			return nil, err
		}
		if account.Valid {
			a.Account = &account.String
		}
		a.ActedAt = parseTime(at)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// GetStats returns summary counts.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM accounts", &s.Accounts},
		{"SELECT COUNT(*) FROM accounts WHERE can_comment = 1", &s.CommentAccounts},
		{"SELECT COUNT(*) FROM accounts WHERE can_submit = 1", &s.SubmitAccounts},
		{"SELECT COUNT(*) FROM comments", &s.Comments},
		{"SELECT COUNT(*) FROM submissions", &s.Submissions},
		{"SELECT COUNT(DISTINCT subreddit) FROM comments", &s.Subreddits},
		{"SELECT COUNT(*) FROM action_log", &s.Actions},
		{"SELECT COUNT(*) FROM action_log WHERE success = 1", &s.SuccessfulActions},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

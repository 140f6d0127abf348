package database

import (
	"database/sql"
	"fmt"
)

const submissionColumns = `id, subreddit, author, title, url, selftext, permalink,
	is_self, over_18, score, num_comments, created_at`

// InsertSubmission stores a submission. Returns false if the ID already exists.
func (db *DB) InsertSubmission(s Submission) (bool, error) {
	res, err := db.conn.Exec(
		`INSERT OR IGNORE INTO submissions (id, subreddit, author, title, url, selftext, permalink,
			is_self, over_18, score, num_comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Subreddit, s.Author, s.Title, s.URL, s.SelfText, s.Permalink,
		s.IsSelf, s.Over18, s.Score, s.NumComments, formatTime(s.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting submission %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NewestSubmission returns the most recent stored submission for a subreddit, or nil.
func (db *DB) NewestSubmission(subreddit string) (*Submission, error) {
	rows, err := db.conn.Query(
		"SELECT "+submissionColumns+" FROM submissions WHERE subreddit = ? ORDER BY created_at DESC LIMIT 1",
		subreddit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subs, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return &subs[0], nil
}

// RandomSubmissions returns up to limit submissions from a subreddit in random order.
func (db *DB) RandomSubmissions(subreddit string, limit int, f SampleFilter) ([]Submission, error) {
	where, args := sampleWhere(subreddit, "title", f)
	args = append(args, limit)
	rows, err := db.conn.Query(
		"SELECT "+submissionColumns+" FROM submissions WHERE "+where+" ORDER BY RANDOM() LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

// CountSubmissions returns the number of stored submissions for a subreddit.
func (db *DB) CountSubmissions(subreddit string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM submissions WHERE subreddit = ?", subreddit).Scan(&n)
	return n, err
}

func scanSubmissions(rows *sql.Rows) ([]Submission, error) {
	var subs []Submission
	for rows.Next() {
		var s Submission
		var created string
		if err := rows.Scan(&s.ID, &s.Subreddit, &s.Author, &s.Title, &s.URL, &s.SelfText,
			&s.Permalink, &s.IsSelf, &s.Over18, &s.Score, &s.NumComments, &created); err != nil {
			return nil, err
		}
		s.CreatedAt = parseTime(created)
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

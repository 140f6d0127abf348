package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const commentColumns = "id, subreddit, author, body, permalink, score, top_level, created_at"

// InsertComment stores a comment. Returns false if the ID already exists.
func (db *DB) InsertComment(c Comment) (bool, error) {
	res, err := db.conn.Exec(
		`INSERT OR IGNORE INTO comments (id, subreddit, author, body, permalink, score, top_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Subreddit, c.Author, c.Body, c.Permalink, c.Score, c.TopLevel, formatTime(c.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("inserting comment %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// NewestComment returns the most recent stored comment for a subreddit, or nil.
func (db *DB) NewestComment(subreddit string) (*Comment, error) {
	rows, err := db.conn.Query(
		"SELECT "+commentColumns+" FROM comments WHERE subreddit = ? ORDER BY created_at DESC LIMIT 1",
		subreddit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	comments, err := scanComments(rows)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, nil
	}
	return &comments[0], nil
}

// RandomComments returns up to limit comments from a subreddit in random order.
func (db *DB) RandomComments(subreddit string, limit int, f SampleFilter) ([]Comment, error) {
	where, args := sampleWhere(subreddit, "body", f)
	args = append(args, limit)
	rows, err := db.conn.Query(
		"SELECT "+commentColumns+" FROM comments WHERE "+where+" ORDER BY RANDOM() LIMIT ?",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

// CountComments returns the number of stored comments for a subreddit.
func (db *DB) CountComments(subreddit string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM comments WHERE subreddit = ?", subreddit).Scan(&n)
	return n, err
}

// sampleWhere builds the WHERE clause shared by training-sample queries.
func sampleWhere(subreddit, textCol string, f SampleFilter) (string, []any) {
	clauses := []string{"subreddit = ?"}
	args := []any{subreddit}
	if len(f.ExcludeAuthors) > 0 {
		marks := make([]string, len(f.ExcludeAuthors))
		for i, a := range f.ExcludeAuthors {
			marks[i] = "?"
			args = append(args, strings.ToLower(a))
		}
		clauses = append(clauses, "LOWER(author) NOT IN ("+strings.Join(marks, ", ")+")")
	}
	for _, p := range f.ExcludePhrases {
		if p == "" {
			continue
		}
		clauses = append(clauses, "instr(LOWER("+textCol+"), LOWER(?)) = 0")
		args = append(args, p)
	}
	if f.ExcludeOver18 {
		clauses = append(clauses, "over_18 = 0")
	}
	return strings.Join(clauses, " AND "), args
}

func scanComments(rows *sql.Rows) ([]Comment, error) {
	var comments []Comment
	for rows.Next() {
		var c Comment
		var created string
		if err := rows.Scan(&c.ID, &c.Subreddit, &c.Author, &c.Body, &c.Permalink,
			&c.Score, &c.TopLevel, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

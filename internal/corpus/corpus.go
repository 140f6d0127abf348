// Package corpus keeps the local store of source-community content up to
// date and draws training samples from it.
package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/forum"
)

// DefaultFetchLimit is the listing depth of an incremental refresh.
const DefaultFetchLimit = 1000

// Source yields the newest content of a community, newest first.
type Source interface {
	Recent(ctx context.Context, community string, kind forum.Kind, limit int) ([]forum.Item, error)
}

// Result holds the counters of one refresh.
type Result struct {
	TotalFound int
	NewItems   int
	Duplicates int
}

// Store wraps the database with ingestion and sampling.
type Store struct {
	db         *database.DB
	logger     *zap.Logger
	fetchLimit int
}

// New returns a Store.
func New(db *database.DB, logger *zap.Logger, fetchLimit int) *Store {
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	return &Store{db: db, logger: logger, fetchLimit: fetchLimit}
}

// RefreshComments fetches comments newer than the newest stored one.
func (s *Store) RefreshComments(ctx context.Context, src Source, community string) (*Result, error) {
	items, err := src.Recent(ctx, community, forum.KindComment, s.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching comments for %s: %w", community, err)
	}
	return s.IngestComments(community, items)
}

// RefreshSubmissions fetches submissions newer than the newest stored one.
func (s *Store) RefreshSubmissions(ctx context.Context, src Source, community string) (*Result, error) {
	items, err := src.Recent(ctx, community, forum.KindSubmission, s.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching submissions for %s: %w", community, err)
	}
	return s.IngestSubmissions(community, items)
}

// IngestComments stores a newest-first listing, stopping at the first item
// that is not newer than what is already stored.
func (s *Store) IngestComments(community string, items []forum.Item) (*Result, error) {
	newest, err := s.db.NewestComment(community)
	if err != nil {
		return nil, fmt.Errorf("reading newest comment: %w", err)
	}

	r := &Result{}
	seen := make(map[string]struct{})
	for _, it := range items {
		if newest != nil && (it.ID == newest.ID || !it.CreatedAt.After(newest.CreatedAt)) {
			break
		}
		r.TotalFound++
		if _, dup := seen[it.ID]; dup {
			r.Duplicates++
			continue
		}
		seen[it.ID] = struct{}{}

		inserted, err := s.db.InsertComment(database.Comment{
			ID:        it.ID,
			Subreddit: community,
			Author:    it.Author,
			Body:      it.Body,
			Permalink: it.Permalink,
			Score:     it.Score,
			TopLevel:  it.TopLevel,
			CreatedAt: it.CreatedAt,
		})
		if err != nil {
			return r, err
		}
		if inserted {
			r.NewItems++
		} else {
			r.Duplicates++
		}
	}

	s.logger.Debug("ingested comments",
		zap.String("community", community),
		zap.Int("found", r.TotalFound),
		zap.Int("new", r.NewItems),
		zap.Int("duplicates", r.Duplicates),
	)
	return r, nil
}

// IngestSubmissions is IngestComments for submissions.
func (s *Store) IngestSubmissions(community string, items []forum.Item) (*Result, error) {
	newest, err := s.db.NewestSubmission(community)
	if err != nil {
		return nil, fmt.Errorf("reading newest submission: %w", err)
	}

	r := &Result{}
	seen := make(map[string]struct{})
	for _, it := range items {
		if newest != nil && (it.ID == newest.ID || !it.CreatedAt.After(newest.CreatedAt)) {
			break
		}
		r.TotalFound++
		if _, dup := seen[it.ID]; dup {
			r.Duplicates++
			continue
		}
		seen[it.ID] = struct{}{}

		sub := database.Submission{
			ID:          it.ID,
			Subreddit:   community,
			Author:      it.Author,
			Title:       it.Title,
			Permalink:   it.Permalink,
			IsSelf:      it.IsSelf,
			Over18:      it.Over18,
			Score:       it.Score,
			NumComments: it.NumComments,
			CreatedAt:   it.CreatedAt,
		}
		if it.IsSelf {
			sub.SelfText = it.Body
		} else {
			sub.URL = it.URL
		}

		inserted, err := s.db.InsertSubmission(sub)
		if err != nil {
			return r, err
		}
		if inserted {
			r.NewItems++
		} else {
			r.Duplicates++
		}
	}

	s.logger.Debug("ingested submissions",
		zap.String("community", community),
		zap.Int("found", r.TotalFound),
		zap.Int("new", r.NewItems),
		zap.Int("duplicates", r.Duplicates),
	)
	return r, nil
}

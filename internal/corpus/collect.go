package corpus

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/subsim/internal/forum"
)

// maxParallelFetches bounds concurrent listing requests during Collect.
const maxParallelFetches = 4

// CollectResult aggregates a multi-community collection run.
type CollectResult struct {
	TotalFound  int
	NewItems    int
	Duplicates  int
	Communities map[string]int
}

type fetched struct {
	community   string
	comments    []forum.Item
	submissions []forum.Item
}

// Collect fetches comments and submissions for several communities in
// parallel and stores them sequentially.
func (s *Store) Collect(ctx context.Context, src Source, communities []string) (*CollectResult, error) {
	results := make([]fetched, len(communities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, community := range communities {
		g.Go(func() error {
			comments, err := src.Recent(gctx, community, forum.KindComment, s.fetchLimit)
			if err != nil {
				return fmt.Errorf("fetching comments for %s: %w", community, err)
			}
			subs, err := src.Recent(gctx, community, forum.KindSubmission, s.fetchLimit)
			if err != nil {
				return fmt.Errorf("fetching submissions for %s: %w", community, err)
			}
			results[i] = fetched{community: community, comments: comments, submissions: subs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &CollectResult{Communities: make(map[string]int)}
	for _, f := range results {
		cr, err := s.IngestComments(f.community, f.comments)
		if err != nil {
			return r, err
		}
		sr, err := s.IngestSubmissions(f.community, f.submissions)
		if err != nil {
			return r, err
		}
		r.TotalFound += cr.TotalFound + sr.TotalFound
		r.NewItems += cr.NewItems + sr.NewItems
		r.Duplicates += cr.Duplicates + sr.Duplicates
		r.Communities[f.community] += cr.NewItems + sr.NewItems
	}

	s.logger.Info("collection complete",
		zap.Int("communities", len(communities)),
		zap.Int("found", r.TotalFound),
		zap.Int("new", r.NewItems),
		zap.Int("duplicates", r.Duplicates),
	)
	return r, nil
}

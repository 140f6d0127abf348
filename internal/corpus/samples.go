package corpus

import (
	"github.com/TobiSchelling/subsim/internal/database"
)

// SampleOptions exclude content from training.
type SampleOptions struct {
	MaxSize        int
	IgnoredUsers   []string
	IgnoredPhrases []string
}

// SubmissionSamples splits a submission sample into model inputs.
type SubmissionSamples struct {
	Titles    []string
	SelfTexts []string
	Links     []database.Submission
	Total     int
}

// LinkChance is the share of link posts in the sample.
func (s *SubmissionSamples) LinkChance() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(len(s.Links)) / float64(s.Total)
}

// CommentSamples returns a random sample of comment bodies.
func (s *Store) CommentSamples(community string, opts SampleOptions) ([]string, error) {
	comments, err := s.db.RandomComments(community, opts.MaxSize, database.SampleFilter{
		ExcludeAuthors: opts.IgnoredUsers,
		ExcludePhrases: opts.IgnoredPhrases,
	})
	if err != nil {
		return nil, err
	}
	bodies := make([]string, len(comments))
	for i, c := range comments {
		bodies[i] = c.Body
	}
	return bodies, nil
}

// SubmissionSamples returns a random sample of safe-for-work submissions.
func (s *Store) SubmissionSamples(community string, opts SampleOptions) (*SubmissionSamples, error) {
	subs, err := s.db.RandomSubmissions(community, opts.MaxSize, database.SampleFilter{
		ExcludeAuthors: opts.IgnoredUsers,
		ExcludeOver18:  true,
	})
	if err != nil {
		return nil, err
	}

	out := &SubmissionSamples{Total: len(subs)}
	for _, sub := range subs {
		out.Titles = append(out.Titles, sub.Title)
		if sub.URL != "" {
			out.Links = append(out.Links, sub)
		} else if sub.SelfText != "" {
			out.SelfTexts = append(out.SelfTexts, sub.SelfText)
		}
	}
	return out, nil
}

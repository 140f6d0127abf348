package simulator

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/filter"
	"github.com/TobiSchelling/subsim/internal/forum"
	"github.com/TobiSchelling/subsim/internal/markov"
	"github.com/TobiSchelling/subsim/internal/scheduler"
)

const (
	// listingSize is how many posts are read when looking for a target.
	listingSize = 25
	// maxVoteTargets caps votes per attempt; half may be submissions.
	maxVoteTargets = 10
	// upvoteChance is the probability a vote is an upvote.
	upvoteChance = 0.9
	// minSelfTextLength is the mean self-text length below which no body
	// model is trained.
	minSelfTextLength = 50
)

func (s *Simulator) comment(ctx context.Context) (string, string, error) {
	acct, err := s.pick(scheduler.ActionComment)
	if err != nil {
		return "", "", err
	}
	sess, err := s.session(ctx, acct)
	if err != nil {
		return acct.Name, "", err
	}

	if _, err := s.store.RefreshComments(ctx, sess, acct.Subreddit); err != nil {
		return acct.Name, "", err
	}
	samples, err := s.store.CommentSamples(acct.Subreddit, s.sampleOptions())
	if err != nil {
		return acct.Name, "", fmt.Errorf("sampling comments: %w", err)
	}
	model, err := markov.Build(samples)
	if err != nil {
		return acct.Name, "", fmt.Errorf("training on /r/%s comments: %w", acct.Subreddit, err)
	}

	target, err := s.commentTarget(ctx, sess)
	if err != nil {
		return acct.Name, "", err
	}

	text := markov.Paragraph(markov.NewSynthesizer(model, s.rng), s.rng, model.MeanLength)
	if text == "" {
		return acct.Name, "", fmt.Errorf("generating comment: %w", markov.ErrInsufficientData)
	}

	replyTo := *target
	if target.NumComments > 0 && s.rng.Float64() >= 0.5 {
		replies, err := sess.Replies(ctx, target.ID)
		if err != nil {
			return acct.Name, "", fmt.Errorf("reading replies of %s: %w", target.Fullname(), err)
		}
		if len(replies) == 0 {
			return acct.Name, "", fmt.Errorf("no replies under %s: %w", target.Fullname(), ErrNoSuitableCandidate)
		}
		replyTo = replies[s.rng.IntN(len(replies))]
	}

	if err := sess.Reply(ctx, replyTo, text); err != nil {
		return acct.Name, "", &PublishError{Op: "reply", Err: err}
	}
	now := s.now()
	if err := s.db.RecordComment(acct.Name, now); err != nil {
		return acct.Name, "", err
	}
	acct.NumComments++
	acct.LastCommented = &now
	return acct.Name, fmt.Sprintf("replied to %s (%d chars)", replyTo.Fullname(), len(text)), nil
}

// commentTarget returns the best accepted post of the day, falling back to
// the all-time top listing.
func (s *Simulator) commentTarget(ctx context.Context, sess forum.ContentSource) (*forum.Item, error) {
	f := filter.ForComments(s.settings.FilterSettings(), s.rng)
	for _, period := range []forum.Period{forum.PeriodDay, forum.PeriodAll} {
		posts, err := sess.Top(ctx, s.settings.Subreddit, period, listingSize)
		if err != nil {
			return nil, fmt.Errorf("reading top posts (%s): %w", period, err)
		}
		sortByEngagement(posts)

		target, decisions := f.First(posts)
		if target != nil {
			return target, nil
		}
		for _, d := range decisions {
			s.logger.Debug("candidate rejected",
				zap.String("id", d.Item.ID),
				zap.String("reason", d.Reason),
			)
		}
	}
	return nil, fmt.Errorf("comment target in /r/%s: %w", s.settings.Subreddit, ErrNoSuitableCandidate)
}

// sortByEngagement orders posts by score per comment, highest first.
func sortByEngagement(posts []forum.Item) {
	sort.SliceStable(posts, func(i, j int) bool {
		return engagement(posts[i]) > engagement(posts[j])
	})
}

func engagement(it forum.Item) float64 {
	return float64(it.Score) / float64(it.NumComments+1)
}

func (s *Simulator) submission(ctx context.Context) (string, string, error) {
	acct, err := s.pick(scheduler.ActionSubmission)
	if err != nil {
		return "", "", err
	}
	sess, err := s.session(ctx, acct)
	if err != nil {
		return acct.Name, "", err
	}

	if _, err := s.store.RefreshSubmissions(ctx, sess, acct.Subreddit); err != nil {
		return acct.Name, "", err
	}
	samples, err := s.store.SubmissionSamples(acct.Subreddit, s.sampleOptions())
	if err != nil {
		return acct.Name, "", fmt.Errorf("sampling submissions: %w", err)
	}

	titleModel, err := markov.BuildWithOrder(samples.Titles, 2)
	if err != nil {
		return acct.Name, "", fmt.Errorf("training on /r/%s titles: %w", acct.Subreddit, err)
	}
	var bodyModel *markov.Model
	if markov.MeanLength(samples.SelfTexts) > minSelfTextLength {
		bodyModel, err = markov.Build(samples.SelfTexts)
		if err != nil {
			s.logger.Debug("no self-text model", zap.String("account", acct.Name), zap.Error(err))
			bodyModel = nil
		}
	}

	title, ok := markov.Title(markov.NewSynthesizer(titleModel, s.rng), s.settings.MaxTitleLength)
	if !ok {
		return acct.Name, "", fmt.Errorf("generating title: %w", markov.ErrInsufficientData)
	}

	post := forum.Post{Title: title}
	var pageTitle string
	if len(samples.Links) > 0 && s.rng.Float64() < samples.LinkChance() {
		if src, page := s.liveLink(ctx, samples.Links); src != nil {
			post.URL = src.URL
			pageTitle = page
			if src.Over18 {
				post.Title = "[NSFW] " + post.Title
			}
		}
	}
	if post.URL == "" {
		if bodyModel != nil {
			post.Body = markov.Body(markov.NewSynthesizer(bodyModel, s.rng), bodyModel.MeanLength)
		}
		// Empty self posts are rejected by the platform.
		if post.Body == "" {
			post.Body = " "
		}
	}

	if err := sess.Submit(ctx, s.settings.Subreddit, post); err != nil {
		return acct.Name, "", &PublishError{Op: "submit", Err: err}
	}
	now := s.now()
	if err := s.db.RecordSubmission(acct.Name, now); err != nil {
		return acct.Name, "", err
	}
	acct.NumSubmissions++
	acct.LastSubmitted = &now

	switch {
	case post.URL == "":
		return acct.Name, fmt.Sprintf("submitted self post %q", post.Title), nil
	case pageTitle != "":
		return acct.Name, fmt.Sprintf("submitted link post %q to %s (%q)", post.Title, post.URL, pageTitle), nil
	default:
		return acct.Name, fmt.Sprintf("submitted link post %q to %s", post.Title, post.URL), nil
	}
}

// liveLink returns a random seen link submission whose URL still resolves,
// with the page title when one could be extracted.
func (s *Simulator) liveLink(ctx context.Context, links []database.Submission) (*database.Submission, string) {
	shuffled := make([]database.Submission, len(links))
	copy(shuffled, links)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if s.links == nil {
		return &shuffled[0], ""
	}

	urls := make([]string, len(shuffled))
	for i, sub := range shuffled {
		urls[i] = sub.URL
	}
	link := s.links.FirstAlive(ctx, urls)
	if link == nil {
		return nil, ""
	}
	for i := range shuffled {
		if shuffled[i].URL == link.URL {
			s.logger.Debug("reusing link",
				zap.String("url", link.URL),
				zap.Int("status", link.Status),
				zap.String("page_title", link.Title),
			)
			return &shuffled[i], link.Title
		}
	}
	return nil, ""
}

func (s *Simulator) vote(ctx context.Context) (string, string, error) {
	acct, err := s.pick(scheduler.ActionVote)
	if err != nil {
		return "", "", err
	}
	sess, err := s.session(ctx, acct)
	if err != nil {
		return acct.Name, "", err
	}

	candidates, err := s.voteCandidates(ctx, sess)
	if err != nil {
		return acct.Name, "", err
	}
	if len(candidates) == 0 {
		return acct.Name, "", fmt.Errorf("vote targets in /r/%s: %w", s.settings.Subreddit, ErrNoSuitableCandidate)
	}
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	up, down := 0, 0
	var voteErr error
	for _, c := range candidates {
		dir := -1
		if s.rng.Float64() < upvoteChance {
			dir = 1
		}
		if err := sess.Vote(ctx, c, dir); err != nil {
			voteErr = &PublishError{Op: "vote", Err: err}
			break
		}
		if dir > 0 {
			up++
			votesCast.WithLabelValues("up").Inc()
		} else {
			down++
			votesCast.WithLabelValues("down").Inc()
		}
	}

	if voteErr != nil {
		return acct.Name, "", voteErr
	}
	now := s.now()
	if err := s.db.RecordVotes(acct.Name, up+down, now); err != nil {
		return acct.Name, "", err
	}
	acct.NumVotes += up + down
	acct.LastVoted = &now
	return acct.Name, fmt.Sprintf("voted on %d items (%d up, %d down)", up+down, up, down), nil
}

// voteCandidates collects up to half the targets from the day's top posts
// (topped up from the hot listing), then fills with recent comments.
func (s *Simulator) voteCandidates(ctx context.Context, sess forum.ContentSource) ([]forum.Item, error) {
	sub := s.settings.Subreddit
	f := filter.ForVotes(s.settings.FilterSettings(), s.rng)
	seen := make(map[string]bool)
	var out []forum.Item

	add := func(items []forum.Item, limit int) {
		for _, it := range items {
			if len(out) >= limit {
				return
			}
			if seen[it.Fullname()] || !f.Accept(it).Accepted {
				continue
			}
			seen[it.Fullname()] = true
			out = append(out, it)
		}
	}

	top, err := sess.Top(ctx, sub, forum.PeriodDay, listingSize)
	if err != nil {
		return nil, fmt.Errorf("reading top posts: %w", err)
	}
	add(top, maxVoteTargets/2)
	if len(out) < maxVoteTargets/2 {
		hot, err := sess.Hot(ctx, sub, listingSize)
		if err != nil {
			return nil, fmt.Errorf("reading hot posts: %w", err)
		}
		add(hot, maxVoteTargets/2)
	}

	comments, err := sess.Recent(ctx, sub, forum.KindComment, listingSize)
	if err != nil {
		return nil, fmt.Errorf("reading recent comments: %w", err)
	}
	add(comments, maxVoteTargets)
	return out, nil
}

package database

import (
	"time"

	"github.com/montanaflynn/stats"
)

// Account is a bot identity that posts into the simulator community using
// text learned from its source subreddit.
type Account struct {
	Name           string
	Password       string
	Subreddit      string
	AddedAt        time.Time
	CanComment     bool
	CanSubmit      bool
	CommentKarma   int
	LinkKarma      int
	NumComments    int
	NumSubmissions int
	NumVotes       int
	LastCommented  *time.Time
	LastSubmitted  *time.Time
	LastVoted      *time.Time
}

// MeanCommentKarma is comment karma per comment, rounded to 2 places.
func (a *Account) MeanCommentKarma() float64 {
	return meanKarma(a.CommentKarma, a.NumComments)
}

// MeanLinkKarma is link karma per submission, rounded to 2 places.
func (a *Account) MeanLinkKarma() float64 {
	return meanKarma(a.LinkKarma, a.NumSubmissions)
}

// TotalKarma is comment plus link karma.
func (a *Account) TotalKarma() int {
	return a.CommentKarma + a.LinkKarma
}

func meanKarma(karma, n int) float64 {
	if n <= 0 {
		return 0
	}
	mean, err := stats.Round(float64(karma)/float64(n), 2)
	if err != nil {
		return 0
	}
	return mean
}

// Comment is a comment collected from a source community.
type Comment struct {
	ID        string
	Subreddit string
	Author    string
	Body      string
	Permalink string
	Score     int
	TopLevel  bool
	CreatedAt time.Time
}

// Submission is a post collected from a source community.
type Submission struct {
	ID          string
	Subreddit   string
	Author      string
	Title       string
	URL         string
	SelfText    string
	Permalink   string
	IsSelf      bool
	Over18      bool
	Score       int
	NumComments int
	CreatedAt   time.Time
}

// SampleFilter excludes content from training samples.
type SampleFilter struct {
	ExcludeAuthors []string
	ExcludePhrases []string
	ExcludeOver18  bool // submissions only
}

// ActionLog records one attempted action.
type ActionLog struct {
	ID      int64
	TickID  string
	Kind    string
	Account *string
	Success bool
	Detail  string
	ActedAt time.Time
}

// Stats holds summary counts for the status command.
type Stats struct {
	Accounts          int
	CommentAccounts   int
	SubmitAccounts    int
	Comments          int
	Submissions       int
	Subreddits        int
	Actions           int
	SuccessfulActions int
}

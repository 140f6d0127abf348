// Package forum defines the contracts between the simulator and the
// discussion platform it reads from and publishes to.
package forum

import (
	"context"
	"time"
)

// Kind distinguishes comments from submissions.
type Kind string

const (
	KindComment    Kind = "comment"
	KindSubmission Kind = "submission"
)

// Period is a time window for top listings.
type Period string

const (
	PeriodDay  Period = "day"
	PeriodWeek Period = "week"
	PeriodAll  Period = "all"
)

// Item is a comment or submission as seen on the platform.
type Item struct {
	ID          string
	Kind        Kind
	Community   string
	Author      string
	Body        string // comment body or submission self-text
	Title       string
	URL         string
	Permalink   string
	Score       int
	UpvoteRatio float64 // 0 when the platform does not report one
	NumComments int
	Locked      bool
	Over18      bool
	IsSelf      bool
	TopLevel    bool
	CreatedAt   time.Time
}

// Fullname is the platform-wide identifier used as a reply or vote target.
func (it Item) Fullname() string {
	if it.Kind == KindComment {
		return "t1_" + it.ID
	}
	return "t3_" + it.ID
}

// Post is a new submission.
type Post struct {
	Title string
	Body  string // self-text; ignored when URL is set
	URL   string
}

// Label is a per-user flair text.
type Label struct {
	User string
	Text string
}

// Profile is what the platform reports about the logged-in account.
type Profile struct {
	Name         string
	CommentKarma int
	LinkKarma    int
}

// Credentials identify a bot account.
type Credentials struct {
	Username string
	Password string
}

// ContentSource reads content from the platform.
type ContentSource interface {
	Recent(ctx context.Context, community string, kind Kind, limit int) ([]Item, error)
	Top(ctx context.Context, community string, period Period, limit int) ([]Item, error)
	Hot(ctx context.Context, community string, limit int) ([]Item, error)
	// Replies returns every comment in a submission's tree, flattened.
	Replies(ctx context.Context, submissionID string) ([]Item, error)
	Description(ctx context.Context, community string) (string, error)
}

// Publisher writes to the platform as one account.
type Publisher interface {
	Reply(ctx context.Context, target Item, text string) error
	Submit(ctx context.Context, community string, post Post) error
	Vote(ctx context.Context, target Item, direction int) error
	UpdateDescription(ctx context.Context, community, text string) error
	UpdateFlair(ctx context.Context, community string, labels []Label) error
}

// Session is an authenticated connection for a single account.
type Session interface {
	ContentSource
	Publisher
	Me(ctx context.Context) (Profile, error)
}

// Sessions hands out sessions, reusing them across ticks.
type Sessions interface {
	Session(ctx context.Context, creds Credentials) (Session, error)
}

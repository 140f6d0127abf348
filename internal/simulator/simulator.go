// Package simulator runs the bot accounts: it decides which action is due,
// picks an account, trains its text models and publishes the result.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/subsim/internal/corpus"
	"github.com/TobiSchelling/subsim/internal/database"
	"github.com/TobiSchelling/subsim/internal/fetch"
	"github.com/TobiSchelling/subsim/internal/forum"
	"github.com/TobiSchelling/subsim/internal/scheduler"
)

// Kind is an action the simulator can attempt.
type Kind string

const (
	KindLeaderboard Kind = "leaderboard"
	KindComment     Kind = "comment"
	KindSubmission  Kind = "submission"
	KindVote        Kind = "vote"
)

// tickOrder is the order in which due actions run within a tick.
var tickOrder = []Kind{KindLeaderboard, KindComment, KindSubmission, KindVote}

// ParseKind validates an action name.
func ParseKind(s string) (Kind, error) {
	for _, k := range tickOrder {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

var (
	// ErrNoEligibleAccount means no account may act right now. It is a
	// normal skip, not a failure of the platform.
	ErrNoEligibleAccount = errors.New("no eligible account")
	// ErrNoSuitableCandidate means nothing passed the candidate filter.
	ErrNoSuitableCandidate = errors.New("no suitable candidate")
)

// PublishError is a failed write to the platform.
type PublishError struct {
	Op  string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one attempted action.
type Result struct {
	Kind    Kind
	Account string
	Success bool
	Detail  string
	Err     error
}

// Skipped reports whether the attempt found nobody to act.
func (r Result) Skipped() bool {
	return errors.Is(r.Err, ErrNoEligibleAccount)
}

// TickResult holds the attempts made during one tick.
type TickResult struct {
	ID       string
	Attempts []Result
}

// LinkChecker finds a reachable URL among candidates.
type LinkChecker interface {
	FirstAlive(ctx context.Context, candidates []string) *fetch.Link
}

// Simulator drives the bot accounts. It is not safe for concurrent use.
type Simulator struct {
	db       *database.DB
	store    *corpus.Store
	sessions forum.Sessions
	links    LinkChecker
	logger   *zap.Logger
	rng      *rand.Rand
	now      func() time.Time

	settings Settings
	accounts []database.Account
	sched    *scheduler.Scheduler
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithRand sets the random source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) { s.rng = rng }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// New creates a simulator. links may be nil to never post links.
func New(db *database.DB, store *corpus.Store, sessions forum.Sessions, links LinkChecker, logger *zap.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		db:       db,
		store:    store,
		sessions: sessions,
		links:    links,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load refreshes settings and accounts from the store.
func (s *Simulator) Load() error {
	m, err := s.db.GetAllSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	accounts, err := s.db.ListAccounts()
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	s.settings = SettingsFromMap(m)
	s.accounts = accounts
	s.sched = scheduler.New(s.settings.Policy(), s.rng, s.now)
	return nil
}

// Settings returns the snapshot taken by the last Load.
func (s *Simulator) Settings() Settings {
	return s.settings
}

// Attempt runs one action. Failures, including panics, are reported in
// the Result and never returned.
func (s *Simulator) Attempt(ctx context.Context, kind Kind) (res Result) {
	start := time.Now()
	res = Result{Kind: kind}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = fmt.Errorf("panic during %s: %v", kind, r)
			res.Detail = res.Err.Error()
		}
		actionDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		actionsAttempted.WithLabelValues(string(kind), status(res)).Inc()
		s.logResult(res)
	}()

	if s.sched == nil {
		if err := s.Load(); err != nil {
			res.Err = err
			res.Detail = err.Error()
			return res
		}
	}

	var account, detail string
	var err error
	switch kind {
	case KindComment:
		account, detail, err = s.comment(ctx)
	case KindSubmission:
		account, detail, err = s.submission(ctx)
	case KindVote:
		account, detail, err = s.vote(ctx)
	case KindLeaderboard:
		account, detail, err = s.leaderboard(ctx)
	default:
		err = fmt.Errorf("unknown action %q", kind)
	}

	res.Account = account
	res.Err = err
	res.Success = err == nil
	res.Detail = detail
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}

func status(r Result) string {
	switch {
	case r.Success:
		return "success"
	case r.Skipped():
		return "skipped"
	default:
		return "failure"
	}
}

func (s *Simulator) logResult(r Result) {
	fields := []zap.Field{
		zap.String("kind", string(r.Kind)),
		zap.String("account", r.Account),
		zap.String("detail", r.Detail),
	}
	switch {
	case r.Success:
		s.logger.Info("action succeeded", fields...)
	case r.Skipped():
		s.logger.Info("action skipped", fields...)
	default:
		s.logger.Warn("action failed", append(fields, zap.Error(r.Err))...)
	}
}

// Tick reloads state and attempts every action whose global delay has
// elapsed, in a fixed order. Cancellation is honored between actions.
func (s *Simulator) Tick(ctx context.Context) (*TickResult, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	ticksRun.Inc()

	tr := &TickResult{ID: uuid.NewString()}
	for _, kind := range tickOrder {
		if ctx.Err() != nil {
			break
		}
		if !s.settings.Due(kind, s.now()) {
			continue
		}
		tr.Attempts = append(tr.Attempts, s.run(ctx, tr.ID, kind))
	}
	return tr, nil
}

// Force attempts one action regardless of its global delay.
func (s *Simulator) Force(ctx context.Context, kind Kind) (*TickResult, error) {
	if err := s.Load(); err != nil {
		return nil, err
	}
	tr := &TickResult{ID: uuid.NewString()}
	tr.Attempts = append(tr.Attempts, s.run(ctx, tr.ID, kind))
	return tr, nil
}

// run attempts kind, logs it and advances the global delay on success.
func (s *Simulator) run(ctx context.Context, tickID string, kind Kind) Result {
	res := s.Attempt(ctx, kind)
	at := s.now()

	entry := database.ActionLog{
		TickID:  tickID,
		Kind:    string(kind),
		Success: res.Success,
		Detail:  res.Detail,
		ActedAt: at,
	}
	if res.Account != "" {
		entry.Account = &res.Account
	}
	if _, err := s.db.InsertAction(entry); err != nil {
		s.logger.Warn("recording action", zap.Error(err))
	}

	if res.Success {
		if err := s.db.UpsertSetting(lastKey(kind), at.Unix()); err != nil {
			s.logger.Warn("saving action time", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	return res
}

// Run ticks until ctx is cancelled, sleeping main_loop_delay between ticks.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("starting main loop")
	for {
		tr, err := s.Tick(ctx)
		if err != nil {
			s.logger.Error("tick failed", zap.Error(err))
		} else {
			s.logger.Debug("tick finished", zap.String("tick", tr.ID), zap.Int("attempts", len(tr.Attempts)))
		}

		delay := s.settings.MainLoopDelay
		if delay <= 0 {
			delay = time.Minute
		}
		select {
		case <-ctx.Done():
			s.logger.Info("stopped main loop")
			return nil
		case <-time.After(delay):
		}
	}
}

// session opens the account's session and refreshes its stored karma.
func (s *Simulator) session(ctx context.Context, a *database.Account) (forum.Session, error) {
	sess, err := s.sessions.Session(ctx, forum.Credentials{Username: a.Name, Password: a.Password})
	if err != nil {
		return nil, fmt.Errorf("opening session for %s: %w", a.Name, err)
	}

	me, err := sess.Me(ctx)
	if err != nil {
		s.logger.Warn("refreshing karma", zap.String("account", a.Name), zap.Error(err))
		return sess, nil
	}
	if err := s.db.UpdateKarma(a.Name, me.CommentKarma, me.LinkKarma); err != nil {
		return nil, fmt.Errorf("saving karma for %s: %w", a.Name, err)
	}
	a.CommentKarma, a.LinkKarma = me.CommentKarma, me.LinkKarma
	return sess, nil
}

func (s *Simulator) pick(action scheduler.Action) (*database.Account, error) {
	a := s.sched.PickFor(s.accounts, action)
	if a == nil {
		return nil, fmt.Errorf("%s: %w", action, ErrNoEligibleAccount)
	}
	return a, nil
}

func (s *Simulator) sampleOptions() corpus.SampleOptions {
	return corpus.SampleOptions{
		MaxSize:        s.settings.MaxCorpusSize,
		IgnoredUsers:   s.settings.IgnoredUsers,
		IgnoredPhrases: s.settings.IgnoredPhrases,
	}
}

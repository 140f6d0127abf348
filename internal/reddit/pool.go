package reddit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/subsim/internal/forum"
)

// sessionTTL is slightly under the API's one hour token lifetime.
const sessionTTL = 50 * time.Minute

// Pool hands out one logged-in session per account and shares a single
// rate limiter across them, since the API budget belongs to the client id.
type Pool struct {
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	sessions *expirable.LRU[string, *Client]
}

var _ forum.Sessions = (*Pool)(nil)

// NewPool creates a session pool. requestsPerMinute <= 0 disables limiting.
func NewPool(httpClient *http.Client, opts Options, requestsPerMinute int, logger *zap.Logger) *Pool {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return &Pool{
		http:     httpClient,
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
		sessions: expirable.NewLRU[string, *Client](0, nil, sessionTTL),
	}
}

// Session returns the cached session for creds.Username, logging in when
// there is none or it expired.
func (p *Pool) Session(ctx context.Context, creds forum.Credentials) (forum.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.sessions.Get(creds.Username); ok && c.password == creds.Password {
		return c, nil
	}

	c := NewClient(p.http, p.limiter, p.opts, creds.Username, creds.Password, p.logger)
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	p.sessions.Add(creds.Username, c)
	p.logger.Info("logged in", zap.String("account", creds.Username))
	return c, nil
}

// Len reports how many sessions are cached.
func (p *Pool) Len() int {
	return p.sessions.Len()
}

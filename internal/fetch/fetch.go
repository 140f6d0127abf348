package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// maxBody bounds how much of a page is read for title extraction.
const maxBody = 2 << 20

// Link is the outcome of checking a URL.
type Link struct {
	URL    string
	Alive  bool
	Status int
	Title  string
}

// LinkChecker verifies that previously seen URLs still resolve before they
// are reposted. Domains that fail once are skipped for the checker's lifetime.
type LinkChecker struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewLinkChecker creates a new link checker.
func NewLinkChecker(logger *zap.Logger, userAgent string, timeout time.Duration) *LinkChecker {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &LinkChecker{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:     userAgent,
		logger:        logger,
		failedDomains: make(map[string]struct{}),
	}
}

// Check fetches the URL. A non-nil error means the request could not be
// made; an unreachable page is reported through Link.Alive.
func (c *LinkChecker) Check(ctx context.Context, rawURL string) (*Link, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}
	domain := strings.ToLower(u.Host)
	link := &Link{URL: rawURL}

	if c.domainFailed(domain) {
		return link, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.markFailed(domain)
		c.logger.Debug("link unreachable", zap.String("url", rawURL), zap.Error(err))
		return link, nil
	}
	defer resp.Body.Close()

	link.Status = resp.StatusCode
	if resp.StatusCode >= 400 {
		c.markFailed(domain)
		c.logger.Debug("link dead",
			zap.String("url", rawURL),
			zap.Error(&httpError{code: resp.StatusCode}),
		)
		return link, nil
	}
	link.Alive = true

	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err == nil {
			if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil {
				link.Title = strings.TrimSpace(article.Title)
			}
		}
	}
	return link, nil
}

// FirstAlive returns the first live URL among candidates, or nil.
func (c *LinkChecker) FirstAlive(ctx context.Context, candidates []string) *Link {
	for _, raw := range candidates {
		link, err := c.Check(ctx, raw)
		if err != nil || !link.Alive {
			continue
		}
		return link
	}
	return nil
}

func (c *LinkChecker) domainFailed(domain string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, failed := c.failedDomains[domain]
	return failed
}

func (c *LinkChecker) markFailed(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedDomains[domain] = struct{}{}
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}

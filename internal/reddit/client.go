// Package reddit talks to the Reddit API with OAuth password-grant
// sessions, one per bot account.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pageSize is the largest listing page the API returns.
const pageSize = 100

// ErrUnauthorized is returned when the token grant is rejected.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-success response or an error list in a JSON reply.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "reddit: " + e.Message
	}
	return fmt.Sprintf("reddit: %d %s", e.Status, e.Message)
}

// Options configure sessions.
type Options struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	AuthURL      string // token endpoint host, e.g. https://www.reddit.com
	APIURL       string // OAuth API host, e.g. https://oauth.reddit.com
}

// Client is an authenticated session for one account. It implements
// forum.Session.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	opts     Options
	username string
	password string
	logger   *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClient creates a session. No request is made until the first call.
func NewClient(httpClient *http.Client, limiter *rate.Limiter, opts Options, username, password string, logger *zap.Logger) *Client {
	return &Client{
		http:     httpClient,
		limiter:  limiter,
		opts:     opts,
		username: username,
		password: password,
		logger:   logger.With(zap.String("account", username)),
	}
}

// Login fetches a fresh access token.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.username},
		"password":   {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.opts.AuthURL, "/")+"/api/v1/access_token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	if err := c.wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("logging in as %s: %w", c.username, ErrUnauthorized)
	}
	if resp.StatusCode >= 400 {
		return responseError(resp)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decoding token: %w", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return fmt.Errorf("logging in as %s: %s: %w", c.username, tok.Error, ErrUnauthorized)
	}

	c.token = tok.AccessToken
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}
	// Refresh a minute early.
	c.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	c.logger.Debug("obtained token", zap.Time("expires", c.expires))
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expires) {
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// get decodes the JSON response of an API GET into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")
	return c.do(ctx, http.MethodGet, path+"?"+query.Encode(), nil, out)
}

// post sends a form and decodes the JSON response into out, if non-nil.
func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, form, out)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.opts.APIURL, "/")+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "bearer "+token)
		req.Header.Set("User-Agent", c.opts.UserAgent)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		if err := c.wait(ctx); err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		// An expired token gets one fresh login.
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidate()
			continue
		}

		err = decodeResponse(resp, out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		return nil
	}
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		return responseError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	text := strings.TrimSpace(string(msg))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: text}
}

package cml

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/newtron-network/cmlkit/pkg/util"
)

const authPath = apiPrefix + "/authenticate"

// Client talks to one platform controller. It is safe for concurrent use;
// concurrent calls that hit an expired token share a single
// re-authentication.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	after      func(time.Duration) <-chan time.Time

	mu    sync.RWMutex
	token string
	auth  singleflight.Group
}

// New creates a client. No network traffic happens until the first call.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		baseURL: NormalizeBaseURL(cfg.BaseURL),
		after:   time.After,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // lab controllers use self-signed certs
		}
		c.httpClient = &http.Client{Transport: transport}
	}
	return c, nil
}

// BaseURL returns the normalized controller URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call issues method against path and returns the raw JSON response body.
// path may be given with or without the /api/v0 prefix. body, if non-nil, is
// encoded as JSON.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
	}
	resp, err := c.do(ctx, method, apiPath(path), "application/json", payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp), nil
}

// callJSON is Call followed by decoding into out (skipped when out is nil or
// the response is empty).
func (c *Client) callJSON(ctx context.Context, method, path string, in, out any) error {
	raw, err := c.Call(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// AuthOK verifies that the current credentials are accepted.
func (c *Client) AuthOK(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodGet, "/authok", nil)
	return err
}

func apiPath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if strings.HasPrefix(path, apiPrefix+"/") {
		return path
	}
	return apiPrefix + path
}

// do runs the retry loop around single attempts. A 401 is answered with
// exactly one re-authentication that does not count as a retry; NETWORK and
// SERVER failures are retried with exponential backoff, including those of
// the authentication request itself; nothing is retried once ctx is done.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	log := util.Logger.WithFields(logrus.Fields{"method": method, "path": path})
	backoff := c.cfg.BackoffBase
	reauthenticated := false
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, &RemoteError{Kind: KindNetwork, Method: method, Path: path, Err: err}
		}

		token, err := c.currentToken(ctx)
		if err == nil {
			var resp []byte
			resp, err = c.attempt(ctx, method, path, contentType, body, token)
			if err == nil {
				return resp, nil
			}
		}

		var re *RemoteError
		if !errors.As(err, &re) {
			return nil, err
		}
		if token != "" && re.Status == http.StatusUnauthorized && !reauthenticated {
			reauthenticated = true
			reauthentications.Inc()
			log.Debug("token rejected, re-authenticating")
			c.dropToken(token)
			continue
		}
		if !re.Kind.Retryable() || retries >= c.cfg.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		retries++
		requestRetries.WithLabelValues(string(re.Kind)).Inc()
		log.WithField("attempt", retries).Warnf("retrying after %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return nil, &RemoteError{Kind: KindNetwork, Method: method, Path: path, Err: ctx.Err()}
		case <-c.after(backoff):
		}
		backoff = time.Duration(float64(backoff) * c.cfg.BackoffFactor)
	}
}

// attempt performs one HTTP round trip bounded by the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, method, path, contentType string, body []byte, token string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &RemoteError{Kind: KindNetwork, Method: method, Path: path, Err: err}
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(actx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observeRequest(method, 0, time.Since(start))
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &RemoteError{Kind: KindNetwork, Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	observeRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &RemoteError{Kind: KindNetwork, Status: resp.StatusCode, Method: method, Path: path, Err: err}
	}

	util.Logger.WithFields(logrus.Fields{
		"method": method, "path": path, "status": resp.StatusCode, "elapsed": time.Since(start).String(),
	}).Debug("platform call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{
			Kind:    KindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: remoteMessage(data),
		}
	}
	return data, nil
}

// currentToken returns the cached token, authenticating first if there is
// none. Concurrent callers share one authentication request.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	v, err, _ := c.auth.Do("token", func() (any, error) {
		c.mu.RLock()
		existing := c.token
		c.mu.RUnlock()
		if existing != "" {
			return existing, nil
		}
		fresh, err := c.authenticate(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// dropToken forgets token unless another caller has already replaced it.
func (c *Client) dropToken(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	util.Logger.WithField("url", c.baseURL).Debug("authenticating")

	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", err
	}
	resp, err := c.attempt(ctx, http.MethodPost, authPath, "application/json", payload, "")
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.Kind == KindValidation {
			// Some controller versions answer bad credentials with 400.
			re.Kind = KindAuth
		}
		return "", err
	}
	token := parseToken(resp)
	if token == "" {
		return "", &RemoteError{Kind: KindAuth, Method: http.MethodPost, Path: authPath, Message: "empty token in authentication response"}
	}
	return token, nil
}

// parseToken accepts a JSON string, a {"token": ...} object or bare text.
func parseToken(body []byte) string {
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Token != "" {
		return obj.Token
	}
	return strings.Trim(strings.TrimSpace(string(body)), `"`)
}

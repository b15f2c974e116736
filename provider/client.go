package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jrsteele09/cube-auth/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	maxResponseBytes       = 1 << 20
	defaultRetryInitialGap = 200 * time.Millisecond
)

// Observer receives the outcome and latency of every outbound provider call.
type Observer func(operation, outcome string, elapsed time.Duration)

// Client talks to the external OAuth2 identity provider. It holds only
// immutable configuration and is safe for concurrent use.
type Client struct {
	oauth        *oauth2.Config
	userInfoURL  string
	httpClient   *http.Client
	maxRetries   int
	retryInitial time.Duration
	logger       zerolog.Logger
	observe      Observer
}

type Option func(*Client)

// WithHTTPClient replaces the client used for both outbound calls. It should
// carry a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithRetryInitialInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retryInitial = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithObserver(observe Observer) Option {
	return func(c *Client) {
		c.observe = observe
	}
}

func New(cfg config.ProviderConfig, options ...Option) *Client {
	timeout := cfg.GetProviderTimeout()
	if timeout <= 0 {
		timeout = config.DefaultProviderTimeout
	}

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GetClientID(),
			ClientSecret: cfg.GetClientSecret(),
			RedirectURL:  cfg.GetRedirectURI(),
			Scopes:       cfg.GetScopes(),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.GetAuthorizeURL(),
				TokenURL:  cfg.GetTokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL:  cfg.GetUserInfoURL(),
		httpClient:   &http.Client{Timeout: timeout},
		maxRetries:   cfg.GetProviderMaxRetries(),
		retryInitial: defaultRetryInitialGap,
		logger:       log.Logger,
		observe:      func(string, string, time.Duration) {},
	}

	for _, opt := range options {
		opt(c)
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	return c
}

// BuildAuthorizationURL returns the provider's authorize endpoint with
// client_id, redirect_uri, response_type=code, scope and state.
func (c *Client) BuildAuthorizationURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades a single-use authorization code for a provider token.
// It is never retried.
func (c *Client) ExchangeCode(ctx context.Context, code string) (ProviderToken, error) {
	if code == "" {
		return ProviderToken{}, fmt.Errorf("%w: empty authorization code", ErrInvalidGrant)
	}

	start := time.Now()
	tok, err := c.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), code)
	if err != nil {
		err = c.classifyExchangeError(err)
		c.observe("exchange", Kind(err), time.Since(start))
		return ProviderToken{}, err
	}

	pt, err := decodeToken(tok)
	if err != nil {
		c.observe("exchange", Kind(err), time.Since(start))
		return ProviderToken{}, err
	}
	c.observe("exchange", Kind(nil), time.Since(start))
	return pt, nil
}

// FetchIdentity resolves the user behind accessToken. Transport failures and
// 5xx answers are retried with exponential backoff up to the configured limit.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (ExternalIdentity, error) {
	if accessToken == "" {
		return ExternalIdentity{}, fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryInitial
	expBackoff.MaxInterval = 20 * c.retryInitial

	start := time.Now()
	operation := func() (ExternalIdentity, error) {
		identity, err := c.fetchIdentityOnce(ctx, accessToken)
		if err != nil && !retryable(err) {
			return identity, backoff.Permanent(err)
		}
		return identity, err
	}

	identity, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Debug().Str("kind", Kind(err)).Dur("retry_in", d).Msg("retrying identity fetch")
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if Kind(err) == "unknown" {
			err = fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}
	c.observe("identity", Kind(err), time.Since(start))
	return identity, err
}

func (c *Client) fetchIdentityOnce(ctx context.Context, accessToken string) (ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return ExternalIdentity{}, protocolError("build user info request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: %v", ErrNetwork, redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ExternalIdentity{}, fmt.Errorf("%w: read user info: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ExternalIdentity{}, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		c.logBody("identity", resp.StatusCode, body)
		return ExternalIdentity{}, fmt.Errorf("%w: %w: status %d", ErrProtocol, errServerError, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.logBody("identity", resp.StatusCode, body)
		return ExternalIdentity{}, protocolError("user info status %d", resp.StatusCode)
	}

	return decodeIdentity(body)
}

func (c *Client) classifyExchangeError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		c.logBody("exchange", status, rErr.Body)
		if rErr.ErrorCode == "invalid_grant" || status == http.StatusBadRequest && bytes.Contains(rErr.Body, []byte("invalid_grant")) {
			return fmt.Errorf("%w: %s", ErrInvalidGrant, rErr.ErrorDescription)
		}
		return protocolError("token endpoint status %d (%s)", status, rErr.ErrorCode)
	}

	if isNetworkError(err) {
		return fmt.Errorf("%w: %v", ErrNetwork, redactURLError(err))
	}
	return protocolError("token response: %v", err)
}

func (c *Client) logBody(operation string, status int, body []byte) {
	const limit = 256
	if len(body) > limit {
		body = body[:limit]
	}
	c.logger.Debug().Str("operation", operation).Int("status", status).Bytes("body", body).Msg("provider error response")
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// redactURLError drops the request URL, which may carry query parameters, from
// transport errors.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

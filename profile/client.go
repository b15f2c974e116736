package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/cube-auth/internal/utils"
	"github.com/jrsteele09/cube-auth/token"
)

const (
	serviceCredentialTTL = time.Minute
	clientTimeout        = 10 * time.Second
)

// CredentialIssuer mints the short-lived credential the client presents to
// the profile service on the user's behalf.
type CredentialIssuer interface {
	Issue(subject string, ttl time.Duration) (token.Credential, error)
}

// Client registers freshly authenticated users with the profile service.
type Client struct {
	baseURL    string
	issuer     CredentialIssuer
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, issuer CredentialIssuer, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		issuer:     issuer,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SaveOrUpdateUser creates the profile for externalID, or updates it when it
// already exists.
func (c *Client) SaveOrUpdateUser(ctx context.Context, externalID, name, email string) error {
	cred, err := c.issuer.Issue(externalID, serviceCredentialTTL)
	if err != nil {
		return fmt.Errorf("[SaveOrUpdateUser] issue credential: %w", err)
	}

	p := Profile{WcaID: externalID, Name: name, Email: email}

	status, err := c.send(ctx, http.MethodPost, c.baseURL+RouteProfiles, cred.Raw, p)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
	default:
		return fmt.Errorf("[SaveOrUpdateUser] create profile: unexpected status %d", status)
	}

	// Only the provider-owned fields are refreshed; anything the user set stays.
	status, err = c.send(ctx, http.MethodPut, c.baseURL+RouteProfiles+"/"+url.PathEscape(externalID), cred.Raw, identityUpdate(name, email))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("[SaveOrUpdateUser] update profile: unexpected status %d", status)
	}
	return nil
}

// identityUpdate carries the provider's name and email. A missing email is
// left untouched rather than cleared.
func identityUpdate(name, email string) Update {
	u := Update{Name: utils.Ptr(name)}
	if email != "" {
		u.Email = utils.Ptr(email)
	}
	return u
}

func (c *Client) send(ctx context.Context, method, target, credential string, body any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("[profile.Client] marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("[profile.Client] build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("[profile.Client] %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	return resp.StatusCode, nil
}

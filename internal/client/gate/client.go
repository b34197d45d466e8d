// Package gate is the client side of the directory mock: an HTTP client for
// its endpoints and a local group database answering NSS-style lookups.
package gate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/atinyakov/gvagate/internal/models"
)

const (
	// UserAgent identifies gate clients to the service.
	UserAgent = "GVA-GATE"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 2 * time.Second

	pathGroups       = "/get_groups"
	pathLogin        = "/login"
	pathAuthenticate = "/authenticate"
)

// ErrUnauthorized is returned by Authenticate when the service answers 401.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Code, e.Body)
}

// Client talks to a directory mock service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds an *http.Client with DefaultTimeout. When caFile is
// set, server certificates are verified against it only.
func NewHTTPClient(caFile string) (*http.Client, error) {
	if caFile == "" {
		return &http.Client{Timeout: DefaultTimeout}, nil
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: DefaultTimeout}, nil
}

// NewClient returns a Client for baseURL. A nil httpClient gets DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Groups fetches the full group list.
func (c *Client) Groups(ctx context.Context) ([]models.GroupRecord, error) {
	var groups []models.GroupRecord
	if err := c.getJSON(ctx, pathGroups, nil, &groups); err != nil {
		return nil, fmt.Errorf("get groups: %w", err)
	}
	return groups, nil
}

// Login performs the GET credential check.
func (c *Client) Login(ctx context.Context, user, password string) (models.CheckResult, error) {
	var result models.CheckResult
	q := url.Values{"user": {user}, "password": {password}}
	if err := c.getJSON(ctx, pathLogin, q, &result); err != nil {
		return models.CheckResult{}, fmt.Errorf("login: %w", err)
	}
	return result, nil
}

// Authenticate posts the credentials and returns the profile envelope.
// A 401 answer yields ErrUnauthorized.
func (c *Client) Authenticate(ctx context.Context, user, password string) (*models.AuthResponse, error) {
	form := url.Values{"user": {user}, "passwd": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathAuthenticate, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp models.AuthResponse
	if err := c.do(req, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

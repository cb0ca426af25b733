// Package dealerdata provides a client for the Cascade dealer portal's
// price lookup. Session and cookie handling stay inside the client;
// callers only see classified lookup results.
package dealerdata

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const (
	loginPath  = "/login"
	lookupPath = "/orders/lookups/prices"

	maxBodyBytes = 4 << 20
)

// Sentinel failures callers branch on.
var (
	// ErrAuth means the portal rejected the credentials. Runs cannot
	// proceed past it.
	ErrAuth = eris.New("dealerdata: authentication failed")

	// ErrThrottled means the portal asked us to slow down.
	ErrThrottled = eris.New("dealerdata: throttled")

	// ErrBadPrice means the portal listed the part but the price cell
	// could not be parsed.
	ErrBadPrice = eris.New("dealerdata: unparseable price")
)

// PriceResult is the outcome of a single price lookup.
type PriceResult struct {
	PartNumber   string
	NetUnitPrice float64
	Found        bool
}

// Client defines the dealer portal operations.
type Client interface {
	// Login establishes the portal session eagerly. LookupPrice logs
	// in on demand, but calling Login first surfaces credential
	// problems before a run starts.
	Login(ctx context.Context) error
	// LookupPrice fetches the net unit price for one part number.
	// Safe for concurrent use; lookups are idempotent reads.
	LookupPrice(ctx context.Context, partNumber string) (PriceResult, error)
}

// Option configures the dealerdata client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// NewClient creates a portal client. The base URL is the portal root
// without a trailing slash.
func NewClient(baseURL, username, password string, opts ...Option) Client {
	jar, _ := cookiejar.New(nil)
	c := &httpClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// loginLocked posts the login form. Callers hold c.mu.
func (c *httpClient) loginLocked(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return eris.Wrap(ErrAuth, "no portal credentials configured")
	}

	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+loginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrap(err, "dealerdata: create login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "dealerdata: login request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return eris.Wrap(err, "dealerdata: read login response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return eris.Wrap(ErrThrottled, "login")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return eris.Wrapf(ErrAuth, "portal returned %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return eris.Errorf("dealerdata: login status %d", resp.StatusCode)
	}

	// The portal answers bad credentials with 200 and an error banner.
	if strings.Contains(strings.ToLower(string(body)), "invalid username or password") {
		return eris.Wrap(ErrAuth, "portal rejected credentials")
	}

	c.loggedIn = true
	return nil
}

func (c *httpClient) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}
	return c.loginLocked(ctx)
}

func (c *httpClient) relogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = false
	return c.loginLocked(ctx)
}

func (c *httpClient) LookupPrice(ctx context.Context, partNumber string) (PriceResult, error) {
	if err := c.ensureSession(ctx); err != nil {
		return PriceResult{}, err
	}

	res, expired, err := c.doLookup(ctx, partNumber)
	if !expired {
		return res, err
	}

	// Session lapsed mid-run: refresh once and retry the lookup.
	if err := c.relogin(ctx); err != nil {
		return PriceResult{}, err
	}
	res, expired, err = c.doLookup(ctx, partNumber)
	if expired {
		return PriceResult{}, eris.Wrap(ErrAuth, "session rejected after refresh")
	}
	return res, err
}

// doLookup performs one lookup request. expired=true means the portal
// bounced us to the login page and the session needs a refresh.
func (c *httpClient) doLookup(ctx context.Context, partNumber string) (res PriceResult, expired bool, err error) {
	form := url.Values{
		"search_type":  {"part_number"},
		"lookup_items": {partNumber},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+lookupPath, strings.NewReader(form.Encode()))
	if err != nil {
		return PriceResult{}, false, eris.Wrap(err, "dealerdata: create lookup request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return PriceResult{}, false, eris.Wrapf(err, "dealerdata: lookup %s", partNumber)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return PriceResult{}, false, eris.Wrapf(ErrThrottled, "lookup %s", partNumber)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return PriceResult{}, true, nil
	case resp.StatusCode >= 500:
		return PriceResult{}, false, eris.Errorf("dealerdata: portal status %d for %s", resp.StatusCode, partNumber)
	case resp.StatusCode != http.StatusOK:
		return PriceResult{}, false, eris.Errorf("dealerdata: unexpected status %d for %s", resp.StatusCode, partNumber)
	}

	page, err := decodeBody(resp)
	if err != nil {
		return PriceResult{}, false, err
	}

	if looksLikeLoginPage(page) {
		return PriceResult{}, true, nil
	}

	price, found, err := parsePriceFor(page, partNumber)
	if err != nil {
		return PriceResult{}, false, err
	}
	return PriceResult{PartNumber: partNumber, NetUnitPrice: price, Found: found}, false, nil
}

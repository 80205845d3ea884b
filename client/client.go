package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/MrEthical07/jsonfas"
)

const (
	// DefaultCookieName is the cookie the account service keeps the visit key in.
	DefaultCookieName = "tg-visit"
	// DefaultTimeout bounds one call when Config.Timeout is unset.
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

type (
	// Client is the process-wide account service client.
	Client struct {
		baseURL *url.URL
		cfg     Config
		http    *retryablehttp.Client
	}

	// Config provides connection details for the account service.
	Config struct {
		// Base URL of the account service, e.g. https://admin.fedoraproject.org/accounts/.
		BaseURL   string
		UserAgent string
		// Privileged service credentials used by PersonByUsername.
		Username string
		Password string
		// Cookie carrying the visit key.
		CookieName string
		// Upper bound on one call including retries and backoff. Each attempt
		// is bounded by it as well.
		Timeout time.Duration
		// Retries on connection errors and 5xx responses.
		RetryMax     int
		RetryWaitMin time.Duration
		RetryWaitMax time.Duration
		// Override default http transport
		Transport http.RoundTripper
		// Logger for logging an error upon retry
		Logger logr.Logger
	}
)

var _ jsonfas.AccountService = (*Client)(nil)

// New constructs a client. Unset fields take defaults.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("missing account service url")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid account service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid account service url: %q is not absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "jsonfas/" + jsonfas.Version
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	c := &Client{
		baseURL: u,
		cfg:     cfg,
	}
	c.http = &retryablehttp.Client{
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
		HTTPClient: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.Timeout,
			// Set-Cookie on a redirect must not be lost.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		RetryWaitMin: cfg.RetryWaitMin,
		RetryWaitMax: cfg.RetryWaitMax,
		RetryMax:     cfg.RetryMax,
		CheckRetry: func(ctx context.Context, resp *http.Response, err error) (bool, error) {
			retry, retryErr := retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
			if retry {
				if retryErr != nil {
					err = retryErr
				}
				// The http response is nil when there is no response, e.g.
				// socket timeout.
				if resp != nil && resp.Request != nil {
					cfg.Logger.Error(err, "retrying account service request", "url", resp.Request.URL.Path, "status", resp.StatusCode)
				} else {
					cfg.Logger.Error(err, "retrying account service request")
				}
			}
			return retry, retryErr
		},
	}
	return c, nil
}

// FromConfig constructs a client from the service section of a provider
// configuration.
func FromConfig(cfg jsonfas.Config, log logr.Logger) (*Client, error) {
	return New(Config{
		BaseURL:      cfg.Service.URL,
		UserAgent:    cfg.Service.UserAgent,
		Username:     cfg.Service.Username,
		Password:     cfg.Service.Password,
		CookieName:   cfg.Cookie.Name,
		Timeout:      cfg.Service.Timeout,
		RetryMax:     cfg.Service.RetryMax,
		RetryWaitMin: cfg.Service.RetryWaitMin,
		RetryWaitMax: cfg.Service.RetryWaitMax,
		Logger:       log.WithName("client"),
	})
}

// Hostname returns the account service host:port.
func (c *Client) Hostname() string {
	return c.baseURL.Host
}

// Open starts a session for one request. Any argument may be empty.
func (c *Client) Open(visitKey, username, password string) *Session {
	return &Session{
		client:    c,
		sessionID: visitKey,
		username:  username,
		password:  password,
	}
}

// NewSession implements [jsonfas.AccountService].
func (c *Client) NewSession(visitKey, username, password string) jsonfas.AccountSession {
	return c.Open(visitKey, username, password)
}

// PersonByUsername looks a person up with the client's service credentials.
// It returns an error wrapping [jsonfas.ErrUserNotFound] when the service
// knows no such person.
func (c *Client) PersonByUsername(ctx context.Context, username string) (*jsonfas.User, error) {
	if username == "" {
		return nil, jsonfas.ErrUserNotFound
	}

	s := c.Open("", c.cfg.Username, c.cfg.Password)
	var reply personReply
	params := url.Values{"username": {username}}
	if err := s.Send(ctx, "json/person_by_username", params, true, &reply); err != nil {
		return nil, err
	}
	if reply.Person == nil {
		return nil, fmt.Errorf("%w: %s", jsonfas.ErrUserNotFound, username)
	}
	return reply.Person, nil
}

func (c *Client) endpoint(method string) (string, error) {
	u, err := c.baseURL.Parse(strings.TrimPrefix(method, "/"))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

type personReply struct {
	Person *jsonfas.User `json:"person"`
}

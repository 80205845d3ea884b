package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/MrEthical07/jsonfas"
)

// Session is one request's conversation with the account service.
type Session struct {
	client   *Client
	username string
	password string

	mu        sync.Mutex
	sessionID string
}

var _ jsonfas.AccountSession = (*Session)(nil)

// SessionID returns the visit key as last set by the service.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Login binds the visit key to the session's credentials.
func (s *Session) Login(ctx context.Context) error {
	return s.Send(ctx, "", nil, true, nil)
}

// ViewUser returns the person bound to the visit key, or nil.
func (s *Session) ViewUser(ctx context.Context) (*jsonfas.User, error) {
	var reply personReply
	if err := s.Send(ctx, "user/view", nil, true, &reply); err != nil {
		return nil, err
	}
	return reply.Person, nil
}

// Logout unlinks the visit key from its person.
func (s *Session) Logout(ctx context.Context) error {
	return s.Send(ctx, "logout", nil, true, nil)
}

// Send calls method with params and decodes the JSON reply into out, which may
// be nil. With auth set the session's username and password, if any, are
// submitted as a login form alongside params.
func (s *Session) Send(ctx context.Context, method string, params url.Values, auth bool, out any) error {
	c := s.client
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint, err := c.endpoint(method)
	if err != nil {
		return &jsonfas.ServiceError{Method: method, Err: err}
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("tg_format", "json")
	if auth && s.username != "" && s.password != "" {
		form.Set("user_name", s.username)
		form.Set("password", s.password)
		form.Set("login", "Login")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &jsonfas.ServiceError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if id := s.SessionID(); id != "" {
		req.AddCookie(&http.Cookie{Name: c.cfg.CookieName, Value: id})
	}

	// Once retries are exhausted the last response is returned alongside the
	// retry policy's error; its status decides the outcome.
	resp, err := c.http.Do(req)
	if err != nil && resp == nil {
		return fmt.Errorf("%w: %s: %w", jsonfas.ErrServiceUnavailable, methodName(method), err)
	}
	defer resp.Body.Close()

	s.adoptCookie(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: reading response: %w", jsonfas.ErrServiceUnavailable, methodName(method), err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &jsonfas.ServiceError{Method: method, StatusCode: resp.StatusCode, Err: jsonfas.ErrAuthFailed}
	case resp.StatusCode >= 500:
		return &jsonfas.ServiceError{Method: method, StatusCode: resp.StatusCode, Err: jsonfas.ErrServiceUnavailable}
	case resp.StatusCode >= 400:
		return &jsonfas.ServiceError{Method: method, StatusCode: resp.StatusCode}
	}

	if err := decodeReply(method, resp.StatusCode, body, out); err != nil {
		return err
	}
	return nil
}

func (s *Session) adoptCookie(resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name != s.client.cfg.CookieName || cookie.Value == "" || cookie.MaxAge < 0 {
			continue
		}
		s.mu.Lock()
		s.sessionID = cookie.Value
		s.mu.Unlock()
	}
}

// envelope holds the fields every reply may carry to report an application
// error.
type envelope struct {
	Exc     string `json:"exc"`
	TGFlash any    `json:"tg_flash"`
}

func decodeReply(method string, status int, body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		if out == nil {
			return nil
		}
		return &jsonfas.ServiceError{Method: method, StatusCode: status, Err: errors.New("empty response body")}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &jsonfas.ServiceError{Method: method, StatusCode: status, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if env.Exc != "" {
		msg, _ := env.TGFlash.(string)
		return &jsonfas.ServiceError{Method: method, StatusCode: status, Exc: env.Exc, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &jsonfas.ServiceError{Method: method, StatusCode: status, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func methodName(method string) string {
	if method == "" {
		return "login"
	}
	return method
}

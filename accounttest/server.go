// Package accounttest runs an in-process account service that speaks the same
// JSON protocol as the real one, for tests and demos.
//
// The server keeps visits in memory. Unknown or expired visit keys are
// replaced with a fresh key in a Set-Cookie, as the real service does, which
// lets callers exercise visit key rotation.
package accounttest

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/MrEthical07/jsonfas"
)

// Method names as they appear in Calls.
const (
	MethodLogin            = ""
	MethodLogout           = "logout"
	MethodUserView         = "user/view"
	MethodPersonByUsername = "json/person_by_username"
)

// Server is a fake account service.
type Server struct {
	srv        *httptest.Server
	cookieName string

	mu            sync.Mutex
	accounts      map[string]account
	visits        map[string]string
	calls         map[string]int
	failures      map[string][]int
	delay         time.Duration
	rotateOnLogin bool
	serviceUser   string
}

type account struct {
	user     jsonfas.User
	password string
}

// Option configures a [Server].
type Option func(*Server)

// WithCookieName changes the visit cookie name from tg-visit.
func WithCookieName(name string) Option {
	return func(s *Server) { s.cookieName = name }
}

// WithRotateOnLogin issues a new visit key whenever a login changes the user
// bound to a visit.
func WithRotateOnLogin() Option {
	return func(s *Server) { s.rotateOnLogin = true }
}

// WithServiceAccount registers the account allowed to look people up by
// username.
func WithServiceAccount(username, password string) Option {
	return func(s *Server) {
		s.accounts[username] = account{
			user:     jsonfas.User{Username: username, HumanName: "Service Account"},
			password: password,
		}
		s.serviceUser = username
	}
}

// NewServer starts a server. Call Close when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		cookieName: "tg-visit",
		accounts:   make(map[string]account),
		visits:     make(map[string]string),
		calls:      make(map[string]int),
		failures:   make(map[string][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(s.Handler())
	return s
}

// URL returns the base URL to configure clients with.
func (s *Server) URL() string {
	return s.srv.URL + "/"
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.Close()
}

// AddUser registers a person who can log in with password.
func (s *Server) AddUser(user jsonfas.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[user.Username] = account{user: user, password: password}
}

// NewVisit creates a visit already logged in as username and returns its key.
// An empty username creates an anonymous visit.
func (s *Server) NewVisit(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uuid.NewString()
	s.visits[key] = username
	return key
}

// ExpireVisit forgets key, so the next call using it gets a new key.
func (s *Server) ExpireVisit(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visits, key)
}

// VisitUser returns the username bound to key and whether the visit exists.
func (s *Server) VisitUser(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.visits[key]
	return username, ok
}

// Calls returns how many times method was called.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// FailNext makes the next call to method answer with status.
func (s *Server) FailNext(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = append(s.failures[method], status)
}

// SetDelay delays every reply by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Handler returns the service routes, for mounting in another server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.wrap(MethodLogin, s.login)).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.wrap(MethodLogout, s.logout)).Methods(http.MethodPost)
	r.HandleFunc("/user/view", s.wrap(MethodUserView, s.userView)).Methods(http.MethodPost)
	r.HandleFunc("/json/person_by_username", s.wrap(MethodPersonByUsername, s.personByUsername)).Methods(http.MethodPost)
	return r
}

type visitHandler func(w http.ResponseWriter, r *http.Request, key, username string)

// wrap handles what every method shares: call counting, injected failures,
// visit lookup with key replacement, and the login form.
func (s *Server) wrap(method string, next visitHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[method]++
		delay := s.delay
		var failStatus int
		if queued := s.failures[method]; len(queued) > 0 {
			failStatus = queued[0]
			s.failures[method] = queued[1:]
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failStatus != 0 {
			http.Error(w, http.StatusText(failStatus), failStatus)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		key := ""
		if c, err := r.Cookie(s.cookieName); err == nil {
			key = c.Value
		}

		s.mu.Lock()
		username, known := s.visits[key]
		if !known {
			key = uuid.NewString()
			s.visits[key] = ""
			username = ""
		}
		s.mu.Unlock()
		if !known {
			s.setVisitCookie(w, key)
		}

		if r.PostForm.Get("login") != "" {
			name, pw := r.PostForm.Get("user_name"), r.PostForm.Get("password")
			if !s.checkPassword(name, pw) {
				writeJSON(w, http.StatusForbidden, map[string]any{
					"exc":      "AuthError",
					"tg_flash": "The credentials you supplied were not correct or did not grant access to this resource.",
				})
				return
			}
			s.mu.Lock()
			rotate := s.rotateOnLogin && s.visits[key] != name
			if rotate {
				delete(s.visits, key)
				key = uuid.NewString()
			}
			s.visits[key] = name
			s.mu.Unlock()
			if rotate {
				s.setVisitCookie(w, key)
			}
			username = name
		}

		next(w, r, key, username)
	}
}

func (s *Server) checkPassword(username, password string) bool {
	s.mu.Lock()
	acct, ok := s.accounts[username]
	s.mu.Unlock()
	if !ok || password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(acct.password), []byte(password)) == 1
}

func (s *Server) setVisitCookie(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{Name: s.cookieName, Value: key, Path: "/", HttpOnly: true})
}

func (s *Server) login(w http.ResponseWriter, _ *http.Request, _ string, username string) {
	if username == "" {
		writeJSON(w, http.StatusOK, map[string]any{"tg_flash": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tg_flash": nil, "user": map[string]string{"username": username}})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request, key string, _ string) {
	s.mu.Lock()
	s.visits[key] = ""
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"tg_flash": "You have successfully logged out."})
}

func (s *Server) userView(w http.ResponseWriter, _ *http.Request, _ string, username string) {
	if username == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"exc":      "AuthError",
			"tg_flash": "You must be logged in to view this page.",
		})
		return
	}
	s.mu.Lock()
	acct, ok := s.accounts[username]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"person": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"person": acct.user})
}

func (s *Server) personByUsername(w http.ResponseWriter, r *http.Request, _ string, username string) {
	s.mu.Lock()
	allowed := username != "" && username == s.serviceUser
	acct, ok := s.accounts[r.PostForm.Get("username")]
	s.mu.Unlock()

	if !allowed {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"exc":      "AuthError",
			"tg_flash": "You are not allowed to look up other people.",
		})
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"person": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"person": acct.user})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

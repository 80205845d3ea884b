package jsonfas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeService is an in-memory AccountService that counts calls.
type fakeService struct {
	mu sync.Mutex

	users   map[string]*User // by visit key
	people  map[string]*User // by username
	loginFn func(visitKey, username, password string) (newKey string, err error)

	viewErr    error
	lookupErr  error
	logoutErr  error
	rotateView string // visit key the service switches to on ViewUser

	sessions     int
	logins       int
	views        int
	logouts      int
	lookups      int
	lookupByName []string
}

func newFakeService() *fakeService {
	return &fakeService{
		users:  make(map[string]*User),
		people: make(map[string]*User),
	}
}

func (f *fakeService) NewSession(visitKey, username, password string) AccountSession {
	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()
	return &fakeSession{svc: f, id: visitKey, username: username, password: password}
}

func (f *fakeService) PersonByUsername(_ context.Context, username string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	f.lookupByName = append(f.lookupByName, username)
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	u, ok := f.people[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeService) calls() (logins, views, logouts, lookups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.views, f.logouts, f.lookups
}

func (f *fakeService) networkCalls() int {
	l, v, o, p := f.calls()
	return l + v + o + p
}

type fakeSession struct {
	svc      *fakeService
	id       string
	username string
	password string
}

func (s *fakeSession) Login(context.Context) error {
	f := s.svc
	f.mu.Lock()
	f.logins++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	newKey, err := fn(s.id, s.username, s.password)
	if newKey != "" {
		s.id = newKey
	}
	return err
}

func (s *fakeSession) ViewUser(context.Context) (*User, error) {
	f := s.svc
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views++
	if f.rotateView != "" {
		s.id = f.rotateView
	}
	if f.viewErr != nil {
		return nil, f.viewErr
	}
	return f.users[s.id], nil
}

func (s *fakeSession) Logout(context.Context) error {
	f := s.svc
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (s *fakeSession) SessionID() string {
	return s.id
}

func testUser() *User {
	return &User{
		ID:        42,
		Username:  "alice",
		HumanName: "Alice Example",
		ApprovedMemberships: []Group{
			{ID: 30, Name: "sysadmin"},
			{ID: 10, Name: "packager"},
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Service.URL = "https://accounts.example.test/accounts/"
	cfg.Service.Timeout = time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	// Cheapest Argon2 parameters the password package accepts.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestProvider(t *testing.T, svc AccountService, mutate func(*Config)) *Provider {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New().WithConfig(cfg).WithAccountService(svc).Build()
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

var errBoom = errors.New("connection refused")

package jsonfas

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

func TestValidateIdentityReturnsIdentity(t *testing.T) {
	svc := newFakeService()
	p := newTestProvider(t, svc, nil)

	ident := p.ValidateIdentity(context.Background(), NewMemoryRequest(nil, nil), "alice", "pw", "visit-1")
	if ident == nil {
		t.Fatal("expected identity")
	}
	if ident.UsingSSL() {
		t.Fatal("password login must not be marked ssl")
	}
	if logins, _, _, _ := svc.calls(); logins != 1 {
		t.Fatalf("expected 1 login, got %d", logins)
	}
	if got := p.MetricsSnapshot().Counters[MetricIdentityValidated]; got != 1 {
		t.Fatalf("expected 1 validated, got %d", got)
	}
}

func TestValidateIdentityServiceErrorIsNil(t *testing.T) {
	for name, err := range map[string]error{
		"unavailable": ErrServiceUnavailable,
		"auth":        &ServiceError{Exc: "AuthError", Message: "bad password"},
		"protocol":    &ServiceError{StatusCode: 400},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newFakeService()
			svc.loginFn = func(string, string, string) (string, error) { return "", err }
			p := newTestProvider(t, svc, nil)

			if ident := p.ValidateIdentity(context.Background(), NewMemoryRequest(nil, nil), "alice", "pw", ""); ident != nil {
				t.Fatal("expected nil identity")
			}
			if got := p.MetricsSnapshot().Counters[MetricIdentityRejected]; got != 1 {
				t.Fatalf("expected 1 rejection, got %d", got)
			}
		})
	}
}

func TestValidateIdentityDerivesSSLUsername(t *testing.T) {
	svc := newFakeService()
	svc.people["alice"] = testUser()
	p := newTestProvider(t, svc, func(cfg *Config) {
		cfg.SSL.Enabled = true
		cfg.Service.Username = "svc"
		cfg.Service.Password = "svc-secret"
	})
	req := NewMemoryRequest(map[string]string{
		"X-Client-Verify": "SUCCESS",
		"X-Client-CN":     "alice",
	}, nil)

	ident := p.ValidateIdentity(context.Background(), req, "", "", "visit-1")
	if ident == nil || !ident.UsingSSL() {
		t.Fatalf("expected ssl identity, got %+v", ident)
	}
	if v, _ := req.Flag(FlagProvidedUsername); v != "alice" {
		t.Fatalf("expected provided username flag, got %q", v)
	}

	user := ident.RetrieveUser(context.Background())
	if user == nil || user.Username != "alice" {
		t.Fatalf("expected alice, got %+v", user)
	}
	logins, views, _, lookups := svc.calls()
	if logins != 0 || views != 0 {
		t.Fatalf("ssl path must bypass password auth, got logins=%d views=%d", logins, views)
	}
	if lookups != 1 || svc.lookupByName[0] != "alice" {
		t.Fatalf("expected lookup of alice, got %v", svc.lookupByName)
	}
	if got := p.MetricsSnapshot().Counters[MetricSSLVerified]; got != 1 {
		t.Fatalf("expected 1 ssl verification, got %d", got)
	}
}

func TestValidateIdentitySSLDisabledIgnoresHeaders(t *testing.T) {
	svc := newFakeService()
	p := newTestProvider(t, svc, nil)
	req := NewMemoryRequest(map[string]string{
		"X-Client-Verify": "SUCCESS",
		"X-Client-CN":     "alice",
	}, nil)

	ident := p.ValidateIdentity(context.Background(), req, "", "", "visit-1")
	if ident == nil || ident.UsingSSL() {
		t.Fatal("expected a non-ssl identity")
	}
	if _, ok := req.Flag(FlagProvidedUsername); ok {
		t.Fatal("provided username must not be set when ssl is disabled")
	}
}

func TestValidateIdentitySSLUnverifiedFallsBack(t *testing.T) {
	svc := newFakeService()
	p := newTestProvider(t, svc, func(cfg *Config) {
		cfg.SSL.Enabled = true
		cfg.Service.Username = "svc"
		cfg.Service.Password = "svc-secret"
	})
	req := NewMemoryRequest(map[string]string{
		"X-Client-Verify": "FAILED:certificate expired",
		"X-Client-CN":     "alice",
	}, nil)

	ident := p.ValidateIdentity(context.Background(), req, "", "", "visit-1")
	if ident == nil || ident.UsingSSL() {
		t.Fatal("unverified certificate must not produce an ssl identity")
	}
}

func TestValidatePassword(t *testing.T) {
	p := newTestProvider(t, newFakeService(), nil)

	argonHash, err := p.HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-battery"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	cases := []struct {
		name     string
		stored   string
		password string
		want     bool
	}{
		{"argon2 match", argonHash, "correct-horse-battery", true},
		{"argon2 mismatch", argonHash, "wrong-horse-battery", false},
		{"bcrypt match", string(bcryptHash), "correct-horse-battery", true},
		{"bcrypt mismatch", string(bcryptHash), "wrong-horse-battery", false},
		{"empty stored hash", "", "correct-horse-battery", false},
		{"empty password", argonHash, "", false},
		{"md5-crypt match", "$1$saltsalt$/KCD/NvwYPE3YzbUMvHNe.", "secretpw", true},
		{"sha512-crypt match", "$6$saltsalt$xu9/qiJ1zv/ph9Z3Cqv4qtkwOG83JC6cPkNu/EZ7DtLKrkzA5qJ.9wkfbx5W8Xa77jcQZzdYN4zE.EPHRNZ0D/", "secretpw", true},
		{"sha512-crypt mismatch", "$6$saltsalt$xu9/qiJ1zv/ph9Z3Cqv4qtkwOG83JC6cPkNu/EZ7DtLKrkzA5qJ.9wkfbx5W8Xa77jcQZzdYN4zE.EPHRNZ0D/", "secretpx", false},
		{"unknown format", "plaintext", "plaintext", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := &User{Username: "alice", Password: tc.stored}
			if got := p.ValidatePassword(user, "ignored", tc.password); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if p.ValidatePassword(nil, "alice", "correct-horse-battery") {
		t.Fatal("nil user must not validate")
	}

	if p.PasswordNeedsRehash(&User{Password: argonHash}) {
		t.Fatal("a current argon2 hash must not need a rehash")
	}
	if !p.PasswordNeedsRehash(&User{Password: string(bcryptHash)}) {
		t.Fatal("a bcrypt hash must need a rehash")
	}
	if p.PasswordNeedsRehash(&User{}) || p.PasswordNeedsRehash(nil) {
		t.Fatal("no stored hash means nothing to rehash")
	}
}

func TestValidatePasswordCustomValidator(t *testing.T) {
	var gotUsername string
	p, err := New().
		WithConfig(testConfig()).
		WithAccountService(newFakeService()).
		WithPasswordValidator(PasswordValidatorFunc(func(_ *User, username, password string) bool {
			gotUsername = username
			return password == "from-directory"
		})).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer p.Close()

	if !p.ValidatePassword(&User{}, "alice", "from-directory") {
		t.Fatal("expected custom validator to accept")
	}
	if gotUsername != "alice" {
		t.Fatalf("expected username to be passed through, got %q", gotUsername)
	}
	if got := p.MetricsSnapshot().Counters[MetricPasswordCheckSuccess]; got != 1 {
		t.Fatalf("expected 1 success, got %d", got)
	}
}

func TestLoadIdentityConsumesLoginMarker(t *testing.T) {
	p := newTestProvider(t, newFakeService(), nil)
	req := NewMemoryRequest(nil, map[string]string{"csrf_login": "1"})

	ident := p.LoadIdentity(context.Background(), req, "visit-1")
	if ident == nil {
		t.Fatal("expected identity")
	}
	if _, ok := req.Param("csrf_login"); ok {
		t.Fatal("expected marker to be removed")
	}
	if v, _ := req.Flag(FlagLoginAttempted); v != "true" {
		t.Fatalf("expected login attempted flag, got %q", v)
	}

	other := NewMemoryRequest(nil, nil)
	p.LoadIdentity(context.Background(), other, "visit-1")
	if _, ok := other.Flag(FlagLoginAttempted); ok {
		t.Fatal("flag must only be set when the marker is present")
	}
}

func TestLoadIdentityDegradesToAnonymous(t *testing.T) {
	svc := newFakeService()
	svc.loginFn = func(string, string, string) (string, error) { return "", ErrServiceUnavailable }
	p := newTestProvider(t, svc, nil)

	ident := p.LoadIdentity(context.Background(), NewMemoryRequest(nil, nil), "visit-1")
	if ident == nil {
		t.Fatal("expected anonymous identity, got nil")
	}
	if ident.VisitKey() != "" || !ident.Anonymous(context.Background()) {
		t.Fatal("expected anonymous identity")
	}
}

func TestLoginThrottle(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	svc := newFakeService()
	svc.loginFn = func(_, _, password string) (string, error) {
		if password != "right" {
			return "", &ServiceError{Exc: "AuthError"}
		}
		return "", nil
	}

	cfg := testConfig()
	cfg.Throttle.Enabled = true
	cfg.Throttle.MaxAttempts = 2
	cfg.Throttle.Cooldown = time.Minute
	p, err := New().WithConfig(cfg).WithAccountService(svc).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer p.Close()

	ctx := WithClientIP(context.Background(), "192.0.2.10")
	for i := 0; i < 2; i++ {
		if p.ValidateIdentity(ctx, NewMemoryRequest(nil, nil), "alice", "wrong", "") != nil {
			t.Fatalf("attempt %d: expected rejection", i+1)
		}
	}
	if n, err := p.FailedLogins(ctx, "alice"); err != nil || n != 2 {
		t.Fatalf("expected 2 failed logins, got %d (%v)", n, err)
	}

	loginsBefore, _, _, _ := svc.calls()
	if p.ValidateIdentity(ctx, NewMemoryRequest(nil, nil), "alice", "right", "") != nil {
		t.Fatal("expected throttled login to be refused")
	}
	if loginsAfter, _, _, _ := svc.calls(); loginsAfter != loginsBefore {
		t.Fatal("throttled login must not reach the account service")
	}
	if got := p.MetricsSnapshot().Counters[MetricLoginRateLimited]; got != 1 {
		t.Fatalf("expected 1 throttled login, got %d", got)
	}

	mr.FastForward(2 * time.Minute)
	if p.ValidateIdentity(ctx, NewMemoryRequest(nil, nil), "alice", "right", "") == nil {
		t.Fatal("expected login after cooldown")
	}
}

func TestAuditEventsCarryRequestID(t *testing.T) {
	sink := NewChannelSink(16)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	p, err := New().WithConfig(cfg).WithAccountService(newFakeService()).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithClientIP(ctx, "192.0.2.10")
	p.LoadIdentity(ctx, NewMemoryRequest(nil, nil), "visit-1").User(ctx)
	p.Close()

	var found bool
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != auditEventCSRFRejected {
				continue
			}
			found = true
			if ev.RequestID != "req-1" || ev.IP != "192.0.2.10" {
				t.Fatalf("unexpected event context %+v", ev)
			}
			if ev.Session == "" || ev.Session == "visit-1" {
				t.Fatalf("expected a digest of the visit key, got %q", ev.Session)
			}
			if ev.Error != string(auditErrBadCSRF) {
				t.Fatalf("unexpected error code %q", ev.Error)
			}
		default:
			if !found {
				t.Fatal("expected a csrf_rejected event")
			}
			return
		}
	}
}

func TestAuditErrorCode(t *testing.T) {
	cases := map[AuditErrorCode]error{
		auditErrAuthFailed:         &ServiceError{Exc: "AuthError"},
		auditErrServiceUnavailable: ErrServiceUnavailable,
		auditErrServiceError:       &ServiceError{StatusCode: 400},
		auditErrRateLimited:        ErrLoginRateLimited,
		auditErrInternal:           errors.New("other"),
	}
	for want, err := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("%v: expected %q, got %q", err, want, got)
		}
	}
	if got := auditErrorCode(nil); got != "" {
		t.Fatalf("expected empty code, got %q", got)
	}
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	ctx := context.Background()
	if p.ValidateIdentity(ctx, nil, "a", "b", "c") != nil || p.LoadIdentity(ctx, nil, "c") != nil {
		t.Fatal("nil provider must return nil identities")
	}
	if p.ValidatePassword(&User{Password: "x"}, "a", "x") {
		t.Fatal("nil provider must not validate passwords")
	}
	if _, err := p.HashPassword("whatever-password"); !errors.Is(err, ErrProviderNotReady) {
		t.Fatalf("expected ErrProviderNotReady, got %v", err)
	}
	if p.AuditDropped() != 0 || len(p.MetricsSnapshot().Counters) != 0 {
		t.Fatal("nil provider must report nothing")
	}
	p.Close()
}

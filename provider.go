package jsonfas

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/jsonfas/csrf"
	internalaudit "github.com/MrEthical07/jsonfas/internal/audit"
	"github.com/MrEthical07/jsonfas/internal/rate"
	"github.com/MrEthical07/jsonfas/password"
)

// Provider builds [Identity] values for incoming requests from a shared
// [AccountService]. Build one with [New] at startup and share it; it is safe for
// concurrent use.
type Provider struct {
	config      Config
	service     AccountService
	csrf        csrf.Codec
	passwords   PasswordValidator
	hasher      *password.Argon2
	rateLimiter *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	log         logr.Logger
}

// Close flushes and stops the audit dispatcher.
func (p *Provider) Close() {
	if p == nil {
		return
	}
	if p.audit != nil {
		p.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped because the buffer
// was full or the emitting context ended first.
func (p *Provider) AuditDropped() uint64 {
	return p.AuditStats().Dropped
}

// AuditStats reports delivery counts of the audit dispatcher. It is zero when
// audit is disabled.
func (p *Provider) AuditStats() AuditStats {
	if p == nil {
		return AuditStats{}
	}
	return p.audit.Stats()
}

// MetricsSnapshot returns the current metric values.
func (p *Provider) MetricsSnapshot() MetricsSnapshot {
	if p == nil || p.metrics == nil {
		return emptySnapshot()
	}
	return p.metrics.Snapshot()
}

// Config returns a copy of the configuration the provider was built with.
func (p *Provider) Config() Config {
	if p == nil {
		return Config{}
	}
	return cloneConfig(p.config)
}

func (p *Provider) metricInc(id MetricID) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.Inc(id)
}

func (p *Provider) metricObserve(id MetricID, d time.Duration) {
	if p == nil || p.metrics == nil {
		return
	}
	p.metrics.Observe(id, d)
}

func (p *Provider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.config.Service.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.config.Service.Timeout)
}

// ValidateIdentity checks credentials submitted with a request and returns the
// resulting identity, or nil when they are rejected or the account service
// fails.
//
// With an empty username and SSL enabled, a client certificate the TLS proxy
// reports as verified supplies the username from Config.SSL.CNHeader. That
// username is also set as the request flag [FlagProvidedUsername].
//
// When throttling is enabled, interactive logins are refused after too many
// failures for the same username or client IP (see [WithClientIP]).
func (p *Provider) ValidateIdentity(ctx context.Context, req RequestContext, username, password, visitKey string) *Identity {
	if p == nil {
		return nil
	}
	if req == nil {
		req = nopRequest{}
	}

	usingSSL := false
	ssl := p.config.SSL
	if username == "" && ssl.Enabled && req.Header(ssl.VerifyHeader) == ssl.SuccessValue {
		username = req.Header(ssl.CNHeader)
		req.SetFlag(FlagProvidedUsername, username)
		usingSSL = true
	}

	interactive := !usingSSL && username != "" && password != ""
	ip := clientIPFromContext(ctx)
	if interactive && p.rateLimiter != nil {
		if err := p.rateLimiter.CheckLogin(ctx, username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				err = ErrLoginRateLimited
			}
			p.metricInc(MetricLoginRateLimited)
			p.metricInc(MetricIdentityRejected)
			p.log.Info("login refused by throttle", "username", username, "error", err.Error())
			p.emitAudit(ctx, auditEventLoginRateLimited, false, username, visitKey, err, nil)
			return nil
		}
	}

	ident, err := newIdentity(ctx, p, req, visitKey, nil, username, password, usingSSL)
	if err != nil {
		p.metricInc(MetricIdentityRejected)
		p.log.Error(err, "error logging in", "username", username)
		p.emitAudit(ctx, auditEventIdentityRejected, false, username, visitKey, err, nil)
		if interactive && p.rateLimiter != nil && errors.Is(err, ErrAuthFailed) {
			if rerr := p.rateLimiter.IncrementLogin(ctx, username, ip); rerr != nil && !errors.Is(rerr, rate.ErrRateLimited) {
				p.log.Error(rerr, "could not record failed login", "username", username)
			}
		}
		return nil
	}

	if interactive && p.rateLimiter != nil {
		if rerr := p.rateLimiter.ResetLogin(ctx, username); rerr != nil {
			p.log.Error(rerr, "could not reset login throttle", "username", username)
		}
	}

	p.metricInc(MetricIdentityValidated)
	p.emitAudit(ctx, auditEventIdentityValidated, true, username, ident.VisitKey(), nil, func() map[string]string {
		if usingSSL {
			return map[string]string{"method": "ssl"}
		}
		return map[string]string{"method": "password"}
	})
	return ident
}

// ValidatePassword checks password against the stored credentials of user
// using the configured [PasswordValidator]. The default validator compares
// against user.Password and is false whenever that hash or password is empty.
// username is passed through for validators backed by an external directory.
func (p *Provider) ValidatePassword(user *User, username, password string) bool {
	if p == nil || user == nil {
		return false
	}

	validator := p.passwords
	if validator == nil {
		validator = PasswordValidatorFunc(defaultPasswordValidator)
	}

	ok := validator.ValidatePassword(user, username, password)
	if ok {
		p.metricInc(MetricPasswordCheckSuccess)
	} else {
		p.metricInc(MetricPasswordCheckFailure)
	}
	p.emitAudit(context.Background(), auditEventPasswordCheck, ok, user.Username, "", nil, nil)
	return ok
}

func defaultPasswordValidator(user *User, _ string, plaintext string) bool {
	if user == nil {
		return false
	}
	return password.Verify(plaintext, user.Password)
}

// HashPassword hashes plaintext with the configured Argon2id parameters into
// the format [Provider.ValidatePassword] accepts.
func (p *Provider) HashPassword(plaintext string) (string, error) {
	if p == nil || p.hasher == nil {
		return "", ErrProviderNotReady
	}
	return p.hasher.Hash(plaintext)
}

// FailedLogins returns how many failed interactive logins are currently
// counted against username by the throttle. It is zero when the throttle is
// disabled.
func (p *Provider) FailedLogins(ctx context.Context, username string) (int, error) {
	if p == nil || p.rateLimiter == nil {
		return 0, nil
	}
	return p.rateLimiter.GetLoginAttempts(ctx, username)
}

// PasswordNeedsRehash reports whether the hash stored on user is in an older
// format or weaker than the configured Argon2id parameters. Callers replace it
// with [Provider.HashPassword] after the next successful check.
func (p *Provider) PasswordNeedsRehash(user *User) bool {
	if p == nil || p.hasher == nil || user == nil || user.Password == "" {
		return false
	}
	return p.hasher.NeedsRehash(user.Password)
}

// LoadIdentity rebuilds the identity of a returning visitor from the visit key
// alone. If the request carries the one-shot login marker param it is removed
// and [FlagLoginAttempted] is set.
//
// An account-service failure while binding the key yields
// [Provider.AnonymousIdentity].
func (p *Provider) LoadIdentity(ctx context.Context, req RequestContext, visitKey string) *Identity {
	if p == nil {
		return nil
	}
	if req == nil {
		req = nopRequest{}
	}

	ident, err := newIdentity(ctx, p, req, visitKey, nil, "", "", false)
	if err != nil {
		p.log.Error(err, "could not load identity, continuing anonymously")
		p.emitAudit(ctx, auditEventIdentityLoaded, false, "", visitKey, err, nil)
		ident = p.AnonymousIdentity(ctx, req)
	} else {
		p.metricInc(MetricIdentityLoaded)
	}

	if marker := p.config.CSRF.LoginMarkerParam; marker != "" {
		if _, ok := req.Param(marker); ok {
			req.DeleteParam(marker)
			req.SetFlag(FlagLoginAttempted, "true")
		}
	}
	return ident
}

// AnonymousIdentity returns an identity with no visit key. It never resolves
// to a user and never contacts the account service.
func (p *Provider) AnonymousIdentity(ctx context.Context, req RequestContext) *Identity {
	if p == nil {
		return nil
	}
	// Without a key or credentials construction makes no call and cannot fail.
	ident, _ := newIdentity(ctx, p, req, "", nil, "", "", false)
	return ident
}

// AuthenticatedIdentity wraps a user record that is already known, typically
// right after an interactive login. It has no visit key and makes no calls.
func (p *Provider) AuthenticatedIdentity(req RequestContext, user *User) *Identity {
	if p == nil {
		return nil
	}
	if user == nil {
		return p.AnonymousIdentity(context.Background(), req)
	}
	ident, _ := newIdentity(context.Background(), p, req, "", user, "", "", false)
	return ident
}

// Permissions is always empty. The account service has no permission model.
func (p *Provider) Permissions() []string {
	return []string{}
}

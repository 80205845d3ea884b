package jsonfas

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/go-logr/logr"
)

// Identity is the request-scoped view of who is making a request, backed by a
// visit key the account service knows.
//
// The remote user record is fetched at most once per Identity. [Identity.User]
// additionally requires the request to carry the anti-forgery token derived
// from the visit key, unless the request itself supplied a username and
// password.
//
// An Identity is built by a [Provider] for one request and must not be shared
// between goroutines.
type Identity struct {
	provider *Provider
	req      RequestContext
	session  AccountSession

	visitKey string
	username string
	password string
	usingSSL bool
	explicit *User

	retrieved    *User
	retrievedSet bool

	groups        []string
	groupIDs      []int64
	groupsSet     bool
	failureReason string

	// csrfKey is the visit key the token was last checked against.
	csrfKey     string
	csrfChecked bool
	csrfOK      bool
}

func newIdentity(
	ctx context.Context,
	p *Provider,
	req RequestContext,
	visitKey string,
	explicit *User,
	username string,
	password string,
	usingSSL bool,
) (*Identity, error) {
	if req == nil {
		req = nopRequest{}
	}

	i := &Identity{
		provider: p,
		req:      req,
		visitKey: visitKey,
		username: username,
		password: password,
		usingSSL: usingSSL,
	}

	if explicit != nil {
		i.explicit = explicit
		i.retrieved = explicit
		i.retrievedSet = true
		i.setGroups(explicit)
		return i, nil
	}

	i.session = p.service.NewSession(visitKey, username, password)
	if visitKey != "" {
		req.SetCookie(p.config.Cookie.Name, visitKey)
	}

	// Nothing to bind without a key or credentials.
	if visitKey == "" && username == "" && password == "" {
		return i, nil
	}

	if err := i.Login(ctx, usingSSL); err != nil {
		return nil, err
	}
	return i, nil
}

// Login binds the visit key to the identity's credentials with one call to the
// account service. It does nothing when usingSSL is true: the client
// certificate already vouches for the user and there is no password to send.
//
// Errors are returned unchanged. They wrap [ErrServiceUnavailable] or
// [ErrAuthFailed], or are a [*ServiceError].
func (i *Identity) Login(ctx context.Context, usingSSL bool) error {
	if i == nil || i.session == nil {
		return ErrProviderNotReady
	}

	if !usingSSL {
		if err := i.call(ctx, i.session.Login); err != nil {
			return err
		}
	}
	i.usingSSL = usingSSL
	return nil
}

// RetrieveUser returns the person the account service associates with this
// identity, or nil. The first call fetches; later calls return the same answer,
// including a nil one, without touching the network.
//
// Service failures are logged and reported as nil.
func (i *Identity) RetrieveUser(ctx context.Context) *User {
	if i == nil {
		return nil
	}
	if i.retrievedSet {
		return i.retrieved
	}

	start := time.Now()
	user := i.fetchUser(ctx)
	i.provider.metricObserve(MetricRetrieveLatency, time.Since(start))

	i.retrieved = user
	i.retrievedSet = true
	return user
}

func (i *Identity) fetchUser(ctx context.Context) *User {
	p := i.provider
	log := p.log.WithValues("username", i.username, "ssl", i.usingSSL)

	if i.usingSSL {
		ssl := p.config.SSL
		if i.req.Header(ssl.VerifyHeader) != ssl.SuccessValue {
			log.Info("client certificate not verified upstream, logging out")
			p.metricInc(MetricSSLRejected)
			p.emitAudit(ctx, auditEventSSLRejected, false, i.username, i.visitKey, ErrSSLVerifyFailed, nil)
			i.Logout(ctx)
			return nil
		}
		p.metricInc(MetricSSLVerified)

		callCtx, cancel := p.callContext(ctx)
		defer cancel()
		user, err := p.service.PersonByUsername(callCtx, i.username)
		return i.retrieveResult(log, user, err)
	}

	if i.session == nil {
		return nil
	}

	var user *User
	err := i.call(ctx, func(ctx context.Context) error {
		var err error
		user, err = i.session.ViewUser(ctx)
		return err
	})
	return i.retrieveResult(log, user, err)
}

func (i *Identity) retrieveResult(log logr.Logger, user *User, err error) *User {
	p := i.provider
	switch {
	case errors.Is(err, ErrUserNotFound):
		p.metricInc(MetricUserNotFound)
		log.V(1).Info("account service has no person for this identity")
		return nil
	case err != nil:
		p.metricInc(MetricUserRetrieveFailure)
		log.Error(err, "could not retrieve user from account service")
		return nil
	case user == nil:
		p.metricInc(MetricUserNotFound)
		log.V(1).Info("account service has no person for this identity")
		return nil
	}
	p.metricInc(MetricUserRetrieved)
	return user
}

// User returns the authenticated user, or nil.
//
// A user built directly with [Provider.AuthenticatedIdentity] is always
// returned. Otherwise there must be a visit key, and unless the request
// supplied a username and password the request param named by
// Config.CSRF.TokenParam must carry the token for that key. A bad or missing
// token yields nil and records [FailureBadCSRF] on the identity and as the
// request flag [FlagFailureReason].
func (i *Identity) User(ctx context.Context) *User {
	if i == nil {
		return nil
	}
	if i.explicit != nil {
		return i.explicit
	}
	if i.visitKey == "" {
		return nil
	}

	if (i.username == "" || i.password == "") && !i.tokenValid(ctx) {
		return nil
	}

	user := i.RetrieveUser(ctx)
	if user != nil {
		i.setGroups(user)
	}
	return user
}

// tokenValid checks the request's anti-forgery token against the visit key.
// The outcome is kept until the visit key changes, so a rejection is logged,
// counted and audited once per key no matter how many accessors ask.
func (i *Identity) tokenValid(ctx context.Context) bool {
	if i.csrfChecked && i.csrfKey == i.visitKey {
		return i.csrfOK
	}
	p := i.provider
	token, present := i.req.Param(p.config.CSRF.TokenParam)
	i.csrfChecked = true
	i.csrfKey = i.visitKey
	i.csrfOK = present && p.csrf.Verify(i.visitKey, token)
	if !i.csrfOK {
		p.log.Info("bad csrf token", "present", present)
		i.failureReason = FailureBadCSRF
		i.req.SetFlag(FlagFailureReason, FailureBadCSRF)
		p.metricInc(MetricCSRFRejected)
		p.emitAudit(ctx, auditEventCSRFRejected, false, i.username, i.visitKey, ErrBadCSRFToken, nil)
	}
	return i.csrfOK
}

// OnlyTokenMissing reports whether the account service knows a user for this
// identity, ignoring the anti-forgery token. Login pages use it to tell an
// expired form apart from a visitor who is not logged in at all.
func (i *Identity) OnlyTokenMissing(ctx context.Context) bool {
	return i.RetrieveUser(ctx) != nil
}

// Logout unlinks the visit key from its user at the account service. It does
// nothing without a visit key. Failures are logged and otherwise ignored.
func (i *Identity) Logout(ctx context.Context) {
	if i == nil || i.visitKey == "" || i.session == nil {
		return
	}

	p := i.provider
	p.metricInc(MetricLogout)
	err := i.call(ctx, i.session.Logout)
	if err != nil {
		p.metricInc(MetricLogoutFailure)
		p.log.Error(err, "logout failed")
	}
	p.emitAudit(ctx, auditEventLogout, err == nil, i.username, i.visitKey, err, nil)
}

// call runs one account-session RPC under the configured timeout and then
// adopts the session id the service reports.
func (i *Identity) call(ctx context.Context, rpc func(context.Context) error) error {
	callCtx, cancel := i.provider.callContext(ctx)
	defer cancel()

	err := rpc(callCtx)
	i.resync(ctx)
	if err != nil {
		i.provider.metricInc(MetricServiceError)
	}
	return err
}

func (i *Identity) resync(ctx context.Context) {
	current := i.session.SessionID()
	if current == "" || current == i.visitKey {
		return
	}

	p := i.provider
	previous := i.visitKey
	i.visitKey = current
	i.req.SetCookie(p.config.Cookie.Name, current)

	p.metricInc(MetricVisitKeyRotated)
	p.log.V(1).Info("visit key rotated by account service")
	p.emitAudit(ctx, auditEventVisitKeyRotated, true, i.username, current, nil, func() map[string]string {
		return map[string]string{"previous": sessionDigest(previous)}
	})
}

func (i *Identity) setGroups(user *User) {
	i.groups = user.GroupNames()
	i.groupIDs = user.GroupIDs()
	i.groupsSet = true
}

// CSRFToken returns the anti-forgery token pages must echo back for this visit
// key, or "" without a key.
func (i *Identity) CSRFToken() string {
	if i == nil {
		return ""
	}
	return i.provider.csrf.Derive(i.visitKey)
}

// VisitKey returns the current visit key. It changes when the account service
// rotates it.
func (i *Identity) VisitKey() string {
	if i == nil {
		return ""
	}
	return i.visitKey
}

// UsingSSL reports whether the identity was established by client certificate.
func (i *Identity) UsingSSL() bool {
	return i != nil && i.usingSSL
}

// UserName returns the username of [Identity.User], or "".
func (i *Identity) UserName(ctx context.Context) string {
	if u := i.User(ctx); u != nil {
		return u.Username
	}
	return ""
}

// UserID returns the id of [Identity.User], or 0.
func (i *Identity) UserID(ctx context.Context) int64 {
	if u := i.User(ctx); u != nil {
		return u.ID
	}
	return 0
}

// DisplayName returns the human name of [Identity.User], or "".
func (i *Identity) DisplayName(ctx context.Context) string {
	if u := i.User(ctx); u != nil {
		return u.HumanName
	}
	return ""
}

// Anonymous reports whether [Identity.User] is nil.
func (i *Identity) Anonymous(ctx context.Context) bool {
	return i.User(ctx) == nil
}

// Groups returns the sorted names of the user's approved memberships.
func (i *Identity) Groups(ctx context.Context) []string {
	if i == nil {
		return []string{}
	}
	if !i.groupsSet {
		i.User(ctx)
	}
	if !i.groupsSet {
		return []string{}
	}
	return slices.Clone(i.groups)
}

// GroupIDs returns the sorted ids of the user's approved memberships.
func (i *Identity) GroupIDs(ctx context.Context) []int64 {
	if i == nil {
		return []int64{}
	}
	if !i.groupsSet {
		i.User(ctx)
	}
	if !i.groupsSet {
		return []int64{}
	}
	return slices.Clone(i.groupIDs)
}

// Permissions is always empty. The account service has no permission model.
func (i *Identity) Permissions() []string {
	return []string{}
}

// FailureReason returns why [Identity.User] last resolved to nil, or "".
func (i *Identity) FailureReason() string {
	if i == nil {
		return ""
	}
	return i.failureReason
}

// LoginURL returns where to send a visitor who must log in.
func (i *Identity) LoginURL() string {
	if i == nil || i.provider == nil {
		return ""
	}
	return i.provider.config.FailureURL
}

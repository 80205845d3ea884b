package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/MrEthical07/jsonfas"
)

// Login form field names.
const (
	UsernameField = "user_name"
	PasswordField = "password"
)

// RequestIDHeader is read for an incoming correlation id, and set on the
// response.
const RequestIDHeader = "X-Request-ID"

type identityContextKey struct{}
type requestContextKey struct{}

// IdentityFromContext returns the identity stored by [Identify].
func IdentityFromContext(ctx context.Context) (*jsonfas.Identity, bool) {
	ident, ok := ctx.Value(identityContextKey{}).(*jsonfas.Identity)
	return ident, ok && ident != nil
}

// RequestFromContext returns the [Request] stored by [Identify].
func RequestFromContext(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestContextKey{}).(*Request)
	return req, ok && req != nil
}

// Identify resolves the identity of every request and stores it in the request
// context for [IdentityFromContext].
//
// A request carrying both login form fields is an interactive login and goes
// through Provider.ValidateIdentity; so does a request presenting a verified
// client certificate when SSL is enabled. Every other request is rebuilt from
// its visit cookie with Provider.LoadIdentity. Requests are never rejected
// here; a failed login simply yields an anonymous identity.
func Identify(provider *jsonfas.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provider == nil {
				http.Error(w, "identity unavailable", http.StatusInternalServerError)
				return
			}
			cfg := provider.Config()

			ctx := jsonfas.WithRequestID(r.Context(), r.Header.Get(RequestIDHeader))
			w.Header().Set(RequestIDHeader, jsonfas.RequestIDFromContext(ctx))
			if ip := clientIP(r); ip != "" {
				ctx = jsonfas.WithClientIP(ctx, ip)
			}
			r = r.WithContext(ctx)

			req := NewRequest(w, r, cfg.Cookie)
			visitKey, _ := req.Cookie(cfg.Cookie.Name)

			var ident *jsonfas.Identity
			username, hasUser := req.Param(UsernameField)
			password, hasPassword := req.Param(PasswordField)
			ssl := cfg.SSL
			switch {
			case hasUser && hasPassword && username != "":
				ident = provider.ValidateIdentity(ctx, req, username, password, visitKey)
				req.DeleteParam(PasswordField)
				if ident == nil {
					ident = provider.AnonymousIdentity(ctx, req)
				}
			case ssl.Enabled && req.Header(ssl.VerifyHeader) == ssl.SuccessValue:
				ident = provider.ValidateIdentity(ctx, req, "", "", visitKey)
				if ident == nil {
					ident = provider.LoadIdentity(ctx, req, visitKey)
				}
			default:
				ident = provider.LoadIdentity(ctx, req, visitKey)
			}

			ctx = context.WithValue(ctx, identityContextKey{}, ident)
			ctx = context.WithValue(ctx, requestContextKey{}, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests whose identity has no user. A request that
// failed only the anti-forgery check gets 403; any other gets 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if ident.User(r.Context()) == nil {
			if ident.FailureReason() == jsonfas.FailureBadCSRF {
				http.Error(w, "bad csrf token", http.StatusForbidden)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireGroup is [RequireUser] plus membership in group.
func RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, _ := IdentityFromContext(r.Context())
			for _, g := range ident.Groups(r.Context()) {
				if g == group {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

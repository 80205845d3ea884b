package jsonfas

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable is returned when the account service cannot be reached,
	// times out, or fails at the transport level.
	ErrServiceUnavailable = errors.New("account service unavailable")
	// ErrAuthFailed is returned when the account service rejects the supplied credentials.
	ErrAuthFailed = errors.New("account service authentication failed")
	// ErrUserNotFound is returned by lookups that complete but find no person.
	ErrUserNotFound = errors.New("user not found")
	// ErrBadCSRFToken marks a request whose anti-forgery token was missing or wrong.
	ErrBadCSRFToken = errors.New("bad csrf token")
	// ErrSSLVerifyFailed marks a request whose upstream certificate check did not succeed.
	ErrSSLVerifyFailed = errors.New("ssl client verification failed")
	// ErrLoginRateLimited is returned when the login throttle rejects an attempt.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrProviderNotReady is returned when a nil or unbuilt Provider is used.
	ErrProviderNotReady = errors.New("identity provider not initialized")
	// ErrConfigInvalid wraps every configuration validation failure.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrSSLRequiresServiceCredentials is returned when certificate auth is enabled
	// without the privileged service account used for username lookups.
	ErrSSLRequiresServiceCredentials = errors.New("ssl certificate auth requires service username and password")
)

// ServiceError is a protocol-level failure reported by the account service: an
// error status, an application exception in the JSON reply, or an undecodable body.
type ServiceError struct {
	Method     string
	StatusCode int
	Exc        string
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	method := e.Method
	if method == "" {
		method = "login"
	}
	switch {
	case e.Exc != "" && e.Message != "":
		return fmt.Sprintf("account service %s: %s: %s", method, e.Exc, e.Message)
	case e.Exc != "":
		return fmt.Sprintf("account service %s: %s", method, e.Exc)
	case e.Err != nil:
		return fmt.Sprintf("account service %s: %v", method, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("account service %s: unexpected status %d", method, e.StatusCode)
	}
	return fmt.Sprintf("account service %s: error", method)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports AuthError exceptions as ErrAuthFailed so callers need only one check.
func (e *ServiceError) Is(target error) bool {
	return target == ErrAuthFailed && e.Exc == "AuthError"
}

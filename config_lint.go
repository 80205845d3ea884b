package jsonfas

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// LintSeverity ranks a [LintWarning].
type LintSeverity int

const (
	// LintInfo marks a setting worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that weakens a deployment.
	LintWarn
	// LintHigh marks a setting that exposes credentials or sessions.
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// LintWarning is one finding from [Config.Lint].
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings for a config.
type LintResult []LintWarning

// Codes returns the code of every finding.
func (r LintResult) Codes() []string {
	codes := make([]string, len(r))
	for i, w := range r {
		codes[i] = w.Code
	}
	return codes
}

// BySeverity returns the findings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the findings at or above min into an error wrapping
// [ErrConfigInvalid], or returns nil when there are none.
func (r LintResult) AsError(min LintSeverity) error {
	found := r.BySeverity(min)
	if len(found) == 0 {
		return nil
	}
	errs := make([]error, len(found))
	for i, w := range found {
		errs[i] = fmt.Errorf("%s (%s): %s", w.Code, w.Severity, w.Message)
	}
	return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
}

const (
	minArgon2MemoryKB  = 19 * 1024
	minCSRFSecretBytes = 32
	longServiceTimeout = 30 * time.Second
)

// Lint reports settings that are valid but risky. Unlike [Config.Validate]
// it never blocks Build; callers decide what to do with the findings.
func (c *Config) Lint() LintResult {
	var r LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		r = append(r, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	plainHTTP := false
	if u, err := url.Parse(c.Service.URL); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		plainHTTP = true
	}
	if plainHTTP {
		sev := LintWarn
		if c.Service.Password != "" {
			sev = LintHigh
		}
		add("service_plain_http", sev, "account service %s is reached without TLS", c.Service.URL)
	}
	if c.Service.Timeout > longServiceTimeout {
		add("service_timeout_long", LintWarn, "service timeout %s holds request goroutines for a long time", c.Service.Timeout)
	}

	if c.CSRF.Secret == "" {
		add("csrf_legacy", LintInfo, "anti-forgery tokens are the unkeyed SHA-1 of the visit key")
	} else if len(c.CSRF.Secret) < minCSRFSecretBytes {
		add("csrf_secret_short", LintWarn, "csrf secret is %d bytes, want at least %d", len(c.CSRF.Secret), minCSRFSecretBytes)
	}

	if !c.Cookie.HTTPOnly {
		add("cookie_not_httponly", LintHigh, "visit cookie %q is readable from scripts", c.Cookie.Name)
	}
	if !c.Cookie.Secure {
		add("cookie_not_secure", LintWarn, "visit cookie %q is sent over plain HTTP", c.Cookie.Name)
	}

	if !c.Throttle.Enabled {
		add("throttle_disabled", LintWarn, "interactive logins are not rate limited")
	} else if !c.Throttle.EnableIPThrottle {
		add("throttle_ip_disabled", LintInfo, "login throttle is keyed by username only")
	}

	if c.Password.Memory < minArgon2MemoryKB {
		add("argon2_memory_low", LintWarn, "argon2 memory %d KB is below %d KB", c.Password.Memory, minArgon2MemoryKB)
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "no audit events are emitted")
	}
	if c.Debug {
		add("debug_enabled", LintInfo, "identity resolution is logged in detail")
	}

	return r
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

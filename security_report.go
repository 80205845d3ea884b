package jsonfas

import (
	"net/url"
	"time"
)

// SecurityReport summarizes the security posture of a built provider.
type SecurityReport struct {
	AccountServiceHost  string
	ServiceTimeout      time.Duration
	ServiceCredentials  bool
	CSRFMode            string
	SSLEnabled          bool
	CookieSecure        bool
	CookieHTTPOnly      bool
	ThrottleActive      bool
	IPThrottleActive    bool
	AuditEnabled        bool
	MetricsEnabled      bool
	CustomPasswordCheck bool
	Argon2              PasswordConfigReport
	Warnings            LintResult
}

// PasswordConfigReport is the argon2 part of [SecurityReport].
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// CSRF modes reported by [Provider.SecurityReport].
const (
	CSRFModeLegacy = "legacy-sha1"
	CSRFModeKeyed  = "hmac-sha256"
)

// SecurityReport describes the effective configuration, including
// [Config.Lint] findings.
func (p *Provider) SecurityReport() SecurityReport {
	if p == nil {
		return SecurityReport{}
	}
	cfg := p.config

	mode := CSRFModeLegacy
	if cfg.CSRF.Secret != "" {
		mode = CSRFModeKeyed
	}

	return SecurityReport{
		AccountServiceHost:  serviceHost(cfg.Service.URL),
		ServiceTimeout:      cfg.Service.Timeout,
		ServiceCredentials:  cfg.Service.Username != "" && cfg.Service.Password != "",
		CSRFMode:            mode,
		SSLEnabled:          cfg.SSL.Enabled,
		CookieSecure:        cfg.Cookie.Secure,
		CookieHTTPOnly:      cfg.Cookie.HTTPOnly,
		ThrottleActive:      p.rateLimiter != nil,
		IPThrottleActive:    p.rateLimiter != nil && cfg.Throttle.EnableIPThrottle,
		AuditEnabled:        p.audit != nil,
		MetricsEnabled:      p.metrics.Enabled(),
		CustomPasswordCheck: p.passwords != nil,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		Warnings: cfg.Lint(),
	}
}

func serviceHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

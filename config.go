package jsonfas

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config defines a public type used by jsonfas APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Service    ServiceConfig  `toml:"service"`
	SSL        SSLConfig      `toml:"ssl"`
	Cookie     CookieConfig   `toml:"cookie"`
	CSRF       CSRFConfig     `toml:"csrf"`
	Password   PasswordConfig `toml:"password"`
	Throttle   ThrottleConfig `toml:"throttle"`
	Audit      AuditConfig    `toml:"audit"`
	Metrics    MetricsConfig  `toml:"metrics"`
	FailureURL string         `toml:"failure_url"`
	Debug      bool           `toml:"debug"`
}

/*
====================================
ACCOUNT SERVICE CONFIG
====================================
*/

// ServiceConfig locates the account service and sets how it is called.
type ServiceConfig struct {
	URL       string `toml:"url"`
	UserAgent string `toml:"user_agent"`
	// Username and Password are the privileged service credentials used for
	// lookups that are not made on behalf of the requesting user.
	Username     string        `toml:"username"`
	Password     string        `toml:"password"`
	Timeout      time.Duration `toml:"timeout"`
	RetryMax     int           `toml:"retry_max"`
	RetryWaitMin time.Duration `toml:"retry_wait_min"`
	RetryWaitMax time.Duration `toml:"retry_wait_max"`
}

/*
====================================
SSL CLIENT CERTIFICATE CONFIG
====================================
*/

// SSLConfig controls the client-certificate trust path. The TLS terminating proxy
// verifies the certificate and forwards the outcome in request headers.
type SSLConfig struct {
	Enabled      bool   `toml:"enabled"`
	VerifyHeader string `toml:"verify_header"`
	CNHeader     string `toml:"cn_header"`
	SuccessValue string `toml:"success_value"`
}

/*
====================================
COOKIE + CSRF CONFIG
====================================
*/

// CookieConfig defines a public type used by jsonfas APIs.
//
// CookieConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CookieConfig struct {
	Name     string        `toml:"name"`
	Path     string        `toml:"path"`
	Secure   bool          `toml:"secure"`
	HTTPOnly bool          `toml:"http_only"`
	SameSite http.SameSite `toml:"-"`
}

// CSRFConfig names the request params carrying the anti-forgery token and the
// one-shot interactive login marker.
//
// Secret is empty by default, which keeps the unkeyed token format understood by
// pages rendered elsewhere for the same session. Setting it switches to a keyed
// token that cannot be recomputed from the visit key alone.
type CSRFConfig struct {
	TokenParam       string `toml:"token_param"`
	LoginMarkerParam string `toml:"login_marker_param"`
	Secret           string `toml:"secret"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets the Argon2id cost used by [Provider.HashPassword] and the
// plaintext length bounds. Stored hashes are verified with their own
// parameters.
type PasswordConfig struct {
	Memory           uint32 `toml:"memory"` // in KB
	Time             uint32 `toml:"time"`
	Parallelism      uint8  `toml:"parallelism"`
	SaltLength       uint32 `toml:"salt_length"`
	KeyLength        uint32 `toml:"key_length"`
	MinPasswordBytes int    `toml:"min_password_bytes"`
	MaxPasswordBytes int    `toml:"max_password_bytes"`
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig controls the Redis-backed limit on failed interactive logins.
type ThrottleConfig struct {
	Enabled          bool          `toml:"enabled"`
	RedisPrefix      string        `toml:"redis_prefix"`
	MaxAttempts      int           `toml:"max_attempts"`
	Cooldown         time.Duration `toml:"cooldown"`
	EnableIPThrottle bool          `toml:"enable_ip_throttle"`
}

// AuditConfig defines a public type used by jsonfas APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

// MetricsConfig defines a public type used by jsonfas APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			URL:          "https://admin.fedoraproject.org/accounts/",
			UserAgent:    "jsonfas/" + Version,
			Timeout:      5 * time.Second,
			RetryMax:     1,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: time.Second,
		},
		SSL: SSLConfig{
			Enabled:      false,
			VerifyHeader: "X-Client-Verify",
			CNHeader:     "X-Client-CN",
			SuccessValue: "SUCCESS",
		},
		Cookie: CookieConfig{
			Name:     "tg-visit",
			Path:     "/",
			HTTPOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		CSRF: CSRFConfig{
			TokenParam:       "_csrf_token",
			LoginMarkerParam: "csrf_login",
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MinPasswordBytes: 10,
			MaxPasswordBytes: 1024,
		},
		Throttle: ThrottleConfig{
			Enabled:          false,
			RedisPrefix:      "jsonfas",
			MaxAttempts:      5,
			Cooldown:         15 * time.Minute,
			EnableIPThrottle: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		FailureURL: "/login",
	}
}

// Validate reports every configuration problem that would make the provider
// misbehave at request time. All returned errors wrap [ErrConfigInvalid].
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Service.URL) == "" {
		errs = append(errs, errors.New("service.url is required"))
	} else if u, err := url.Parse(c.Service.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("service.url %q is not an absolute URL", c.Service.URL))
	}
	if c.Service.Timeout <= 0 {
		errs = append(errs, errors.New("service.timeout must be > 0"))
	}
	if c.Service.RetryMax < 0 {
		errs = append(errs, errors.New("service.retry_max must be >= 0"))
	}
	if c.Service.RetryWaitMin > c.Service.RetryWaitMax {
		errs = append(errs, errors.New("service.retry_wait_min must not exceed service.retry_wait_max"))
	}

	if c.SSL.Enabled {
		if c.Service.Username == "" || c.Service.Password == "" {
			errs = append(errs, ErrSSLRequiresServiceCredentials)
		}
		if c.SSL.VerifyHeader == "" || c.SSL.CNHeader == "" || c.SSL.SuccessValue == "" {
			errs = append(errs, errors.New("ssl headers and success value must be set when ssl is enabled"))
		}
	}

	if c.Cookie.Name == "" {
		errs = append(errs, errors.New("cookie.name is required"))
	}
	if c.CSRF.TokenParam == "" {
		errs = append(errs, errors.New("csrf.token_param is required"))
	}

	if c.Password.MinPasswordBytes > 0 && c.Password.MaxPasswordBytes > 0 &&
		c.Password.MinPasswordBytes > c.Password.MaxPasswordBytes {
		errs = append(errs, errors.New("password.min_password_bytes must not exceed password.max_password_bytes"))
	}

	if c.Throttle.Enabled {
		if c.Throttle.MaxAttempts <= 0 {
			errs = append(errs, errors.New("throttle.max_attempts must be > 0"))
		}
		if c.Throttle.Cooldown <= 0 {
			errs = append(errs, errors.New("throttle.cooldown must be > 0"))
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		errs = append(errs, errors.New("audit.buffer_size must be > 0"))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
}

func cloneConfig(cfg Config) Config {
	return cfg
}

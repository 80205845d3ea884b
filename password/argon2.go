package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length")
	ErrMalformedHash    = errors.New("malformed password hash")
	ErrWeakParameters   = errors.New("argon2 parameters below minimum")
)

// Lower bounds for both configured and stored parameters.
const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// Defaults applied when Config leaves a length bound unset.
const (
	DefaultMinPasswordBytes = 10
	DefaultMaxPasswordBytes = 1024
)

// Config holds Argon2id cost parameters and plaintext length bounds. Only new
// hashes are subject to MinPasswordBytes.
type Config struct {
	Memory           uint32 // KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("%w: memory %d KB < %d KB", ErrWeakParameters, c.Memory, minMemoryKB)
	case c.Time < minTimeCost:
		return fmt.Errorf("%w: time %d < %d", ErrWeakParameters, c.Time, minTimeCost)
	case c.Parallelism < minParallelism:
		return fmt.Errorf("%w: parallelism %d < %d", ErrWeakParameters, c.Parallelism, minParallelism)
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("%w: salt length %d < %d", ErrWeakParameters, c.SaltLength, minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("%w: key length %d < %d", ErrWeakParameters, c.KeyLength, minKeyLength)
	}
	return nil
}

// Argon2 hashes new passwords as argon2id PHC strings.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MinPasswordBytes <= 0 {
		cfg.MinPasswordBytes = DefaultMinPasswordBytes
	}
	if cfg.MaxPasswordBytes <= 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of a fresh argon2id hash of password. The
// plaintext bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < a.config.MinPasswordBytes {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrPasswordTooShort, a.config.MinPasswordBytes)
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", err
	}
	h.key = h.derive(password, a.config.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches the argon2id PHC string stored.
// The cost parameters come from stored, not from the hasher's config.
func (a *Argon2) Verify(password, stored string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	return checkArgon2(password, stored)
}

// NeedsRehash reports whether stored should be replaced by a fresh [Argon2.Hash]
// on the next successful login: it is in another format, or was produced with
// weaker parameters than the current config.
func (a *Argon2) NeedsRehash(stored string) bool {
	if Detect(stored) != AlgorithmArgon2id {
		return true
	}
	h, err := parsePHC(stored)
	if err != nil {
		return true
	}
	return h.memory < a.config.Memory ||
		h.time < a.config.Time ||
		h.parallelism < a.config.Parallelism ||
		uint32(len(h.key)) != a.config.KeyLength
}

func checkArgon2(password, stored string) (bool, error) {
	h, err := parsePHC(stored)
	if err != nil {
		return false, err
	}
	computed := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(computed, h.key) == 1, nil
}

// phc is one argon2id hash in PHC string form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

const phcAlgorithm = "argon2id"

func (h phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.memory, h.time, h.parallelism,
		base64.StdEncoding.EncodeToString(h.salt),
		base64.StdEncoding.EncodeToString(h.key),
	)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, fmt.Sprintf(format, args...))
}

func parsePHC(s string) (phc, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, malformed("want 5 $-separated fields")
	}
	if parts[1] != phcAlgorithm {
		return phc{}, malformed("algorithm %q", parts[1])
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return phc{}, malformed("missing version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, malformed("version %q", version)
	}

	var h phc
	if err := h.parseParams(parts[3]); err != nil {
		return phc{}, err
	}

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil {
		return phc{}, malformed("salt encoding")
	}
	if uint32(len(h.salt)) < minSaltLength {
		return phc{}, malformed("salt length %d", len(h.salt))
	}
	if h.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil {
		return phc{}, malformed("key encoding")
	}
	if len(h.key) == 0 {
		return phc{}, malformed("empty key")
	}
	return h, nil
}

// parseParams reads "m=..,t=..,p=..". Each must appear exactly once and meet
// the configured minimums, so a tampered hash cannot force a trivial check.
func (h *phc) parseParams(s string) error {
	seen := make(map[string]bool, 3)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return malformed("parameter %q", pair)
		}
		seen[k] = true

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minMemoryKB {
				return malformed("memory %q", v)
			}
			h.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || uint32(n) < minTimeCost {
				return malformed("time %q", v)
			}
			h.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || uint8(n) < minParallelism {
				return malformed("parallelism %q", v)
			}
			h.parallelism = uint8(n)
		default:
			return malformed("unknown parameter %q", k)
		}
	}
	if !seen["m"] || !seen["t"] || !seen["p"] {
		return malformed("missing parameters")
	}
	return nil
}

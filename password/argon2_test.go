package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func secureConfig() Config {
	return Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func cheapConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	hasher := newHasher(t, secureConfig())

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, got %v %v", ok, err)
	}
	ok, err = hasher.Verify("P@ssw0rd-Ascij", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail cleanly, got %v %v", ok, err)
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher := newHasher(t, cheapConfig())
	a, _ := hasher.Hash("same-password-twice")
	b, _ := hasher.Hash("same-password-twice")
	if a == b {
		t.Fatal("expected distinct salts")
	}
}

func TestHashLengthBounds(t *testing.T) {
	cfg := cheapConfig()
	cfg.MaxPasswordBytes = 32
	hasher := newHasher(t, cfg)

	for _, pw := range []string{"", "short"} {
		if _, err := hasher.Hash(pw); !errors.Is(err, ErrPasswordTooShort) {
			t.Fatalf("Hash(%q): expected ErrPasswordTooShort, got %v", pw, err)
		}
	}
	long := strings.Repeat("x", 33)
	if _, err := hasher.Hash(long); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := hasher.Verify(long, "$argon2id$"); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected Verify to bound plaintext, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	mutations := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	}
	for name, mutate := range mutations {
		cfg := cheapConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); !errors.Is(err, ErrWeakParameters) {
			t.Errorf("%s: expected ErrWeakParameters, got %v", name, err)
		}
	}
}

func TestNeedsRehash(t *testing.T) {
	oldHasher := newHasher(t, cheapConfig())
	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if oldHasher.NeedsRehash(hash) {
		t.Fatal("hash with current parameters must not need a rehash")
	}
	if !newHasher(t, secureConfig()).NeedsRehash(hash) {
		t.Fatal("hash with weaker parameters must need a rehash")
	}

	raw, err := bcrypt.GenerateFromPassword([]byte("test-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	if !oldHasher.NeedsRehash(string(raw)) {
		t.Fatal("bcrypt hash must need a rehash")
	}
	if !oldHasher.NeedsRehash("garbage") {
		t.Fatal("unparseable hash must need a rehash")
	}
}

func TestParsePHCRoundTrip(t *testing.T) {
	hasher := newHasher(t, cheapConfig())
	hash, err := hasher.Hash("round-trip-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	h, err := parsePHC(hash)
	if err != nil {
		t.Fatalf("parsePHC error: %v", err)
	}
	if h.String() != hash {
		t.Fatalf("expected %q, got %q", hash, h.String())
	}
}

func TestVerifyMalformedHashes(t *testing.T) {
	hasher := newHasher(t, cheapConfig())
	valid, err := hasher.Hash("malformed-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(valid, "$")
	salt, key := parts[4], parts[5]

	cases := map[string]string{
		"too few fields":    "$argon2id$v=19$m=8192,t=1,p=1$" + salt,
		"wrong algorithm":   "$argon2i$v=19$m=8192,t=1,p=1$" + salt + "$" + key,
		"wrong version":     "$argon2id$v=16$m=8192,t=1,p=1$" + salt + "$" + key,
		"missing version":   "$argon2id$19$m=8192,t=1,p=1$" + salt + "$" + key,
		"memory too low":    "$argon2id$v=19$m=1,t=1,p=1$" + salt + "$" + key,
		"time zero":         "$argon2id$v=19$m=8192,t=0,p=1$" + salt + "$" + key,
		"duplicate param":   "$argon2id$v=19$m=8192,m=8192,p=1$" + salt + "$" + key,
		"unknown param":     "$argon2id$v=19$m=8192,t=1,x=1$" + salt + "$" + key,
		"missing param":     "$argon2id$v=19$m=8192,t=1$" + salt + "$" + key,
		"bad salt encoding": "$argon2id$v=19$m=8192,t=1,p=1$***$" + key,
		"short salt":        "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA==$" + key,
		"bad key encoding":  "$argon2id$v=19$m=8192,t=1,p=1$" + salt + "$***",
		"empty key":         "$argon2id$v=19$m=8192,t=1,p=1$" + salt + "$",
	}
	for name, stored := range cases {
		ok, err := hasher.Verify("malformed-test", stored)
		if ok || !errors.Is(err, ErrMalformedHash) {
			t.Errorf("%s: expected ErrMalformedHash, got %v %v", name, ok, err)
		}
	}
}

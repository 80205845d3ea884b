package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestDetect(t *testing.T) {
	cases := map[string]Algorithm{
		"$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA": AlgorithmArgon2id,
		"$2a$10$abcdefghijklmnopqrstuv":                 AlgorithmBcrypt,
		"$2b$10$abcdefghijklmnopqrstuv":                 AlgorithmBcrypt,
		"$2y$10$abcdefghijklmnopqrstuv":                 AlgorithmBcrypt,
		"$1$saltsalt$hash":                              AlgorithmMD5Crypt,
		"$5$saltsalt$hash":                              AlgorithmSHA256Crypt,
		"$6$rounds=5000$saltsalt$hash":                  AlgorithmSHA512Crypt,
		"saLTxyzABCdef":                                 AlgorithmUnknown,
		"plaintext":                                     AlgorithmUnknown,
		"":                                              AlgorithmUnknown,
	}
	for in, want := range cases {
		if got := Detect(in); got != want {
			t.Fatalf("Detect(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestVerifyArgon2Hash(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := hasher.Hash("legacy-password-1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !Verify("legacy-password-1", hash) {
		t.Fatal("expected matching password to verify")
	}
	if Verify("legacy-password-2", hash) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestVerifyBcryptHash(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}
	hash := string(raw)

	if !Verify("hunter22", hash) {
		t.Fatal("expected matching bcrypt password to verify")
	}
	if Verify("hunter23", hash) {
		t.Fatal("expected wrong bcrypt password to fail")
	}
}

func TestVerifyRejectsEmptyInputs(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("x"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	if Verify("", string(raw)) {
		t.Fatal("expected empty password to fail")
	}
	if Verify("x", "") {
		t.Fatal("expected empty stored hash to fail")
	}
}

func TestVerifyCryptHashes(t *testing.T) {
	// Reference outputs of `openssl passwd -1/-5/-6`.
	cases := []struct {
		name     string
		password string
		stored   string
	}{
		{"md5-crypt", "secretpw", "$1$saltsalt$/KCD/NvwYPE3YzbUMvHNe."},
		{"sha256-crypt", "Hello world!", "$5$saltstring$5B8vYYiY.CVt1RlTTf8KbXBH3hsxY/GNooZaBBGWEc5"},
		{"sha512-crypt", "Hello world!", "$6$saltstring$svn8UoSVapNtMuq1ukKS4tPQd8iKwSMHWjl/O817G3uBnIFNjnQJuesI68u4OTLiBFdcbYEdFCoEOfaS35inz1"},
		{"sha512-crypt short salt", "secretpw", "$6$saltsalt$xu9/qiJ1zv/ph9Z3Cqv4qtkwOG83JC6cPkNu/EZ7DtLKrkzA5qJ.9wkfbx5W8Xa77jcQZzdYN4zE.EPHRNZ0D/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := Check(tc.password, tc.stored)
			if err != nil || !ok {
				t.Fatalf("expected match, got %v %v", ok, err)
			}
			ok, err = Check(tc.password+"x", tc.stored)
			if err != nil || ok {
				t.Fatalf("expected clean mismatch, got %v %v", ok, err)
			}
		})
	}
}

func TestCheckUnsupportedHash(t *testing.T) {
	if _, err := Check("password", "saLTxyzABCdef"); err != ErrUnsupportedHash {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if Verify("password", "password") {
		t.Fatal("expected plaintext stored value never to verify")
	}
}

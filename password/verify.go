package password

import (
	"errors"
	"strings"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned for stored hashes in an unknown format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Algorithm names a stored hash format.
type Algorithm string

const (
	AlgorithmUnknown  Algorithm = ""
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
	// crypt(3) formats found in older account databases.
	AlgorithmMD5Crypt    Algorithm = "md5-crypt"
	AlgorithmSHA256Crypt Algorithm = "sha256-crypt"
	AlgorithmSHA512Crypt Algorithm = "sha512-crypt"
)

// Detect returns the format of a stored hash.
func Detect(stored string) Algorithm {
	switch {
	case strings.HasPrefix(stored, "$"+phcAlgorithm+"$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(stored, "$2a$"),
		strings.HasPrefix(stored, "$2b$"),
		strings.HasPrefix(stored, "$2y$"):
		return AlgorithmBcrypt
	case strings.HasPrefix(stored, "$1$"):
		return AlgorithmMD5Crypt
	case strings.HasPrefix(stored, "$5$"):
		return AlgorithmSHA256Crypt
	case strings.HasPrefix(stored, "$6$"):
		return AlgorithmSHA512Crypt
	}
	return AlgorithmUnknown
}

// Check reports whether password matches stored under the algorithm named by
// stored. Malformed or unsupported hashes return an error.
func Check(password, stored string) (bool, error) {
	if len(password) > DefaultMaxPasswordBytes {
		return false, ErrPasswordTooLong
	}

	switch Detect(stored) {
	case AlgorithmArgon2id:
		return checkArgon2(password, stored)
	case AlgorithmBcrypt:
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	case AlgorithmMD5Crypt:
		return checkCrypt(md5_crypt.New(), password, stored)
	case AlgorithmSHA256Crypt:
		return checkCrypt(sha256_crypt.New(), password, stored)
	case AlgorithmSHA512Crypt:
		return checkCrypt(sha512_crypt.New(), password, stored)
	}
	return false, ErrUnsupportedHash
}

// checkCrypt re-hashes password with the salt and rounds embedded in stored.
func checkCrypt(c crypt.Crypter, password, stored string) (bool, error) {
	err := c.Verify(stored, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, crypt.ErrKeyMismatch):
		return false, nil
	default:
		return false, err
	}
}

// Verify is [Check] collapsed to a boolean. An empty stored hash or an empty
// password never matches.
func Verify(password, stored string) bool {
	if stored == "" || password == "" {
		return false
	}
	ok, err := Check(password, stored)
	return err == nil && ok
}

// Package password hashes new passwords with Argon2id and verifies stored hashes
// in the formats account databases have accumulated over time.
//
// # Formats
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verify] additionally accepts bcrypt hashes ($2a$, $2b$, $2y$) and the crypt(3)
// formats MD5-crypt ($1$), SHA-256-crypt ($5$) and SHA-512-crypt ($6$).
// Traditional DES crypt is not supported. The algorithm is
// read from the stored hash itself, so one call checks any supported format.
//
// [Argon2.NeedsRehash] reports hashes in another format or produced with weaker
// parameters so the caller can re-hash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other jsonfas package.
//   - Log plaintext passwords or hash parameters at runtime.
package password

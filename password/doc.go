// Package password hashes and verifies account passwords.
//
// # Output format
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and key use unpadded standard base64; padded input is accepted.
//
// Hashes imported from older systems in bcrypt format ($2a$, $2b$, $2y$) still
// verify. [Hasher.NeedsRehash] reports true for them and for Argon2id hashes
// made with weaker parameters, so the engine can re-hash after the next
// successful login.
//
// [Policy] checks the composition rules a new password must satisfy before it
// is hashed. This package never stores or logs plaintext.
package password

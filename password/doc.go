// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// [Hasher.NeedsRehash] reports hashes produced with weaker parameters so the
// engine can upgrade them on the next successful login.
package password

// Package privacyamp implements the Privacy Amplifier (spec §4.5): it
// compresses a Reconciled Key, from which the Cascade exchange has leaked
// some parity bits, down to a fixed-length Final Key via a cryptographic
// hash.
package privacyamp

import "crypto/sha256"

// FinalKeyLen is the length in bytes of the Final Key (256 bits).
const FinalKeyLen = sha256.Size

// Amplify hashes a packed Reconciled Key down to a 256-bit Final Key.
// Hashing destroys any structure an eavesdropper inferred from observed
// Cascade parities without needing to track exactly which bits leaked.
func Amplify(reconciled []byte) [FinalKeyLen]byte {
	return sha256.Sum256(reconciled)
}

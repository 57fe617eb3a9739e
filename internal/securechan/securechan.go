// Package securechan implements the Secure Channel Test (spec §4.6): an
// AES-256-GCM round trip that verifies two Final Keys agree without ever
// putting the keys themselves on the wire.
package securechan

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/barnettlynn/plkg/internal/plkgerr"
)

// NonceSize is the length in bytes of the GCM nonce (spec §4.6: 16 bytes,
// not the 12-byte default crypto/cipher.NewGCM assumes, so the Sealed
// envelope carries it explicitly rather than relying on the cipher's own
// NonceSize).
const NonceSize = 16

// Seal encrypts plaintext under key with a fresh random nonce, returning
// the hex-encoded wire payload nonce‖tag‖ciphertext for transmission as
// SECURE_MSG:<hex>.
func Seal(key [32]byte, plaintext []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", plkgerr.New(plkgerr.KindSerialUnavailable, "securechan.seal", err)
	}

	// gcm.Seal returns ciphertext‖tag; reorder to nonce‖tag‖ciphertext.
	sealed := gcm.Seal(nil, nonce[:gcm.NonceSize()], plaintext, nil)
	ct, tag := sealed[:len(plaintext)], sealed[len(plaintext):]
	return hex.EncodeToString(append(append(nonce, tag...), ct...)), nil
}

// Open decrypts a SECURE_MSG hex payload under key. It returns
// decryption_failure if the AEAD tag does not verify, which is the
// expected outcome when the local key disagrees with the sender's.
func Open(key [32]byte, hexPayload string) ([]byte, error) {
	raw, err := hex.DecodeString(hexPayload)
	if err != nil {
		return nil, plkgerr.New(plkgerr.KindDecryptionFailure, "securechan.open", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(raw) < NonceSize+gcm.Overhead() {
		return nil, plkgerr.New(plkgerr.KindDecryptionFailure, "securechan.open", fmt.Errorf("payload too short: %d bytes", len(raw)))
	}

	nonce, tag, ct := raw[:NonceSize], raw[NonceSize:NonceSize+gcm.Overhead()], raw[NonceSize+gcm.Overhead():]
	sealed := append(append([]byte(nil), ct...), tag...)
	plaintext, err := gcm.Open(nil, nonce[:gcm.NonceSize()], sealed, nil)
	if err != nil {
		return nil, plkgerr.New(plkgerr.KindDecryptionFailure, "securechan.open", err)
	}
	return plaintext, nil
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, plkgerr.New(plkgerr.KindDecryptionFailure, "securechan.newgcm", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, plkgerr.New(plkgerr.KindDecryptionFailure, "securechan.newgcm", err)
	}
	return gcm, nil
}

// Outcome is the result of one endpoint's Secure Channel Test attempt.
type Outcome struct {
	Success   bool
	Plaintext []byte // only set on success
}

// Attempt decrypts hexPayload under key and reports the outcome without
// returning an error: a key mismatch and malformed input (e.g. an
// unparsable hex string) alike yield Success false.
func Attempt(key [32]byte, hexPayload string) Outcome {
	pt, err := Open(key, hexPayload)
	if err != nil {
		return Outcome{Success: false}
	}
	return Outcome{Success: true, Plaintext: pt}
}

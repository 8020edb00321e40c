package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/privy-chat/privy/internal/keys"
)

// FingerprintSize is the size of a Fingerprint in bytes (SHA-256 digest).
const FingerprintSize = sha256.Size

var errInvalidFingerprintLength = errors.New("identity: invalid fingerprint length")

// Fingerprint is the SHA-256 digest of a public key, used as the
// human-verifiable trust anchor for a chat participant.
type Fingerprint [FingerprintSize]byte

// NewFingerprint derives the Fingerprint of a public key.
func NewFingerprint(pub keys.PublicKey) Fingerprint {
	return Fingerprint(sha256.Sum256(pub[:]))
}

// String renders the fingerprint as colon-separated hex.
func (f Fingerprint) String() string {
	parts := make([]string, len(f))
	for i, b := range f {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

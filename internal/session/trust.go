package session

import (
	"fmt"

	"github.com/privy-chat/privy/internal/identity"
)

// TrustStore is the subset of *vault.Vault that trust enforcement needs.
// Kept minimal and local so this package does not depend on vault.
type TrustStore interface {
	IsTrusted(fp identity.Fingerprint) bool
}

// ErrUntrusted is returned by RequireTrusted when the peer's fingerprint
// is not in the caller's trust store.
type ErrUntrusted struct {
	Fingerprint identity.Fingerprint
}

func (e *ErrUntrusted) Error() string {
	return fmt.Sprintf("session: peer %s is not trusted", e.Fingerprint)
}

// RequireTrusted is an opt-in policy hook, not part of the handshake
// itself: a caller that wants to refuse sessions with unrecognized
// peers calls this immediately after a successful handshake, before
// starting the network and terminal loops.
func RequireTrusted(store TrustStore, peer identity.PublicIdentity) error {
	if !store.IsTrusted(peer.Fingerprint) {
		return &ErrUntrusted{Fingerprint: peer.Fingerprint}
	}
	return nil
}

package identity

import (
	"fmt"

	"github.com/privy-chat/privy/internal/keys"
)

// Identity is a chat participant's full, private identity: a name chosen
// by the owner, a random Identifier, the Fingerprint of its public key,
// and the X25519 keypair backing it. SecretKey never leaves the process
// except encrypted inside an IdentityVault.
type Identity struct {
	Name        string
	Identifier  Identifier
	Fingerprint Fingerprint
	PublicKey   keys.PublicKey
	SecretKey   keys.SecretKey
}

// PublicIdentity is the subset of an Identity safe to hand to a peer or
// store in a trust list: everything except the secret key.
type PublicIdentity struct {
	Name        string         `msgpack:"name"`
	Identifier  Identifier     `msgpack:"identifier"`
	Fingerprint Fingerprint    `msgpack:"fingerprint"`
	PublicKey   keys.PublicKey `msgpack:"public_key"`
}

// New generates a fresh Identity with a new Identifier and keypair.
func New(name string) (Identity, error) {
	pub, sec, err := keys.GenerateKeypair()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: new: %w", err)
	}
	id, err := NewIdentifier()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: new: %w", err)
	}
	return Identity{
		Name:        name,
		Identifier:  id,
		Fingerprint: NewFingerprint(pub),
		PublicKey:   pub,
		SecretKey:   sec,
	}, nil
}

// Public projects the Identity down to its PublicIdentity.
func (i Identity) Public() PublicIdentity {
	return PublicIdentity{
		Name:        i.Name,
		Identifier:  i.Identifier,
		Fingerprint: i.Fingerprint,
		PublicKey:   i.PublicKey,
	}
}

// DecryptAnonymous opens a message sealed to this identity's public key
// with SealAnonymous, as used by the handshake's ClientIdentity message.
func (i Identity) DecryptAnonymous(sealed []byte) ([]byte, error) {
	plaintext, err := keys.OpenAnonymous(i.PublicKey, i.SecretKey, sealed)
	if err != nil {
		return nil, fmt.Errorf("identity: decrypt anonymous: %w", err)
	}
	return plaintext, nil
}

// EncryptAnonymous seals a message to this public identity's key so that
// only the matching Identity can read it, and the sender is not revealed.
func (p PublicIdentity) EncryptAnonymous(plaintext []byte) ([]byte, error) {
	sealed, err := keys.SealAnonymous(p.PublicKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("identity: encrypt anonymous: %w", err)
	}
	return sealed, nil
}

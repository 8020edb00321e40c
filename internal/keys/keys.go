// Package keys implements the X25519/ChaCha20-Poly1305 primitives used
// throughout privy: long-term and ephemeral keypairs, ECDH, and the
// anonymous sealed-box construction used by the handshake.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size in bytes of an X25519 public or secret key.
	KeySize = 32
	// NonceSize is the size in bytes of a session nonce.
	NonceSize = 24

	sealedNonceSize = chacha20poly1305.NonceSize
)

// ErrZeroKey is returned when an ECDH computation yields the all-zero
// shared secret, which happens for a small set of malicious public keys.
var ErrZeroKey = errors.New("keys: zero shared secret")

var errInvalidNonceLength = fmt.Errorf("keys: nonce must be %d bytes", NonceSize)

// PublicKey is an X25519 public key.
type PublicKey [KeySize]byte

// SecretKey is an X25519 secret key.
type SecretKey [KeySize]byte

// Nonce is a 24-byte value used once per handshake session.
type Nonce [NonceSize]byte

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }
func (k SecretKey) String() string { return "secretkey(redacted)" }
func (n Nonce) String() string     { return hex.EncodeToString(n[:]) }

// IsZero reports whether the key is the all-zero value.
func (k PublicKey) IsZero() bool {
	var zero PublicKey
	return k == zero
}

// PublicKeyFromBytes copies b into a PublicKey. b must be KeySize bytes.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var k PublicKey
	if len(b) != KeySize {
		return k, fmt.Errorf("keys: public key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// SecretKeyFromBytes copies b into a SecretKey. b must be KeySize bytes.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	var k SecretKey
	if len(b) != KeySize {
		return k, fmt.Errorf("keys: secret key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// GenerateNonce returns a fresh random Nonce.
func GenerateNonce() (Nonce, error) {
	var n Nonce
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return n, fmt.Errorf("keys: generate nonce: %w", err)
	}
	return n, nil
}

// GenerateKeypair creates a fresh X25519 keypair suitable for a long-term
// identity or an ephemeral handshake key.
func GenerateKeypair() (PublicKey, SecretKey, error) {
	var sk SecretKey
	if _, err := io.ReadFull(rand.Reader, sk[:]); err != nil {
		return PublicKey{}, SecretKey{}, fmt.Errorf("keys: generate secret key: %w", err)
	}
	// Clamp per RFC 7748 so the scalar lies in the correct subgroup.
	sk[0] &= 248
	sk[31] &= 127
	sk[31] |= 64

	pub, err := curve25519.X25519(sk[:], curve25519.Basepoint)
	if err != nil {
		return PublicKey{}, SecretKey{}, fmt.Errorf("keys: derive public key: %w", err)
	}
	var pk PublicKey
	copy(pk[:], pub)
	return pk, sk, nil
}

// ComputeECDH performs an X25519 Diffie-Hellman exchange between a local
// secret key and a remote public key, rejecting the all-zero result.
func ComputeECDH(local SecretKey, remote PublicKey) ([]byte, error) {
	shared, err := curve25519.X25519(local[:], remote[:])
	if err != nil {
		return nil, fmt.Errorf("keys: ecdh: %w", err)
	}
	var zero [KeySize]byte
	if subtleEqual(shared, zero[:]) {
		return nil, ErrZeroKey
	}
	return shared, nil
}

func subtleEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// deriveSymmetricKey runs HKDF-SHA256 over an ECDH shared secret, salted
// with the two public keys involved, to produce an AEAD key.
func deriveSymmetricKey(shared, salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, shared, salt, []byte("privy-sealed-box"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("keys: hkdf: %w", err)
	}
	return key, nil
}

// SealAnonymous encrypts plaintext to recipient using an ephemeral sender
// keypair, so the ciphertext carries no information about the sender's
// identity. The wire format is ephemeral_pubkey(32) || nonce(12) || aead.
func SealAnonymous(recipient PublicKey, plaintext []byte) ([]byte, error) {
	ephPub, ephSec, err := GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("keys: seal: %w", err)
	}

	shared, err := ComputeECDH(ephSec, recipient)
	if err != nil {
		return nil, fmt.Errorf("keys: seal: %w", err)
	}

	salt := append(append([]byte{}, ephPub[:]...), recipient[:]...)
	key, err := deriveSymmetricKey(shared, salt)
	if err != nil {
		return nil, fmt.Errorf("keys: seal: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("keys: seal: %w", err)
	}

	nonce := make([]byte, sealedNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("keys: seal: nonce: %w", err)
	}

	out := make([]byte, 0, KeySize+sealedNonceSize+len(plaintext)+aead.Overhead())
	out = append(out, ephPub[:]...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// OpenAnonymous decrypts a message produced by SealAnonymous using the
// recipient's long-term keypair.
func OpenAnonymous(recipientPub PublicKey, recipientSec SecretKey, sealed []byte) ([]byte, error) {
	if len(sealed) < KeySize+sealedNonceSize {
		return nil, fmt.Errorf("keys: open: ciphertext too short")
	}

	var ephPub PublicKey
	copy(ephPub[:], sealed[:KeySize])
	nonce := sealed[KeySize : KeySize+sealedNonceSize]
	ciphertext := sealed[KeySize+sealedNonceSize:]

	shared, err := ComputeECDH(recipientSec, ephPub)
	if err != nil {
		return nil, fmt.Errorf("keys: open: %w", err)
	}

	salt := append(append([]byte{}, ephPub[:]...), recipientPub[:]...)
	key, err := deriveSymmetricKey(shared, salt)
	if err != nil {
		return nil, fmt.Errorf("keys: open: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("keys: open: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: open: %w", err)
	}
	return plaintext, nil
}

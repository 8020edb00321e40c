// Package vault implements the encrypted identity store: a passphrase
// protected file holding the owner's identities and their trusted peers.
package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/text/unicode/norm"

	"github.com/privy-chat/privy/internal/identity"
)

const (
	saltSize = 16
	keySize  = chacha20poly1305.KeySize

	// Argon2id parameters matching libsodium's pwhash "interactive" profile.
	argonTime    = 2
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 1
)

// ErrBadPassphrase is returned when the vault file cannot be decrypted
// with the supplied passphrase, i.e. AEAD authentication failed.
var ErrBadPassphrase = errors.New("vault: incorrect passphrase")

// Entry is a display-friendly summary of an identity or trusted peer.
type Entry struct {
	Name        string
	Fingerprint string
}

// payload is the plaintext structure encrypted inside the vault file.
type payload struct {
	Identities []identity.Identity       `msgpack:"identities"`
	Trusted    []identity.PublicIdentity `msgpack:"trusted"`
}

// Vault is an open, decrypted identity store backed by a file on disk.
// All mutating operations persist to disk before returning.
type Vault struct {
	mu sync.RWMutex

	path string
	salt [saltSize]byte
	key  []byte

	identities []identity.Identity
	trusted    []identity.PublicIdentity
}

// Open reads the vault at path, decrypting it with passphrase. If no file
// exists at path, a fresh empty vault is created and persisted immediately.
func Open(path, passphrase string) (*Vault, error) {
	normalized := norm.NFC.String(passphrase)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return create(path, normalized)
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}

	if len(data) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("vault: %s is truncated", path)
	}

	var salt [saltSize]byte
	copy(salt[:], data[:saltSize])
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := data[saltSize+chacha20poly1305.NonceSizeX:]

	key := deriveKey(normalized, salt[:])

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}

	var p payload
	if err := msgpack.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("vault: decode: %w", err)
	}

	return &Vault{
		path:       path,
		salt:       salt,
		key:        key,
		identities: p.Identities,
		trusted:    p.Trusted,
	}, nil
}

func create(path, normalizedPassphrase string) (*Vault, error) {
	var salt [saltSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return nil, fmt.Errorf("vault: generate salt: %w", err)
	}

	v := &Vault{
		path: path,
		salt: salt,
		key:  deriveKey(normalizedPassphrase, salt[:]),
	}
	if err := v.persist(); err != nil {
		return nil, err
	}
	return v, nil
}

func deriveKey(normalizedPassphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(normalizedPassphrase), salt, argonTime, argonMemory, argonThreads, keySize)
}

// persist encrypts the current in-memory state with a freshly generated
// nonce and atomically replaces the vault file. A fresh nonce is drawn on
// every write so that no nonce is ever reused under the same key.
func (v *Vault) persist() error {
	p := payload{Identities: v.identities, Trusted: v.trusted}
	plaintext, err := msgpack.Marshal(&p)
	if err != nil {
		return fmt.Errorf("vault: encode: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return fmt.Errorf("vault: init cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("vault: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+len(nonce)+len(ciphertext))
	out = append(out, v.salt[:]...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	if dir := filepath.Dir(v.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("vault: create directory: %w", err)
		}
	}

	tempPath := v.path + ".tmp"
	if err := os.WriteFile(tempPath, out, 0600); err != nil {
		return fmt.Errorf("vault: write %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, v.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("vault: persist %s: %w", v.path, err)
	}
	return nil
}

// AddIdentity generates a new identity with the given name, persists it,
// and returns it.
func (v *Vault) AddIdentity(name string) (identity.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := identity.New(name)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("vault: add identity: %w", err)
	}
	v.identities = append(v.identities, id)
	if err := v.persist(); err != nil {
		v.identities = v.identities[:len(v.identities)-1]
		return identity.Identity{}, err
	}
	return id, nil
}

// Identity returns the full identity with the given name.
func (v *Vault) Identity(name string) (identity.Identity, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, id := range v.identities {
		if id.Name == name {
			return id, nil
		}
	}
	return identity.Identity{}, fmt.Errorf("vault: no identity named %q", name)
}

// ExportPublicIdentity base64-encodes the msgpack-encoded PublicIdentity
// for the named identity, suitable for sharing out of band.
func (v *Vault) ExportPublicIdentity(name string) (string, error) {
	id, err := v.Identity(name)
	if err != nil {
		return "", err
	}
	return encodePublicIdentity(id.Public())
}

// ListIdentities returns a display-friendly summary of every identity.
func (v *Vault) ListIdentities() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Entry, len(v.identities))
	for i, id := range v.identities {
		out[i] = Entry{Name: id.Name, Fingerprint: id.Fingerprint.String()}
	}
	return out
}

// AddTrusted decodes a base64-encoded PublicIdentity and adds it to the
// trusted list, persisting the result. Adding a peer that is already
// trusted (same Identifier) is idempotent: it succeeds without creating
// a duplicate entry and without rewriting the file.
func (v *Vault) AddTrusted(encoded string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	pub, err := decodePublicIdentity(encoded)
	if err != nil {
		return fmt.Errorf("vault: add trusted: %w", err)
	}

	for _, existing := range v.trusted {
		if existing.Identifier == pub.Identifier {
			return nil
		}
	}

	v.trusted = append(v.trusted, pub)
	if err := v.persist(); err != nil {
		v.trusted = v.trusted[:len(v.trusted)-1]
		return err
	}
	return nil
}

// ListTrusted returns a display-friendly summary of every trusted peer.
func (v *Vault) ListTrusted() []Entry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Entry, len(v.trusted))
	for i, pub := range v.trusted {
		out[i] = Entry{Name: pub.Name, Fingerprint: pub.Fingerprint.String()}
	}
	return out
}

// IsTrusted reports whether a peer with the given fingerprint is in the
// trusted list. Trust enforcement itself is left to the caller; the
// handshake package does not consult this.
func (v *Vault) IsTrusted(fp identity.Fingerprint) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, pub := range v.trusted {
		if pub.Fingerprint == fp {
			return true
		}
	}
	return false
}

func encodePublicIdentity(pub identity.PublicIdentity) (string, error) {
	b, err := msgpack.Marshal(&pub)
	if err != nil {
		return "", fmt.Errorf("vault: encode public identity: %w", err)
	}
	return base64Encode(b), nil
}

func decodePublicIdentity(encoded string) (identity.PublicIdentity, error) {
	b, err := base64Decode(encoded)
	if err != nil {
		return identity.PublicIdentity{}, fmt.Errorf("vault: decode base64: %w", err)
	}
	var pub identity.PublicIdentity
	if err := msgpack.Unmarshal(b, &pub); err != nil {
		return identity.PublicIdentity{}, fmt.Errorf("vault: decode public identity: %w", err)
	}
	return pub, nil
}

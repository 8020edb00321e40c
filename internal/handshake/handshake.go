// Package handshake implements the two-role identity exchange that
// opens every chat session: the responder announces its public identity
// over a framed message, and the initiator replies with its own public
// identity sealed anonymously to the responder's key.
package handshake

import (
	"context"
	"errors"
	"fmt"

	"github.com/privy-chat/privy/internal/identity"
	"github.com/privy-chat/privy/internal/keys"
	"github.com/privy-chat/privy/internal/netio"
	"github.com/privy-chat/privy/internal/wire"
)

// maxClientIdentitySize bounds the responder's raw read of the sealed
// ClientIdentity message. This is not a frame-delimited read: it is a
// single Read call into a fixed buffer, so it can in principle return
// fewer bytes than the peer actually sent if the transport delivers the
// message split across multiple packets. This mirrors the documented
// wire format and is intentionally left as-is rather than hardened,
// since changing it would break compatibility with that format.
const maxClientIdentitySize = 256

// ErrProtocol is returned when a peer sends a message of the wrong kind
// at a given point in the handshake.
var ErrProtocol = errors.New("handshake: protocol violation")

// Responder performs the listener side of the handshake: send our
// public identity, then receive and open the initiator's sealed
// ClientIdentity. It returns the initiator's public identity.
func Responder(ctx context.Context, stream netio.Stream, self identity.Identity) (identity.PublicIdentity, error) {
	var peer identity.PublicIdentity
	err := runWithContext(ctx, stream, func() error {
		fw := wire.NewFrameWriter(stream)
		serverMsg := wire.NewServerIdentity(self.Public())
		encoded, err := serverMsg.Encode()
		if err != nil {
			return err
		}
		if err := fw.Write(encoded); err != nil {
			return fmt.Errorf("handshake: send server identity: %w", err)
		}

		buf := make([]byte, maxClientIdentitySize)
		n, err := stream.Read(buf)
		if err != nil {
			return fmt.Errorf("handshake: read client identity: %w", err)
		}

		plaintext, err := self.DecryptAnonymous(buf[:n])
		if err != nil {
			return fmt.Errorf("handshake: open client identity: %w", err)
		}

		msg, err := wire.Decode(plaintext)
		if err != nil {
			return fmt.Errorf("handshake: decode client identity: %w", err)
		}
		if msg.Kind != wire.KindClientIdentity {
			return fmt.Errorf("%w: expected ClientIdentity, got %s", ErrProtocol, msg.Kind)
		}

		peer = msg.ClientIdentity.Identity
		return nil
	})
	if err != nil {
		return identity.PublicIdentity{}, err
	}
	return peer, nil
}

// Initiator performs the dialer side of the handshake: receive the
// responder's public identity, then seal and send our own. It returns
// the responder's public identity and the session nonce generated for
// this handshake.
func Initiator(ctx context.Context, stream netio.Stream, self identity.Identity) (identity.PublicIdentity, keys.Nonce, error) {
	var peer identity.PublicIdentity
	var nonce keys.Nonce

	err := runWithContext(ctx, stream, func() error {
		fr := wire.NewFrameReader(stream)
		encoded, err := fr.Read()
		if err != nil {
			return fmt.Errorf("handshake: read server identity: %w", err)
		}

		msg, err := wire.Decode(encoded)
		if err != nil {
			return fmt.Errorf("handshake: decode server identity: %w", err)
		}
		if msg.Kind != wire.KindServerIdentity {
			return fmt.Errorf("%w: expected ServerIdentity, got %s", ErrProtocol, msg.Kind)
		}
		peer = msg.ServerIdentity.Identity

		nonce, err = keys.GenerateNonce()
		if err != nil {
			return fmt.Errorf("handshake: generate nonce: %w", err)
		}

		clientMsg := wire.NewClientIdentity(self.Public(), nonce)
		plaintext, err := clientMsg.Encode()
		if err != nil {
			return err
		}

		sealed, err := peer.EncryptAnonymous(plaintext)
		if err != nil {
			return fmt.Errorf("handshake: seal client identity: %w", err)
		}

		if _, err := stream.Write(sealed); err != nil {
			return fmt.Errorf("handshake: send client identity: %w", err)
		}
		return nil
	})
	if err != nil {
		return identity.PublicIdentity{}, keys.Nonce{}, err
	}
	return peer, nonce, nil
}

// runWithContext runs fn to completion, closing stream to unblock any
// pending I/O if ctx is cancelled first.
func runWithContext(ctx context.Context, stream netio.Stream, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		stream.Close()
		<-done
		return ctx.Err()
	}
}

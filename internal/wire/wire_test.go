package wire

import (
	"bytes"
	"testing"

	"github.com/privy-chat/privy/internal/identity"
	"github.com/privy-chat/privy/internal/keys"
)

func TestFrameReadWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	fr := NewFrameReader(&buf)

	messages := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte("x"), 4096),
	}

	for _, msg := range messages {
		if err := fw.Write(msg); err != nil {
			t.Fatalf("Write(%d bytes) error = %v", len(msg), err)
		}
	}

	for i, want := range messages {
		got, err := fr.Read()
		if err != nil {
			t.Fatalf("Read() #%d error = %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Read() #%d = %q, want %q", i, got, want)
		}
	}
}

func TestFrameReaderRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	fr := NewFrameReader(&buf)
	if _, err := fr.Read(); err == nil {
		t.Error("Read() expected error for oversized frame length")
	}
}

func TestFrameWriterRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	if err := fw.Write(make([]byte, MaxFrameSize+1)); err == nil {
		t.Error("Write() expected error for oversized payload")
	}
}

func TestMessageEncodeDecodeServerIdentity(t *testing.T) {
	id, err := identity.New("alice")
	if err != nil {
		t.Fatalf("identity.New() error = %v", err)
	}

	msg := NewServerIdentity(id.Public())
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Kind != KindServerIdentity {
		t.Fatalf("Kind = %v, want %v", decoded.Kind, KindServerIdentity)
	}
	if decoded.ServerIdentity.Identity.Fingerprint != id.Fingerprint {
		t.Error("decoded fingerprint does not match source identity")
	}
}

func TestMessageEncodeDecodeClientIdentity(t *testing.T) {
	id, err := identity.New("bob")
	if err != nil {
		t.Fatalf("identity.New() error = %v", err)
	}
	nonce, err := keys.GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce() error = %v", err)
	}

	msg := NewClientIdentity(id.Public(), nonce)
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Kind != KindClientIdentity {
		t.Fatalf("Kind = %v, want %v", decoded.Kind, KindClientIdentity)
	}
	if decoded.ClientIdentity.Nonce != nonce {
		t.Error("decoded nonce does not match source nonce")
	}
}

func TestMessageEncodeDecodeChatMessage(t *testing.T) {
	id, err := identity.New("carol")
	if err != nil {
		t.Fatalf("identity.New() error = %v", err)
	}

	payload := []byte("hello, world")
	msg := NewChatMessage(id.Identifier, payload)
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.Kind != KindChatMessage {
		t.Fatalf("Kind = %v, want %v", decoded.Kind, KindChatMessage)
	}
	if decoded.ChatMessage.Sender != id.Identifier {
		t.Error("decoded sender does not match source identifier")
	}
	if !bytes.Equal(decoded.ChatMessage.Payload, payload) {
		t.Errorf("decoded payload = %q, want %q", decoded.ChatMessage.Payload, payload)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	msg := Message{Kind: Kind(99)}
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := Decode(encoded); err == nil {
		t.Error("Decode() expected error for unknown kind")
	}
}

func TestDecodeRejectsMissingPayload(t *testing.T) {
	msg := Message{Kind: KindServerIdentity}
	encoded, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := Decode(encoded); err == nil {
		t.Error("Decode() expected error for missing payload")
	}
}

package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/privy-chat/privy/internal/identity"
	"github.com/privy-chat/privy/internal/keys"
)

// Kind identifies which variant of Message is populated.
type Kind uint8

const (
	// KindServerIdentity is sent by the responder to announce its public
	// identity at the start of a handshake.
	KindServerIdentity Kind = iota + 1
	// KindClientIdentity is sealed anonymously and sent by the initiator
	// in reply to a ServerIdentity message.
	KindClientIdentity
	// KindChatMessage carries one line of chat, attributed to a sender
	// Identifier, as relayed over the I/O bus.
	KindChatMessage
)

func (k Kind) String() string {
	switch k {
	case KindServerIdentity:
		return "ServerIdentity"
	case KindClientIdentity:
		return "ClientIdentity"
	case KindChatMessage:
		return "ChatMessage"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ServerIdentityPayload is the body of a ServerIdentity message.
type ServerIdentityPayload struct {
	Identity identity.PublicIdentity `msgpack:"identity"`
}

// ClientIdentityPayload is the body of a ClientIdentity message.
type ClientIdentityPayload struct {
	Identity identity.PublicIdentity `msgpack:"identity"`
	Nonce    keys.Nonce              `msgpack:"nonce"`
}

// ChatMessagePayload is the body of a ChatMessage message.
type ChatMessagePayload struct {
	Sender  identity.Identifier `msgpack:"sender"`
	Payload []byte              `msgpack:"payload"`
}

// Message is the wire protocol's tagged union: exactly one of
// ServerIdentity, ClientIdentity, or ChatMessage is populated, selected
// by Kind.
type Message struct {
	Kind           Kind                   `msgpack:"kind"`
	ServerIdentity *ServerIdentityPayload `msgpack:"server_identity,omitempty"`
	ClientIdentity *ClientIdentityPayload `msgpack:"client_identity,omitempty"`
	ChatMessage    *ChatMessagePayload    `msgpack:"chat_message,omitempty"`
}

// NewServerIdentity builds a ServerIdentity message.
func NewServerIdentity(id identity.PublicIdentity) Message {
	return Message{Kind: KindServerIdentity, ServerIdentity: &ServerIdentityPayload{Identity: id}}
}

// NewClientIdentity builds a ClientIdentity message.
func NewClientIdentity(id identity.PublicIdentity, nonce keys.Nonce) Message {
	return Message{Kind: KindClientIdentity, ClientIdentity: &ClientIdentityPayload{Identity: id, Nonce: nonce}}
}

// NewChatMessage builds a ChatMessage message.
func NewChatMessage(sender identity.Identifier, payload []byte) Message {
	return Message{Kind: KindChatMessage, ChatMessage: &ChatMessagePayload{Sender: sender, Payload: payload}}
}

// Encode serializes the message to MessagePack bytes.
func (m Message) Encode() ([]byte, error) {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Kind, err)
	}
	return b, nil
}

// Decode deserializes a MessagePack-encoded Message and checks that the
// payload matching Kind is actually present.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("wire: decode: %w", err)
	}

	switch m.Kind {
	case KindServerIdentity:
		if m.ServerIdentity == nil {
			return Message{}, fmt.Errorf("wire: decode: %s missing payload", m.Kind)
		}
	case KindClientIdentity:
		if m.ClientIdentity == nil {
			return Message{}, fmt.Errorf("wire: decode: %s missing payload", m.Kind)
		}
	case KindChatMessage:
		if m.ChatMessage == nil {
			return Message{}, fmt.Errorf("wire: decode: %s missing payload", m.Kind)
		}
	default:
		return Message{}, fmt.Errorf("wire: decode: unknown kind %d", m.Kind)
	}
	return m, nil
}

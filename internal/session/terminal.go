package session

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"

	"github.com/privy-chat/privy/internal/bus"
	"github.com/privy-chat/privy/internal/identity"
	"github.com/privy-chat/privy/internal/logging"
	"github.com/privy-chat/privy/internal/wire"
)

// Renderer formats one received chat line for display. The default
// Render function is plain; cmd/privy supplies a lipgloss-styled one
// when stdout is a terminal.
type Renderer func(sender identity.Identifier, text string) string

// Render is the plain, unstyled default Renderer.
func Render(sender identity.Identifier, text string) string {
	return fmt.Sprintf("%s: %s", sender, text)
}

// encrypt and decrypt are the payload transforms applied to outgoing and
// incoming chat text. Both are intentionally the identity function: the
// wire payload is carried as opaque bytes, with no confidentiality
// applied at this layer, matching the documented scope of ChatMessage.
func encrypt(line string) []byte    { return []byte(line) }
func decrypt(payload []byte) []byte { return payload }

// TerminalLoop relays lines between a local terminal and the bus
// subscriber until either side ends: EOF on input shuts down the whole
// bus, and the bus closing ends the loop without touching output
// further. When the bus closes first, TerminalLoop returns without
// waiting for input; the input reader stops at its next EOF.
func TerminalLoop(self identity.Identity, input io.Reader, output io.Writer, sub *bus.Subscriber, render Renderer, logger *slog.Logger) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if render == nil {
		render = Render
	}

	writerDone := make(chan struct{})

	go func() {
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			line := scanner.Text()
			msg := wire.NewChatMessage(self.Identifier, encrypt(line))
			encoded, err := msg.Encode()
			if err != nil {
				logger.Warn("session: encode chat message failed", logging.KeyError, err)
				continue
			}
			sub.Publish(encoded)
		}
		sub.Shutdown()
	}()

	go func() {
		defer close(writerDone)
		for msg := range sub.C() {
			decoded, err := wire.Decode(msg.Payload)
			if err != nil {
				logger.Warn("session: decode bus message failed", logging.KeyError, err)
				continue
			}
			if decoded.Kind != wire.KindChatMessage {
				logger.Warn("session: unexpected message kind on bus", "kind", decoded.Kind.String())
				continue
			}
			text := string(decrypt(decoded.ChatMessage.Payload))
			fmt.Fprintln(output, render(decoded.ChatMessage.Sender, text))
		}
	}()

	<-writerDone
}

// Package main provides the CLI entry point for privy, a peer-to-peer
// encrypted chat agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/privy-chat/privy/internal/bus"
	"github.com/privy-chat/privy/internal/config"
	"github.com/privy-chat/privy/internal/handshake"
	"github.com/privy-chat/privy/internal/identity"
	"github.com/privy-chat/privy/internal/logging"
	"github.com/privy-chat/privy/internal/metrics"
	"github.com/privy-chat/privy/internal/netio"
	"github.com/privy-chat/privy/internal/ratelimit"
	"github.com/privy-chat/privy/internal/session"
	"github.com/privy-chat/privy/internal/vault"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	var dataDir string
	var logLevel, logFormat string

	rootCmd := &cobra.Command{
		Use:     "privy",
		Short:   "privy - peer-to-peer encrypted chat over persistent identities",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "Directory holding the identity vault")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")

	rootCmd.AddCommand(identityCmd(&dataDir))
	rootCmd.AddCommand(trustCmd(&dataDir))
	rootCmd.AddCommand(serveCmd(&dataDir, &logLevel, &logFormat))
	rootCmd.AddCommand(connectCmd(&dataDir, &logLevel, &logFormat))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func vaultPath(dataDir string) string {
	return filepath.Join(dataDir, "privy.vault")
}

// readPassphrase reads a passphrase from the terminal without echoing
// it, matching the teacher's masked-entry pattern.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}

func openVault(dataDir string) (*vault.Vault, error) {
	passphrase, err := readPassphrase("Vault passphrase: ")
	if err != nil {
		return nil, err
	}
	v, err := vault.Open(vaultPath(dataDir), passphrase)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return v, nil
}

func identityCmd(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage local identities stored in the vault",
	}
	cmd.AddCommand(identityCreateCmd(dataDir))
	cmd.AddCommand(identityExportCmd(dataDir))
	cmd.AddCommand(identityListCmd(dataDir))
	return cmd
}

func identityCreateCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Generate a new identity and add it to the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(*dataDir)
			if err != nil {
				return err
			}
			id, err := v.AddIdentity(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created identity %q\n", id.Name)
			fmt.Printf("  Identifier:  %s\n", id.Identifier)
			fmt.Printf("  Fingerprint: %s\n", id.Fingerprint)
			return nil
		},
	}
}

func identityExportCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <name>",
		Short: "Print the base64 PublicIdentity for an identity, to share with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(*dataDir)
			if err != nil {
				return err
			}
			encoded, err := v.ExportPublicIdentity(args[0])
			if err != nil {
				return err
			}
			fmt.Println(encoded)
			return nil
		},
	}
}

func identityListCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List identities held in the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(*dataDir)
			if err != nil {
				return err
			}
			entries := v.ListIdentities()
			if len(entries) == 0 {
				fmt.Println("No identities yet. Create one with: privy identity create <name>")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-20s %s\n", e.Name, e.Fingerprint)
			}
			if info, err := os.Stat(vaultPath(*dataDir)); err == nil {
				fmt.Printf("\nvault last written %s\n", humanize.Time(info.ModTime()))
			}
			return nil
		},
	}
}

func trustCmd(dataDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Manage the list of peers this vault trusts",
	}
	cmd.AddCommand(trustAddCmd(dataDir))
	cmd.AddCommand(trustListCmd(dataDir))
	return cmd
}

func trustAddCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <base64-public-identity>",
		Short: "Add a peer's exported PublicIdentity to the trusted list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(*dataDir)
			if err != nil {
				return err
			}
			if err := v.AddTrusted(args[0]); err != nil {
				return err
			}
			fmt.Println("Peer added to trusted list.")
			return nil
		},
	}
}

func trustListCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trusted peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(*dataDir)
			if err != nil {
				return err
			}
			entries := v.ListTrusted()
			if len(entries) == 0 {
				fmt.Println("No trusted peers yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-20s %s\n", e.Name, e.Fingerprint)
			}
			return nil
		},
	}
}

func serveCmd(dataDir, logLevel, logFormat *string) *cobra.Command {
	var (
		identityName   string
		transport      string
		address        string
		acceptRate     float64
		acceptBurst    int
		handshakeTO    time.Duration
		requireTrusted bool
		metricsEnabled bool
		metricsAddress string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for incoming chat connections",
		Long: `serve binds a listener and runs the responder handshake on each
accepted connection. Every connected peer, plus the local terminal,
shares one message bus: a line typed locally is broadcast to every
connected peer, and a line from any peer is broadcast to the terminal
and every other peer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			cfg.DataDir = *dataDir
			cfg.LogLevel = *logLevel
			cfg.LogFormat = *logFormat
			cfg.Listen.Transport = transport
			cfg.Listen.Address = address
			cfg.Listen.AcceptRatePerSec = acceptRate
			cfg.Listen.AcceptBurst = acceptBurst
			cfg.Listen.HandshakeTimeout = handshakeTO
			cfg.Metrics.Enabled = metricsEnabled
			cfg.Metrics.Address = metricsAddress
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

			v, err := openVault(cfg.DataDir)
			if err != nil {
				return err
			}
			self, err := v.Identity(identityName)
			if err != nil {
				return err
			}

			var ln netio.Listener
			switch cfg.Listen.Transport {
			case "ws":
				ln, err = netio.ListenWS(cfg.Listen.Address)
			default:
				ln, err = netio.ListenTCP(cfg.Listen.Address)
			}
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			limited := ratelimit.Wrap(ln, cfg.Listen.AcceptRatePerSec, cfg.Listen.AcceptBurst)
			defer limited.Close()

			m := metrics.Default()
			if cfg.Metrics.Enabled {
				metricsCtx, cancelMetrics := context.WithCancel(context.Background())
				defer cancelMetrics()
				go func() {
					if err := metrics.Serve(metricsCtx, cfg.Metrics.Address); err != nil {
						logger.Warn("metrics server stopped", logging.KeyError, err)
					}
				}()
			}

			sessionBus := bus.New(logger, m)
			terminalSub, err := sessionBus.Subscribe()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			go session.TerminalLoop(self, os.Stdin, os.Stdout, terminalSub, renderer(), logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Listening on %s (%s) as %q (%s)\n", limited.Addr(), cfg.Listen.Transport, self.Name, self.Fingerprint)

			for {
				stream, err := limited.Accept(ctx)
				if err != nil {
					if ctx.Err() != nil {
						fmt.Println("\nShutting down accept loop.")
						return nil
					}
					logger.Warn("accept failed", logging.KeyError, err)
					continue
				}
				go handleAccepted(ctx, stream, self, v, sessionBus, m, logger, cfg.Listen.HandshakeTimeout, requireTrusted)
			}
		},
	}

	cmd.Flags().StringVarP(&identityName, "identity", "i", "", "Local identity name to serve as (required)")
	cmd.Flags().StringVarP(&transport, "transport", "t", "tcp", "Transport: tcp, ws")
	cmd.Flags().StringVarP(&address, "address", "a", "127.0.0.1:4747", "Address to bind")
	cmd.Flags().Float64Var(&acceptRate, "accept-rate", 5, "Maximum accepted connections per second")
	cmd.Flags().IntVar(&acceptBurst, "accept-burst", 10, "Accept rate burst allowance")
	cmd.Flags().DurationVar(&handshakeTO, "handshake-timeout", 10*time.Second, "Time allowed for a peer to complete the handshake")
	cmd.Flags().BoolVar(&requireTrusted, "require-trusted", false, "Reject peers not in the vault's trusted list")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics", false, "Serve Prometheus metrics")
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "127.0.0.1:9747", "Address for the metrics HTTP server")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}

func handleAccepted(
	parentCtx context.Context,
	stream netio.Stream,
	self identity.Identity,
	v *vault.Vault,
	sessionBus *bus.Bus,
	m *metrics.Metrics,
	logger *slog.Logger,
	handshakeTimeout time.Duration,
	requireTrusted bool,
) {
	defer stream.Close()

	hsCtx, cancel := context.WithTimeout(parentCtx, handshakeTimeout)
	defer cancel()

	start := time.Now()
	peer, err := handshake.Responder(hsCtx, stream, self)
	if err != nil {
		logger.Warn("handshake failed", logging.KeyRole, "responder", logging.KeyError, err)
		m.RecordHandshakeFailure(handshakeErrorKind(err))
		return
	}
	m.RecordHandshakeSuccess(time.Since(start).Seconds())

	if requireTrusted {
		if err := session.RequireTrusted(v, peer); err != nil {
			logger.Warn("rejecting untrusted peer", logging.KeyFingerprint, peer.Fingerprint.String())
			return
		}
	}

	logger.Info("peer connected", logging.KeyName, peer.Name, logging.KeyFingerprint, peer.Fingerprint.String())
	m.RecordSessionStart()
	defer m.RecordSessionEnd()

	sub, err := sessionBus.Subscribe()
	if err != nil {
		logger.Warn("session bus closed, dropping peer", logging.KeyError, err)
		return
	}
	session.NetworkLoop(parentCtx, stream, sub, logger)
	logger.Info("peer disconnected", logging.KeyName, peer.Name)
}

// handshakeErrorKind buckets a handshake error for the HandshakeFailures
// metric label without leaking the full error text into a label value.
func handshakeErrorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, handshake.ErrProtocol):
		return "protocol"
	default:
		return "io"
	}
}

func connectCmd(dataDir, logLevel, logFormat *string) *cobra.Command {
	var (
		identityName   string
		transport      string
		timeout        time.Duration
		requireTrusted bool
	)

	cmd := &cobra.Command{
		Use:   "connect <address>",
		Short: "Dial a peer's listener and start a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]

			cfg := config.Default()
			cfg.DataDir = *dataDir
			cfg.LogLevel = *logLevel
			cfg.LogFormat = *logFormat
			cfg.Connect.Transport = transport
			cfg.Connect.Timeout = timeout
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

			v, err := openVault(cfg.DataDir)
			if err != nil {
				return err
			}
			self, err := v.Identity(identityName)
			if err != nil {
				return err
			}

			var dialer netio.Dialer
			switch cfg.Connect.Transport {
			case "ws":
				dialer = netio.WSDialer{}
			default:
				dialer = netio.TCPDialer{}
			}

			dialCtx, cancelDial := context.WithTimeout(context.Background(), cfg.Connect.Timeout)
			stream, err := dialer.Dial(dialCtx, address)
			cancelDial()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer stream.Close()

			m := metrics.Default()
			hsCtx, cancelHS := context.WithTimeout(context.Background(), cfg.Connect.Timeout)
			start := time.Now()
			peer, _, err := handshake.Initiator(hsCtx, stream, self)
			cancelHS()
			if err != nil {
				m.RecordHandshakeFailure(handshakeErrorKind(err))
				return fmt.Errorf("connect: %w", err)
			}
			m.RecordHandshakeSuccess(time.Since(start).Seconds())

			if requireTrusted {
				if err := session.RequireTrusted(v, peer); err != nil {
					return err
				}
			}

			fmt.Printf("Connected to %q (%s)\n", peer.Name, peer.Fingerprint)
			m.RecordSessionStart()
			defer m.RecordSessionEnd()

			sessionBus := bus.New(logger, m)
			netSub, err := sessionBus.Subscribe()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			termSub, err := sessionBus.Subscribe()
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			done := make(chan struct{})
			go func() {
				session.NetworkLoop(ctx, stream, netSub, logger)
				close(done)
			}()
			session.TerminalLoop(self, os.Stdin, os.Stdout, termSub, renderer(), logger)
			<-done

			fmt.Println("Session ended.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&identityName, "identity", "i", "", "Local identity name to connect as (required)")
	cmd.Flags().StringVarP(&transport, "transport", "t", "tcp", "Transport: tcp, ws")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Dial and handshake timeout")
	cmd.Flags().BoolVar(&requireTrusted, "require-trusted", false, "Refuse to chat with a peer not in the vault's trusted list")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}

// renderer renders "<sender>: <text>" with the sender segment styled
// through lipgloss when stdout is a terminal, plain text otherwise --
// mirroring the teacher's term.IsTerminal gating before colorizing
// output.
func renderer() session.Renderer {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return session.Render
	}
	senderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	return func(sender identity.Identifier, text string) string {
		return fmt.Sprintf("%s: %s", senderStyle.Render(sender.String()), text)
	}
}

// Command mentalpoker runs one peer's side of the two-party mental
// poker protocol over TCP: either "host" (listener, shuffles first,
// spec §8's Alice) or "join" (dialer, shuffles second, Bob). Its
// cobra root-plus-subcommands shape and package-level flag vars follow
// luxfi-threshold/cmd/threshold-cli/main.go; its connect-then-wait-for-
// signal lifecycle follows the teacher's cmd/ocpd/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/peilunnn/mentalpoker/internal/config"
	"github.com/peilunnn/mentalpoker/internal/obslog"
	"github.com/peilunnn/mentalpoker/internal/protocol"
	"github.com/peilunnn/mentalpoker/internal/transport"
)

var (
	// Global flags
	listenAddr    string
	peerAddr      string
	selfName      string
	securityParam int
	stateTimeout  time.Duration
	connectDelay  time.Duration
	logLevel      string
	logOutput     string

	rootCmd = &cobra.Command{
		Use:   "mentalpoker",
		Short: "Run one peer of a two-party mental poker session",
		Long: `mentalpoker drives one side of a two-peer mental poker session:
a DLEQ-backed deck commitment, a cut-and-choose shuffle proof, and a
card-by-card deal, with no trusted third party.`,
	}

	hostCmd = &cobra.Command{
		Use:   "host",
		Short: "Listen for the other peer and shuffle first",
		Long:  `host accepts one inbound connection and plays the initiator role: it shuffles the deck first and is dealt indices 1..7.`,
		RunE:  runHost,
	}

	joinCmd = &cobra.Command{
		Use:   "join",
		Short: "Dial the other peer and shuffle second",
		Long:  `join connects to a host and plays the responder role: it verifies and re-shuffles the host's deck, and is dealt indices 8..14.`,
		RunE:  runJoin,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&selfName, "name", "n", "peer", "this peer's display name, sent in HELLO")
	rootCmd.PersistentFlags().IntVar(&securityParam, "security-param", config.DefaultShuffleSecurityParam, "number of cut-and-choose shuffle rounds")
	rootCmd.PersistentFlags().DurationVar(&stateTimeout, "state-timeout", config.DefaultStateTimeout, "how long an AWAIT_* state waits before aborting")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", obslog.LevelInfo, "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "log output: stdout, stderr, or a file path")

	hostCmd.Flags().StringVarP(&listenAddr, "listen", "l", "127.0.0.1:4100", "address to accept the other peer's connection on")

	joinCmd.Flags().StringVarP(&peerAddr, "peer", "p", "127.0.0.1:4100", "address of the host to connect to")
	joinCmd.Flags().DurationVar(&connectDelay, "connect-timeout", 10*time.Second, "how long to wait while dialing the host")

	rootCmd.AddCommand(hostCmd, joinCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildConfig(listen, peer string) config.Config {
	cfg := config.Default()
	cfg.ListenAddr = listen
	cfg.PeerAddr = peer
	cfg.ShuffleSecurityParam = securityParam
	cfg.StateTimeout = stateTimeout
	cfg.LogLevel = logLevel
	cfg.LogOutput = logOutput
	return cfg
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg := buildConfig(listenAddr, "")
	if err := cfg.Validate(); err != nil {
		return err
	}
	obslog.Init(cfg.LogLevel, cfg.LogOutput)

	m := protocol.New(cfg, selfName, true)
	return runPeer(cmd.Context(), m, func(ctx context.Context) (*transport.Peer, error) {
		fmt.Fprintf(os.Stderr, "waiting for a peer on %s...\n", listenAddr)
		return transport.Listen(ctx, listenAddr, m)
	})
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg := buildConfig("", peerAddr)
	if err := cfg.Validate(); err != nil {
		return err
	}
	obslog.Init(cfg.LogLevel, cfg.LogOutput)

	m := protocol.New(cfg, selfName, false)
	ctx, cancel := context.WithTimeout(cmd.Context(), connectDelay)
	defer cancel()
	return runPeer(ctx, m, func(ctx context.Context) (*transport.Peer, error) {
		return transport.Dial(ctx, peerAddr, m)
	})
}

// runPeer connects via connect, starts the state machine, relays
// frames until the run terminates, and prints the outcome. A SIGINT or
// SIGTERM while waiting stops the machine cleanly, mirroring the
// teacher's signal-then-shutdown main loop.
func runPeer(ctx context.Context, m *protocol.Machine, connect func(context.Context) (*transport.Peer, error)) error {
	peer, err := connect(ctx)
	if err != nil {
		return err
	}
	defer peer.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- peer.Run() }()

	m.Start()

	go func() {
		if _, ok := <-sigCh; ok {
			m.Stop()
		}
	}()

	outcome, err := m.Result()
	if err != nil {
		return fmt.Errorf("mentalpoker: %w", err)
	}

	<-runErrCh

	fmt.Printf("Hand:\n")
	for _, c := range outcome.Hand {
		fmt.Printf("  %s\n", c)
	}
	return nil
}

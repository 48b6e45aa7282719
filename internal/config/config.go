// Package config collects the runtime knobs the protocol core needs:
// the HMAC transcript key, the shuffle security parameter, per-state
// timeouts, and transport addresses. It follows the teacher's
// single-constructor-builds-a-ready-to-use-value style (app.New), scaled
// up to a struct since this protocol carries more configuration surface
// than a single home directory path.
package config

import (
	"fmt"
	"time"
)

// Defaults match the values spec.md fixes when it does not leave a
// knob as an explicit Open Question.
const (
	DefaultShuffleSecurityParam = 5
	DefaultStateTimeout         = 30 * time.Second
)

// Config is the full set of values a running peer needs before it can
// start the state machine.
type Config struct {
	// ListenAddr is the address this peer accepts the other peer's
	// connection on ("" if this peer only dials out).
	ListenAddr string
	// PeerAddr is the address of the other peer to dial, if this peer
	// initiates the connection.
	PeerAddr string

	// HMACKey is the domain-separation key a caller building its own
	// dleq.Engine (via dleq.NewEngine) should pass instead of nil; nil
	// means "use the default, publicly-known key." A non-nil override
	// only makes sense if both peers are configured with the identical
	// key out of band, since it is part of the wire contract. The
	// protocol.Machine does not consult this field directly: the deck
	// package (through dleq's package-level Prove/Verify) and the shuffle
	// package's Prove/Verify always use the default key, matching spec.md's Open Questions
	// decision that the key is fixed rather than per-session.
	HMACKey []byte

	// ShuffleSecurityParam overrides shuffle.SecurityParam; zero means
	// "use the default."
	ShuffleSecurityParam int

	// StateTimeout bounds how long an AWAIT_* state waits for the
	// expected message before the state machine aborts with
	// protoerr.Timeout (spec §7). The state machine treats zero or a
	// negative value as "no timeout"; Validate rejects such values.
	StateTimeout time.Duration

	// LogLevel and LogOutput are passed straight to obslog.Init.
	LogLevel  string
	LogOutput string
}

// Default returns a Config with every optional field filled to its
// default, and no transport addresses set (the caller must supply
// those).
func Default() Config {
	return Config{
		ShuffleSecurityParam: DefaultShuffleSecurityParam,
		StateTimeout:         DefaultStateTimeout,
		LogLevel:             "info",
		LogOutput:            "stderr",
	}
}

// Validate rejects a Config that cannot start a peer: it must be either
// a listener, a dialer, or both, and its numeric knobs must be positive.
func (c Config) Validate() error {
	if c.ListenAddr == "" && c.PeerAddr == "" {
		return fmt.Errorf("config: at least one of ListenAddr or PeerAddr must be set")
	}
	if c.ShuffleSecurityParam <= 0 {
		return fmt.Errorf("config: ShuffleSecurityParam must be positive, got %d", c.ShuffleSecurityParam)
	}
	if c.StateTimeout <= 0 {
		return fmt.Errorf("config: StateTimeout must be positive, got %s", c.StateTimeout)
	}
	return nil
}

// Package protocol implements the per-peer state machine from spec
// §4.6: IDLE -> GREETING -> PREPARING -> AWAIT_PEER_PREP -> VERIFYING ->
// SHUFFLE_MINE -> AWAIT_PEER_SHUFFLE -> DEALING -> REVEALING -> DONE,
// with ABORT reachable from any non-terminal state. It is modeled on
// luxfi-threshold's pkg/protocol.Handler/MultiHandler: a Listen()
// channel of outgoing frames, an Accept() entrypoint for incoming
// frames, and a Result() that blocks until the machine reaches a
// terminal state. Unlike that N-party, round-numbered handler, this
// machine drives a fixed two-peer, fixed-order sequence, so it is
// implemented as a single goroutine processing an inbound channel
// rather than reactive round bookkeeping -- the right shape once the
// party count and message order are both fixed.
package protocol

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/peilunnn/mentalpoker/internal/config"
	"github.com/peilunnn/mentalpoker/internal/deck"
	"github.com/peilunnn/mentalpoker/internal/handrank"
	"github.com/peilunnn/mentalpoker/internal/obslog"
	"github.com/peilunnn/mentalpoker/internal/protoerr"
	"github.com/peilunnn/mentalpoker/internal/reveal"
	"github.com/peilunnn/mentalpoker/internal/shuffle"
	"github.com/peilunnn/mentalpoker/internal/wire"
)

// State is a stage of the per-peer state machine (spec §4.6).
type State int

const (
	StateIdle State = iota
	StateGreeting
	StatePreparing
	StateAwaitPeerPrep
	StateVerifying
	StateShuffleMine
	StateAwaitPeerShuffle
	StateDealing
	StateRevealing
	StateDone
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateGreeting:
		return "GREETING"
	case StatePreparing:
		return "PREPARING"
	case StateAwaitPeerPrep:
		return "AWAIT_PEER_PREP"
	case StateVerifying:
		return "VERIFYING"
	case StateShuffleMine:
		return "SHUFFLE_MINE"
	case StateAwaitPeerShuffle:
		return "AWAIT_PEER_SHUFFLE"
	case StateDealing:
		return "DEALING"
	case StateRevealing:
		return "REVEALING"
	case StateDone:
		return "DONE"
	case StateAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// Handler is the interface a caller (the transport, or a test harness)
// drives a running protocol instance through.
type Handler interface {
	// Listen returns the channel of outgoing frames to deliver to the peer.
	Listen() <-chan []byte
	// Accept feeds one received frame into the machine.
	Accept(frame []byte)
	// Result blocks until the machine reaches DONE or ABORT.
	Result() (*Outcome, error)
	// Stop aborts the machine from the caller's side.
	Stop()
	// State reports the current state (for observability/tests).
	State() State
}

// Outcome is what a completed run produces: the committed deck's card
// mapping and this peer's revealed hand.
type Outcome struct {
	Mapping *deck.Mapping
	Hand    []handrank.Card
}

// Machine is the Handler implementation. initiator decides shuffle
// order (initiator shuffles first) and hand-index assignment
// (initiator gets the first reveal.HandSize card indices, the other
// peer the next reveal.HandSize), the convention spec §8's S1 scenario
// uses ("Alice draws slots 1..7 and Bob draws 8..14").
type Machine struct {
	cfg       config.Config
	selfName  string
	initiator bool

	mu    sync.Mutex
	state State
	err   error

	d        *deck.Deck
	mapping  *deck.Mapping
	myX      *big.Int
	myHand   reveal.Assignment
	peerHand reveal.Assignment
	hand     []handrank.Card
	pending  map[int]struct{} // slot indices this peer has requested and is awaiting a share for

	awaitTimer *time.Timer // armed while in AWAIT_PEER_PREP or AWAIT_PEER_SHUFFLE; see armTimeout

	out  chan []byte
	done chan struct{}
}

// New builds a Machine in state IDLE, ready for Start. cfg.HMACKey is
// not consulted here: the deck package (through dleq's package-level
// Prove/Verify) and the shuffle package's Prove/Verify already use the
// fixed, publicly-known HMAC key
// spec.md's Open Questions settle on, and a peer that wants its own
// dleq.Engine (a non-default key both sides have agreed on out of band)
// builds one directly rather than through Machine.
func New(cfg config.Config, selfName string, initiator bool) *Machine {
	if cfg.ShuffleSecurityParam > 0 {
		shuffle.SecurityParam = cfg.ShuffleSecurityParam
	}
	m := &Machine{
		cfg:       cfg,
		selfName:  selfName,
		initiator: initiator,
		state:     StateIdle,
		d:         deck.New(),
		pending:   make(map[int]struct{}),
		out:       make(chan []byte, 64),
		done:      make(chan struct{}),
	}
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Listen() <-chan []byte {
	return m.out
}

func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abortLocked(protoerr.New(protoerr.ProtocolViolation, "stopped by caller"))
}

func (m *Machine) Result() (*Outcome, error) {
	<-m.done
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &Outcome{Mapping: m.mapping, Hand: m.hand}, nil
}

// Start sends this peer's HELLO and moves to GREETING.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return
	}
	m.send(wire.TypeHello, wire.Hello{Name: m.selfName})
	m.state = StateGreeting
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
}

func (m *Machine) send(t wire.Type, payload any) {
	b, err := wire.Encode(t, payload)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "encode outgoing message", err))
		return
	}
	select {
	case m.out <- b:
	default:
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, "outgoing queue full"))
	}
}

func (m *Machine) abortLocked(err error) {
	if m.state == StateAbort || m.state == StateDone {
		return
	}
	m.disarmTimeoutLocked()
	m.err = err
	m.state = StateAbort
	obslog.ErrorEvent("protocol aborted", err, map[string]any{"state": m.state.String()})
	close(m.out)
	close(m.done)
}

func (m *Machine) finishLocked() {
	if m.state == StateAbort || m.state == StateDone {
		return
	}
	m.disarmTimeoutLocked()
	m.state = StateDone
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
	close(m.out)
	close(m.done)
}

// armTimeout (re)starts the timer backing spec §7's "a timeout on any
// AWAIT_* state also transitions to ABORT": it replaces any
// already-running timer, and fires protoerr.Timeout only if the machine
// is still in forState when the timer expires, guarding against the
// race where the expected message arrives (and the state moves on)
// right as the timer fires. cfg.StateTimeout <= 0 disables the timeout
// entirely.
func (m *Machine) armTimeout(forState State) {
	m.disarmTimeoutLocked()
	timeout := m.cfg.StateTimeout
	if timeout <= 0 {
		return
	}
	m.awaitTimer = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != forState {
			return
		}
		m.abortLocked(protoerr.New(protoerr.Timeout,
			fmt.Sprintf("no message received within %s in state %s", timeout, forState)))
	})
}

// disarmTimeoutLocked stops the current await timer, if any. Callers
// must hold m.mu.
func (m *Machine) disarmTimeoutLocked() {
	if m.awaitTimer != nil {
		m.awaitTimer.Stop()
		m.awaitTimer = nil
	}
}

// Accept implements the reject policy from spec §5: a message of the
// wrong class for the current state is a ProtocolViolation and aborts
// the machine; there is no queueing or reordering.
func (m *Machine) Accept(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAbort || m.state == StateDone {
		return
	}

	env, err := wire.Decode(frame)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "malformed frame", err))
		return
	}

	switch m.state {
	case StateGreeting:
		m.handleHello(env)
	case StateAwaitPeerPrep:
		m.handleCardPrep(env)
	case StateAwaitPeerShuffle:
		m.handleShuffleResult(env)
	case StateRevealing:
		m.handleRevealMessage(env)
	default:
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation,
			fmt.Sprintf("unexpected message %s in state %s", env.Type, m.state)))
	}
}

func (m *Machine) handleHello(env wire.Envelope) {
	if env.Type != wire.TypeHello {
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("expected HELLO, got %s", env.Type)))
		return
	}
	m.state = StatePreparing
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
	m.runPrepare()
}

// runPrepare computes this peer's 53 card-preparation contributions,
// folds them locally (deck.PrepareRound already does this), sends them,
// and moves to AWAIT_PEER_PREP.
func (m *Machine) runPrepare() {
	contribs, err := deck.PrepareRound(m.d)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "prepare round", err))
		return
	}
	m.send(wire.TypeCardPrep, wire.CardPrepToWire(contribs))
	m.state = StateAwaitPeerPrep
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
	m.armTimeout(StateAwaitPeerPrep)
}

func (m *Machine) handleCardPrep(env wire.Envelope) {
	m.disarmTimeoutLocked()
	if env.Type != wire.TypeCardPrep {
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("expected CARD_PREP, got %s", env.Type)))
		return
	}
	var cp wire.CardPrep
	if err := decodeValue(env, &cp); err != nil {
		m.abortLocked(err)
		return
	}
	contribs, err := wire.CardPrepFromWire(cp)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "decode card prep", err))
		return
	}
	for i := 0; i < deck.Size; i++ {
		if err := deck.ApplyContribution(m.d, i, contribs[i]); err != nil {
			m.abortLocked(err)
			return
		}
	}
	if err := m.d.Finalize(); err != nil {
		m.abortLocked(err)
		return
	}

	mapping, err := deck.BuildMapping(m.d)
	if err != nil {
		m.abortLocked(err)
		return
	}
	m.mapping = mapping

	m.state = StateVerifying
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
	m.assignHands()

	if m.initiator {
		m.runShuffleMine()
	} else {
		m.state = StateAwaitPeerShuffle
		obslog.Event("state transition", map[string]any{"state": m.state.String()})
		m.armTimeout(StateAwaitPeerShuffle)
	}
}

// assignHands fixes which dealing-deck indices belong to which peer,
// per the §8 S1 convention: the initiator gets the first HandSize card
// indices, the other peer the next HandSize.
func (m *Machine) assignHands() {
	mine := make([]int, reveal.HandSize)
	theirs := make([]int, reveal.HandSize)
	if m.initiator {
		for i := 0; i < reveal.HandSize; i++ {
			mine[i] = i + 1
			theirs[i] = reveal.HandSize + i + 1
		}
		m.myHand = reveal.Assignment{Owner: m.selfName, Idxs: mine}
		m.peerHand = reveal.Assignment{Owner: "peer", Idxs: theirs}
	} else {
		for i := 0; i < reveal.HandSize; i++ {
			theirs[i] = i + 1
			mine[i] = reveal.HandSize + i + 1
		}
		m.myHand = reveal.Assignment{Owner: m.selfName, Idxs: mine}
		m.peerHand = reveal.Assignment{Owner: "peer", Idxs: theirs}
	}
}

func (m *Machine) runShuffleMine() {
	m.state = StateShuffleMine
	obslog.Event("state transition", map[string]any{"state": m.state.String()})

	x, perm, out, err := shuffle.Shuffle(m.d)
	if err != nil {
		m.abortLocked(err)
		return
	}
	proof, err := shuffle.Prove(m.d, out, x, perm)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "prove shuffle", err))
		return
	}
	m.myX = x
	m.d = out

	m.send(wire.TypeShuffleResult, wire.ShuffleResult{
		Deck:  wire.DeckSlotsToWire(out.Slots),
		Proof: wire.ShuffleProofToWire(proof),
	})

	if m.initiator {
		m.state = StateAwaitPeerShuffle
		obslog.Event("state transition", map[string]any{"state": m.state.String()})
		m.armTimeout(StateAwaitPeerShuffle)
	} else {
		m.enterDealing()
	}
}

func (m *Machine) handleShuffleResult(env wire.Envelope) {
	m.disarmTimeoutLocked()
	if env.Type != wire.TypeShuffleResult {
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("expected SHUFFLE_RESULT, got %s", env.Type)))
		return
	}
	var sr wire.ShuffleResult
	if err := decodeValue(env, &sr); err != nil {
		m.abortLocked(err)
		return
	}
	slots, err := wire.DeckSlotsFromWire(sr.Deck)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "decode shuffled deck", err))
		return
	}
	proof, err := wire.ShuffleProofFromWire(sr.Proof)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "decode shuffle proof", err))
		return
	}
	shuffled := deck.New()
	shuffled.Slots = slots
	shuffled.MarkShuffled()

	if err := shuffle.Verify(m.d, shuffled, proof); err != nil {
		m.abortLocked(err)
		return
	}
	m.d = shuffled

	if !m.initiator {
		m.runShuffleMine()
		return
	}
	m.enterDealing()
}

func (m *Machine) enterDealing() {
	m.state = StateDealing
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
	m.send(wire.TypeDrawCards, wire.DrawCards{Idxs: m.myHand.Idxs})
	m.state = StateRevealing
	obslog.Event("state transition", map[string]any{"state": m.state.String()})
	m.requestOwnHand()
}

// requestOwnHand sends a REQUEST_REVEAL for each card this peer owns.
func (m *Machine) requestOwnHand() {
	for _, idx := range m.myHand.Idxs {
		m.pending[idx] = struct{}{}
		m.send(wire.TypeRequestReveal, wire.RequestReveal{Idx: idx})
	}
}

func (m *Machine) handleRevealMessage(env wire.Envelope) {
	switch env.Type {
	case wire.TypeDrawCards:
		m.handleDrawCards(env)
	case wire.TypeRequestReveal:
		m.handleRequestReveal(env)
	case wire.TypeRevealShare:
		m.handleRevealShare(env)
	default:
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("unexpected message %s while revealing", env.Type)))
	}
}

// handleDrawCards cross-checks the peer's announced draw against the
// indices this machine already assigned it in assignHands: the two
// peers derive the same convention independently, so a mismatch means
// the peer disagrees about hand assignment, a protocol violation.
func (m *Machine) handleDrawCards(env wire.Envelope) {
	var dc wire.DrawCards
	if err := decodeValue(env, &dc); err != nil {
		m.abortLocked(err)
		return
	}
	if len(dc.Idxs) != len(m.peerHand.Idxs) {
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, "draw announcement length disagrees with expected hand size"))
		return
	}
	for i, idx := range dc.Idxs {
		if idx != m.peerHand.Idxs[i] {
			m.abortLocked(protoerr.New(protoerr.ProtocolViolation, "draw announcement disagrees with expected hand assignment"))
			return
		}
	}
}

// handleRequestReveal answers a peer's request to unmask a slot: the
// request is only valid if the slot was dealt to the requester (spec
// §4.5's ownership invariant, S6). This peer is the non-owner for any
// slot the peer is allowed to request, so it divides out its own
// shuffle scalar and returns the resulting share.
func (m *Machine) handleRequestReveal(env wire.Envelope) {
	var rr wire.RequestReveal
	if err := decodeValue(env, &rr); err != nil {
		m.abortLocked(err)
		return
	}
	if err := reveal.RequireOwner(m.peerHand, rr.Idx); err != nil {
		m.abortLocked(err)
		return
	}
	masked, err := reveal.Deal(m.d, []int{rr.Idx})
	if err != nil {
		m.abortLocked(err)
		return
	}
	share, err := reveal.NonOwnerShare(m.myX, masked[0])
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "compute reveal share", err))
		return
	}
	m.send(wire.TypeRevealShare, wire.RevealShare{Idx: rr.Idx, Share: wire.PointToWire(share)})
}

// handleRevealShare finishes unmasking a card this peer owns: it
// applies its own scalar to the peer's share, then resolves the result
// in the card mapping (spec §4.5's failure semantics: an unresolved
// point is an UnknownCard, fatal).
func (m *Machine) handleRevealShare(env wire.Envelope) {
	var rs wire.RevealShare
	if err := decodeValue(env, &rs); err != nil {
		m.abortLocked(err)
		return
	}
	if _, ok := m.pending[rs.Idx]; !ok {
		m.abortLocked(protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("unsolicited reveal share for slot %d", rs.Idx)))
		return
	}
	delete(m.pending, rs.Idx)

	share, err := wire.PointFromWire(rs.Share)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "decode reveal share", err))
		return
	}
	committed, err := reveal.OwnerFinalize(m.myX, share)
	if err != nil {
		m.abortLocked(protoerr.Wrap(protoerr.ProtocolViolation, "finalize reveal", err))
		return
	}
	card, err := reveal.FinalizeReveal(m.mapping, committed)
	if err != nil {
		m.abortLocked(err)
		return
	}
	m.hand = append(m.hand, card)

	if len(m.pending) == 0 && len(m.hand) == len(m.myHand.Idxs) {
		m.finishLocked()
	}
}

func decodeValue(env wire.Envelope, v any) error {
	if err := json.Unmarshal(env.Value, v); err != nil {
		return protoerr.Wrap(protoerr.ProtocolViolation, fmt.Sprintf("decode %s payload", env.Type), err)
	}
	return nil
}

// Package deck implements the Deck Commitment Engine: Protocol 1 from
// spec §4.3. Two peers each contribute one masked generator per slot;
// neither peer alone can predict the resulting per-slot point, yet both
// converge on the same 53-point deck.
package deck

import (
	"fmt"

	"github.com/peilunnn/mentalpoker/internal/curve"
	"github.com/peilunnn/mentalpoker/internal/dleq"
	"github.com/peilunnn/mentalpoker/internal/handrank"
	"github.com/peilunnn/mentalpoker/internal/protoerr"
)

// Size is the number of slots in a deck: one base slot at index 0 plus
// 52 card slots at indices 1..52.
const Size = 53

// State is a deck's lifecycle stage.
type State int

const (
	StateEmpty State = iota
	StateCommitted
	StateShuffled
)

// Deck is an ordered sequence of 53 curve points. The zero value of
// curve.Point is the identity, which doubles as the original deck.py's "None"
// placeholder: adding into an untouched slot behaves exactly like
// spec §4.3's "None + hx = hx".
type Deck struct {
	Slots    [Size]curve.Point
	state    State
	contribs [Size]int // how many contributions each slot has received
}

// New returns an empty deck.
func New() *Deck {
	return &Deck{state: StateEmpty}
}

// State reports the deck's lifecycle stage.
func (d *Deck) State() State {
	return d.state
}

// Contribution is the 6-tuple (g, gx, h, hx, r, t) broadcast for one
// slot during card preparation. gx is retained only as an audit witness
// (spec §9): it is never consulted when folding the contribution into
// the deck, only when re-verifying the DLEQ against the retained tuple.
type Contribution struct {
	G, GX, H, HX curve.Point
	Proof        dleq.Proof
}

// prepareOneSlot builds this peer's Contribution for one slot: the
// secret x is generated, used to derive gx/hx, proved, and then discarded — it is
// never transmitted or retained.
func prepareOneSlot() (Contribution, error) {
	alpha, err := curve.RandScalar()
	if err != nil {
		return Contribution{}, fmt.Errorf("deck: prepare slot: %w", err)
	}
	beta, err := curve.RandScalar()
	if err != nil {
		return Contribution{}, fmt.Errorf("deck: prepare slot: %w", err)
	}
	x, err := curve.RandScalar()
	if err != nil {
		return Contribution{}, fmt.Errorf("deck: prepare slot: %w", err)
	}

	g := curve.MulBase(alpha)
	h := curve.MulBase(beta)
	gx := curve.Mul(x, g)
	hx := curve.Mul(x, h)

	proof, err := dleq.Prove(g, gx, h, hx, x)
	if err != nil {
		return Contribution{}, fmt.Errorf("deck: prepare slot: %w", err)
	}

	return Contribution{G: g, GX: gx, H: h, HX: hx, Proof: proof}, nil
}

// PrepareRound generates this peer's 53 card-preparation contributions
// (one per slot, in slot-index order) and folds each one's hx into the
// deck's own copy, as spec §4.3 step 5 requires locally before the
// contributions are even sent.
func PrepareRound(d *Deck) ([Size]Contribution, error) {
	var out [Size]Contribution
	for i := 0; i < Size; i++ {
		contrib, err := prepareOneSlot()
		if err != nil {
			return out, err
		}
		out[i] = contrib
		d.Slots[i] = curve.Add(d.Slots[i], contrib.HX)
		d.contribs[i]++
	}
	return out, nil
}

// ApplyContribution verifies and folds in a single contribution received
// from the peer for slot idx. An invalid DLEQ proof is fatal.
func ApplyContribution(d *Deck, idx int, c Contribution) error {
	if idx < 0 || idx >= Size {
		return protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("card prep slot index %d out of range", idx))
	}
	if !dleq.Verify(c.G, c.GX, c.H, c.HX, c.Proof) {
		return protoerr.New(protoerr.ProofInvalid, fmt.Sprintf("dleq check failed for card prep slot %d", idx))
	}
	d.Slots[idx] = curve.Add(d.Slots[idx], c.HX)
	d.contribs[idx]++
	return nil
}

// Finalize marks the deck committed once every slot has received
// exactly two contributions (one from each peer). It is the
// "completion condition" of spec §4.3.
func (d *Deck) Finalize() error {
	for i, n := range d.contribs {
		if n != 2 {
			return protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("slot %d has %d contributions, want 2", i, n))
		}
	}
	d.state = StateCommitted
	return nil
}

// VerifyAgainst cross-checks two committed decks element-wise, the step
// spec §4.3 requires both peers run after completion.
func VerifyAgainst(mine, theirs *Deck) error {
	for i := 0; i < Size; i++ {
		if !curve.Eq(mine.Slots[i], theirs.Slots[i]) {
			return protoerr.New(protoerr.DeckMismatch, fmt.Sprintf("slot %d disagrees between peers", i))
		}
	}
	return nil
}

// MarkShuffled transitions a freshly-built deck (the output of a
// shuffle) into the shuffled state. Shuffle always produces a new Deck
// value rather than mutating the input, per spec §3's immutability
// invariant.
func (d *Deck) MarkShuffled() {
	d.state = StateShuffled
}

// Mapping is the frozen (x,y) -> Card table built once from a committed
// deck's card slots (spec §3's "Card Mapping"). It is consulted only
// during reveal.
type Mapping struct {
	byKey map[string]handrank.Card
}

func key(p curve.Point) string {
	x, y := curve.DecimalCoords(p)
	return x + "|" + y
}

// BuildMapping zips a committed deck's 52 card slots (indices 1..52, in
// order) with the canonical card order, exactly as the original's
// Deck.get_mapping does: zip(self.cards[1:], ALL_CARDS). The derivation
// is deterministic, so two peers holding identical committed decks reach
// identical mappings with nothing further exchanged over the wire. This
// function does not check that agreement: the protocol state machine
// builds the mapping straight after Finalize without running
// VerifyAgainst, and the peers do not send each other their committed
// decks.
func BuildMapping(d *Deck) (*Mapping, error) {
	if d.State() == StateEmpty {
		return nil, protoerr.New(protoerr.ProtocolViolation, "cannot build card mapping before commitment")
	}
	m := &Mapping{byKey: make(map[string]handrank.Card, len(handrank.AllCards))}
	for i, card := range handrank.AllCards {
		m.byKey[key(d.Slots[i+1])] = card
	}
	return m, nil
}

// Lookup resolves an unmasked committed point to its plaintext card.
func (m *Mapping) Lookup(p curve.Point) (handrank.Card, error) {
	card, ok := m.byKey[key(p)]
	if !ok {
		return handrank.Card{}, protoerr.New(protoerr.UnknownCard, "revealed point is not in the card mapping")
	}
	return card, nil
}

package wire

import (
	"fmt"
	"math/big"

	"github.com/peilunnn/mentalpoker/internal/curve"
	"github.com/peilunnn/mentalpoker/internal/deck"
	"github.com/peilunnn/mentalpoker/internal/dleq"
	"github.com/peilunnn/mentalpoker/internal/shuffle"
)

// PointToWire renders a curve point in the decimal-string wire encoding.
func PointToWire(p curve.Point) Point {
	x, y := curve.DecimalCoords(p)
	return Point{X: x, Y: y}
}

// PointFromWire parses a wire Point back into a curve point, validating
// it lies on the curve.
func PointFromWire(w Point) (curve.Point, error) {
	if w.X == "" && w.Y == "" {
		return curve.Point{}, nil
	}
	x, ok := new(big.Int).SetString(w.X, 10)
	if !ok {
		return curve.Point{}, fmt.Errorf("wire: invalid decimal x coordinate %q", w.X)
	}
	y, ok := new(big.Int).SetString(w.Y, 10)
	if !ok {
		return curve.Point{}, fmt.Errorf("wire: invalid decimal y coordinate %q", w.Y)
	}
	return curve.NewPoint(x, y)
}

func scalarToWire(s *big.Int) string {
	if s == nil {
		return "0"
	}
	return s.String()
}

func scalarFromWire(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("wire: invalid decimal scalar %q", s)
	}
	return v, nil
}

// ContributionToWire encodes one deck.Contribution as a CardPrepEntry.
func ContributionToWire(c deck.Contribution) CardPrepEntry {
	return CardPrepEntry{
		G:  PointToWire(c.G),
		GX: PointToWire(c.GX),
		H:  PointToWire(c.H),
		HX: PointToWire(c.HX),
		R:  scalarToWire(c.Proof.R),
		T:  scalarToWire(c.Proof.T),
	}
}

// ContributionFromWire decodes a CardPrepEntry back into a deck.Contribution.
func ContributionFromWire(e CardPrepEntry) (deck.Contribution, error) {
	g, err := PointFromWire(e.G)
	if err != nil {
		return deck.Contribution{}, fmt.Errorf("wire: contribution g: %w", err)
	}
	gx, err := PointFromWire(e.GX)
	if err != nil {
		return deck.Contribution{}, fmt.Errorf("wire: contribution gx: %w", err)
	}
	h, err := PointFromWire(e.H)
	if err != nil {
		return deck.Contribution{}, fmt.Errorf("wire: contribution h: %w", err)
	}
	hx, err := PointFromWire(e.HX)
	if err != nil {
		return deck.Contribution{}, fmt.Errorf("wire: contribution hx: %w", err)
	}
	r, err := scalarFromWire(e.R)
	if err != nil {
		return deck.Contribution{}, fmt.Errorf("wire: contribution r: %w", err)
	}
	t, err := scalarFromWire(e.T)
	if err != nil {
		return deck.Contribution{}, fmt.Errorf("wire: contribution t: %w", err)
	}
	return deck.Contribution{G: g, GX: gx, H: h, HX: hx, Proof: dleq.Proof{R: r, T: t}}, nil
}

// CardPrepToWire encodes a full round of 53 contributions in slot order.
func CardPrepToWire(contribs [deck.Size]deck.Contribution) CardPrep {
	var cp CardPrep
	for i, c := range contribs {
		cp.Cards[i] = ContributionToWire(c)
	}
	return cp
}

// CardPrepFromWire decodes a full round of 53 contributions.
func CardPrepFromWire(cp CardPrep) ([deck.Size]deck.Contribution, error) {
	var out [deck.Size]deck.Contribution
	for i, e := range cp.Cards {
		c, err := ContributionFromWire(e)
		if err != nil {
			return out, fmt.Errorf("wire: card prep slot %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// DeckSlotsToWire encodes a deck's 53 slots in order.
func DeckSlotsToWire(slots [deck.Size]curve.Point) [deck.Size]Point {
	var out [deck.Size]Point
	for i, p := range slots {
		out[i] = PointToWire(p)
	}
	return out
}

// DeckSlotsFromWire decodes a wire-form deck slot array.
func DeckSlotsFromWire(w [deck.Size]Point) ([deck.Size]curve.Point, error) {
	var out [deck.Size]curve.Point
	for i, p := range w {
		pt, err := PointFromWire(p)
		if err != nil {
			return out, fmt.Errorf("wire: deck slot %d: %w", i, err)
		}
		out[i] = pt
	}
	return out, nil
}

// ShuffleProofToWire encodes a shuffle.Proof transcript.
func ShuffleProofToWire(p shuffle.Proof) []RoundDisclosureWire {
	out := make([]RoundDisclosureWire, len(p.Rounds))
	for i, r := range p.Rounds {
		var perm [deck.Size]int
		for j := range perm {
			perm[j] = r.Perm[j]
		}
		out[i] = RoundDisclosureWire{
			C:    DeckSlotsToWire(r.C),
			Z:    scalarToWire(r.Z),
			Perm: perm,
		}
	}
	return out
}

// ShuffleProofFromWire decodes a shuffle transcript.
func ShuffleProofFromWire(w []RoundDisclosureWire) (shuffle.Proof, error) {
	rounds := make([]shuffle.RoundDisclosure, len(w))
	for i, r := range w {
		c, err := DeckSlotsFromWire(r.C)
		if err != nil {
			return shuffle.Proof{}, fmt.Errorf("wire: shuffle round %d: %w", i, err)
		}
		z, err := scalarFromWire(r.Z)
		if err != nil {
			return shuffle.Proof{}, fmt.Errorf("wire: shuffle round %d scalar: %w", i, err)
		}
		var perm shuffle.Permutation
		for j := range perm {
			perm[j] = r.Perm[j]
		}
		rounds[i] = shuffle.RoundDisclosure{C: c, Z: z, Perm: perm}
	}
	return shuffle.Proof{Rounds: rounds}, nil
}

// Package shuffle implements the Shuffle Proof Engine: Protocols 2-4
// from spec §4.4. A committed deck is transformed by a secret scalar x
// and a secret permutation π, with a cut-and-choose NIZK proof that the
// transformation was done correctly without revealing x or π.
package shuffle

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/peilunnn/mentalpoker/internal/curve"
	"github.com/peilunnn/mentalpoker/internal/deck"
	"github.com/peilunnn/mentalpoker/internal/dleq"
	"github.com/peilunnn/mentalpoker/internal/protoerr"
)

// SecurityParam is the number of cut-and-choose rounds. Soundness error
// is approximately 2^-SecurityParam; it is a package variable rather
// than a constant so a caller building for a different security posture
// can override it without forking the package (spec §6 flags this as a
// configuration knob).
var SecurityParam = 5

// Permutation is a permutation of {0, ..., deck.Size-1} with Permutation[0]
// always 0: the base slot is shuffled identically to card slots, but
// never moves away from index 0 (spec §4.4, invariant 5 of spec §8).
type Permutation [deck.Size]int

// Compose returns the permutation equivalent to applying b then mapping
// through a: Compose(a, b)[k] = a[b[k]].
func Compose(a, b Permutation) Permutation {
	var out Permutation
	for k := range out {
		out[k] = a[b[k]]
	}
	return out
}

// randPermutation draws an unbiased permutation of {1, ..., deck.Size-1}
// via Fisher-Yates, then prepends the fixed index 0.
func randPermutation() (Permutation, error) {
	s := make([]int, deck.Size-1)
	for i := range s {
		s[i] = i + 1
	}
	for i := 0; i < len(s)-1; i++ {
		j, err := randBelow(len(s) - i)
		if err != nil {
			return Permutation{}, err
		}
		j += i
		s[i], s[j] = s[j], s[i]
	}
	var out Permutation
	out[0] = 0
	copy(out[1:], s)
	return out, nil
}

// randBelow draws from curve.Reader, not crypto/rand.Reader directly, so
// overriding curve.Reader for a seeded replay (spec §8's S3) makes the
// permutation draw deterministic along with every scalar draw.
func randBelow(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("shuffle: randBelow: n must be positive, got %d", n)
	}
	k, err := rand.Int(curve.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("shuffle: randBelow: %w", err)
	}
	return int(k.Int64()), nil
}

func applyPermutation(perm Permutation, slots [deck.Size]curve.Point) [deck.Size]curve.Point {
	var out [deck.Size]curve.Point
	for i := range out {
		out[i] = slots[perm[i]]
	}
	return out
}

func scaleSlots(scalar *big.Int, slots [deck.Size]curve.Point) [deck.Size]curve.Point {
	var out [deck.Size]curve.Point
	for i := range out {
		out[i] = curve.Mul(scalar, slots[i])
	}
	return out
}

// shuffleOnce applies a fresh secret (scalar, permutation) pair to d,
// returning the scalar, the permutation, and the resulting deck -- the
// primitive both Shuffle and each round of Prove build on (spec §4.4's
// shuffle_cards).
func shuffleOnce(d *deck.Deck) (*big.Int, Permutation, *deck.Deck, error) {
	x, err := curve.RandScalar()
	if err != nil {
		return nil, Permutation{}, nil, fmt.Errorf("shuffle: %w", err)
	}
	perm, err := randPermutation()
	if err != nil {
		return nil, Permutation{}, nil, fmt.Errorf("shuffle: %w", err)
	}
	permuted := applyPermutation(perm, d.Slots)
	out := deck.New()
	out.Slots = scaleSlots(x, permuted)
	return x, perm, out, nil
}

// Shuffle applies a secret multiplier x and a secret permutation π to a
// committed deck: D'[i] = x * D[π[i]].
func Shuffle(d *deck.Deck) (x *big.Int, perm Permutation, out *deck.Deck, err error) {
	if d.State() == deck.StateEmpty {
		return nil, Permutation{}, nil, protoerr.New(protoerr.ProtocolViolation, "cannot shuffle an empty deck")
	}
	x, perm, out, err = shuffleOnce(d)
	if err != nil {
		return nil, Permutation{}, nil, err
	}
	out.MarkShuffled()
	return x, perm, out, nil
}

// RoundDisclosure is one of the SecurityParam entries of a shuffle
// transcript: an intermediate deck C, a scalar z, and a permutation ρ.
type RoundDisclosure struct {
	C    [deck.Size]curve.Point
	Z    *big.Int
	Perm Permutation
}

// Proof is a shuffle transcript: the SecurityParam round disclosures
// produced by Prove.
type Proof struct {
	Rounds []RoundDisclosure
}

func decimalConcat(slots [deck.Size]curve.Point) string {
	s := ""
	for _, p := range slots {
		x, y := curve.DecimalCoords(p)
		s += x + y
	}
	return s
}

// challengeBit derives e_i from HMAC-SHA256 over the decimal-encoded
// coordinates of every card of D, then D', then C (in slot order), per
// spec §4.4. It reuses the same publicly-known HMAC key as the DLEQ
// engine -- both primitives instantiate the same random oracle.
func challengeBit(original, shuffled *deck.Deck, c [deck.Size]curve.Point) int {
	msg := decimalConcat(original.Slots) + decimalConcat(shuffled.Slots) + decimalConcat(c)
	mac := hmac.New(sha256.New, []byte(dleq.DefaultHMACKey))
	mac.Write([]byte(msg))
	digest := mac.Sum(nil)
	e := new(big.Int).SetBytes(digest)
	return int(e.Bit(0))
}

// Prove produces a SecurityParam-round cut-and-choose proof that
// shuffled was obtained from original via (x, perm).
func Prove(original, shuffled *deck.Deck, x *big.Int, perm Permutation) (Proof, error) {
	proof := Proof{Rounds: make([]RoundDisclosure, SecurityParam)}
	for i := 0; i < SecurityParam; i++ {
		y, pPrime, c, err := shuffleOnce(shuffled)
		if err != nil {
			return Proof{}, err
		}
		e := challengeBit(original, shuffled, c.Slots)
		if e == 0 {
			proof.Rounds[i] = RoundDisclosure{C: c.Slots, Z: y, Perm: pPrime}
		} else {
			z := new(big.Int).Mul(x, y)
			proof.Rounds[i] = RoundDisclosure{C: c.Slots, Z: z, Perm: Compose(perm, pPrime)}
		}
	}
	return proof, nil
}

// Verify checks a shuffle transcript. Any round mismatch is fatal.
func Verify(original, shuffled *deck.Deck, proof Proof) error {
	if len(proof.Rounds) != SecurityParam {
		return protoerr.New(protoerr.ProtocolViolation,
			fmt.Sprintf("shuffle proof has %d rounds, want %d", len(proof.Rounds), SecurityParam))
	}
	for i, round := range proof.Rounds {
		if round.Z == nil {
			return protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("shuffle round %d: missing scalar", i))
		}
		e := challengeBit(original, shuffled, round.C)

		var base [deck.Size]curve.Point
		if e == 0 {
			base = shuffled.Slots
		} else {
			base = original.Slots
		}
		candidate := applyPermutation(round.Perm, scaleSlots(round.Z, base))

		for j := 0; j < deck.Size; j++ {
			if !curve.Eq(candidate[j], round.C[j]) {
				return protoerr.New(protoerr.ProofInvalid, fmt.Sprintf("shuffle round %d slot %d mismatch", i, j))
			}
		}
	}
	return nil
}

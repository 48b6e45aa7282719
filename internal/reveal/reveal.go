// Package reveal implements the Deal/Reveal Protocol from spec §4.5: a
// peer is dealt a subset of the dealing deck's card slots, and each
// slot's point is unmasked, one shuffle scalar at a time, until only the
// card's owner can recognize it against the card mapping.
package reveal

import (
	"fmt"
	"math/big"

	"github.com/peilunnn/mentalpoker/internal/curve"
	"github.com/peilunnn/mentalpoker/internal/deck"
	"github.com/peilunnn/mentalpoker/internal/handrank"
	"github.com/peilunnn/mentalpoker/internal/protoerr"
)

// HandSize is the number of cards dealt to each player.
const HandSize = 7

// Assignment records which dealing-deck slot indices belong to a player.
type Assignment struct {
	Owner string
	Idxs  []int
}

// Owns reports whether idx was dealt to this assignment.
func (a Assignment) Owns(idx int) bool {
	for _, i := range a.Idxs {
		if i == idx {
			return true
		}
	}
	return false
}

// RequireOwner enforces spec §4.5's invariant that a card is only ever
// unmasked by its owner: a reveal request for a slot the requester does
// not own is a protocol violation, not a cryptographic failure.
func RequireOwner(a Assignment, idx int) error {
	if !a.Owns(idx) {
		return protoerr.New(protoerr.ProtocolViolation,
			fmt.Sprintf("slot %d was not dealt to %s", idx, a.Owner))
	}
	return nil
}

// Deal extracts the masked points at idxs from the dealing deck, in the
// order requested.
func Deal(dealing *deck.Deck, idxs []int) ([]curve.Point, error) {
	out := make([]curve.Point, len(idxs))
	for i, idx := range idxs {
		if idx < 1 || idx >= deck.Size {
			return nil, protoerr.New(protoerr.ProtocolViolation, fmt.Sprintf("draw index %d out of range", idx))
		}
		out[i] = dealing.Slots[idx]
	}
	return out, nil
}

// unmaskOne divides scalar out of p: returns scalar^-1 * p. It is the
// single primitive behind both halves of a private reveal (the
// non-owner's share and the owner's finalization) since both are the
// same operation applied to a different party's scalar.
func unmaskOne(scalar *big.Int, p curve.Point) (curve.Point, error) {
	inv := new(big.Int).ModInverse(scalar, curve.Order())
	if inv == nil {
		return curve.Point{}, fmt.Errorf("reveal: scalar has no inverse mod curve order")
	}
	return curve.Mul(inv, p), nil
}

// NonOwnerShare is computed by the peer that does NOT own a slot: it
// divides its own shuffle scalar out of the masked point and sends the
// result to the owner. The non-owner never learns the plaintext card,
// since it never divides out the owner's scalar.
func NonOwnerShare(nonOwnerScalar *big.Int, masked curve.Point) (curve.Point, error) {
	p, err := unmaskOne(nonOwnerScalar, masked)
	if err != nil {
		return curve.Point{}, fmt.Errorf("reveal: non-owner share: %w", err)
	}
	return p, nil
}

// OwnerFinalize is run by the slot's owner on the non-owner's share: it
// divides out the owner's own shuffle scalar, producing the original
// committed point suitable for lookup in the card mapping.
func OwnerFinalize(ownerScalar *big.Int, share curve.Point) (curve.Point, error) {
	p, err := unmaskOne(ownerScalar, share)
	if err != nil {
		return curve.Point{}, fmt.Errorf("reveal: owner finalize: %w", err)
	}
	return p, nil
}

// PublicUnmask is the showdown-time reveal (spec §4.5: "the final public
// reveal at showdown releases both scalars for all hand cards"): given
// every shuffle scalar applied during the game, in any order, it divides
// them all out of the masked point to recover the committed point.
// Unlike NonOwnerShare/OwnerFinalize it requires no per-card message
// exchange, since both scalars are published once, at showdown.
func PublicUnmask(scalars []*big.Int, masked curve.Point) (curve.Point, error) {
	p := masked
	for _, s := range scalars {
		var err error
		p, err = unmaskOne(s, p)
		if err != nil {
			return curve.Point{}, fmt.Errorf("reveal: public unmask: %w", err)
		}
	}
	return p, nil
}

// FinalizeReveal looks up a fully-unmasked committed point in the card
// mapping. A point with no entry is fatal: the reveal is invalid.
func FinalizeReveal(mapping *deck.Mapping, p curve.Point) (handrank.Card, error) {
	return mapping.Lookup(p)
}

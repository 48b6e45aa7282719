// Package curve is the adapter layer over the group the rest of the
// protocol stack runs on: the NIST P-256 (secp256r1) subgroup.
//
// Every other package treats Point as opaque and only observes its
// coordinates through Coords; nothing outside this package knows the
// concrete curve in use, so swapping curves later means touching one
// file.
package curve

import (
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Point is an affine point on the curve, or the point at infinity when
// its coordinates are nil. The protocol never transmits the point at infinity; it only
// ever appears transiently as an intermediate of Add.
type Point struct {
	x, y *big.Int
}

var p256 = elliptic.P256()

// Base returns the curve's canonical generator G.
func Base() Point {
	params := p256.Params()
	return Point{x: params.Gx, y: params.Gy}
}

// Order returns n, the prime order of the P-256 subgroup.
func Order() *big.Int {
	return p256.Params().N
}

// Identity reports whether p is the point at infinity.
func Identity(p Point) bool {
	return p.x == nil || p.y == nil
}

// NewPoint constructs a curve point from affine coordinates, validating that
// it actually lies on the curve.
func NewPoint(x, y *big.Int) (Point, error) {
	if x == nil || y == nil {
		return Point{}, nil
	}
	if !p256.IsOnCurve(x, y) {
		return Point{}, fmt.Errorf("curve: point (%s, %s) is not on P-256", x.String(), y.String())
	}
	return Point{x: x, y: y}, nil
}

// Coords returns the affine (x, y) of p. Both are nil if p is the
// identity.
func Coords(p Point) (x, y *big.Int) {
	return p.x, p.y
}

// Add returns p+q, accepting either operand as the identity.
func Add(p, q Point) Point {
	if Identity(p) {
		return q
	}
	if Identity(q) {
		return p
	}
	x, y := p256.Add(p.x, p.y, q.x, q.y)
	return Point{x: x, y: y}
}

// Mul returns k*p. k may be any non-negative integer, including values
// larger than Order(): the group law makes k*P == (k mod n)*P, so no
// caller-side reduction is required or performed here. This is load
// bearing for the DLEQ response t, which is deliberately left unreduced
// (see dleq.Prove).
func Mul(k *big.Int, p Point) Point {
	if k == nil || k.Sign() == 0 || Identity(p) {
		return Point{}
	}
	x, y := p256.ScalarMult(p.x, p.y, k.Bytes())
	return NewIdentityOr(x, y)
}

// MulBase returns k*G.
func MulBase(k *big.Int) Point {
	if k == nil || k.Sign() == 0 {
		return Point{}
	}
	x, y := p256.ScalarBaseMult(k.Bytes())
	return NewIdentityOr(x, y)
}

// NewIdentityOr wraps a (possibly infinity-sentinel) coordinate pair
// returned by the stdlib curve ops into a Point, without re-validating
// on-curve membership (the stdlib already guarantees it for its own
// outputs).
func NewIdentityOr(x, y *big.Int) Point {
	if x.Sign() == 0 && y.Sign() == 0 {
		return Point{}
	}
	return Point{x: x, y: y}
}

// Eq reports whether p and q are the same point.
func Eq(p, q Point) bool {
	if Identity(p) || Identity(q) {
		return Identity(p) && Identity(q)
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

// Reader is the entropy source every scalar in the protocol stack is
// drawn from: RandScalar here, and shuffle.randBelow's permutation
// draws. It defaults to crypto/rand.Reader. Spec §8's S3 scenario (two
// independent runs with the same seed producing an identical committed
// deck, shuffle, and draw) replaces it with a seeded, non-cryptographic
// reader for the duration of one replay run; production code never
// touches this function.
var Reader io.Reader = rand.Reader

// SetReader overrides Reader and returns a function that restores the
// previous one, so a test can `defer curve.SetReader(seeded)()`.
func SetReader(r io.Reader) (restore func()) {
	prev := Reader
	Reader = r
	return func() { Reader = prev }
}

// RandScalar draws a uniform scalar in [0, n) from Reader.
func RandScalar() (*big.Int, error) {
	k, err := rand.Int(Reader, Order())
	if err != nil {
		return nil, fmt.Errorf("curve: rand scalar: %w", err)
	}
	return k, nil
}

// DecimalCoords renders p's coordinates as base-10 decimal strings with
// no separators or padding, matching the wire contract in spec §4.2/§4.4.
// The identity point renders as two empty strings; it is never expected
// to reach this function in practice since it is never part of a
// transmitted transcript.
func DecimalCoords(p Point) (xs, ys string) {
	if Identity(p) {
		return "", ""
	}
	return p.x.String(), p.y.String()
}

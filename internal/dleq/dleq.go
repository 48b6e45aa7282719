// Package dleq implements the non-interactive zero-knowledge proof of
// discrete-logarithm equality described in spec §4.2: a proof of
// knowledge of a scalar x such that gx = x*g and hx = x*h, without
// revealing x.
package dleq

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/peilunnn/mentalpoker/internal/curve"
)

// DefaultHMACKey is the fixed, publicly-known domain-separation key used
// to instantiate the random oracle H. It is not secret; both peers must
// use the identical key for their challenges to agree, and substituting
// a different key (or raw SHA-256) breaks wire compatibility.
const DefaultHMACKey = "b4300d6f7170bc50bc5569b66cf21e3ee0dad1604577dc68279dd6907af40e48"

// Proof is the (r, t) pair produced by Prove. t is deliberately left
// unreduced modulo the curve order: spec §9's Open Questions call this
// out explicitly, and Verify relies on t*G == (r + c*x)*G holding over
// the integers, not just modulo n.
type Proof struct {
	R *big.Int
	T *big.Int
}

// Engine binds a Prove/Verify pair to a specific random-oracle key, so a
// protocol peer can override the default without touching call sites.
type Engine struct {
	key []byte
}

// NewEngine builds an Engine using the given HMAC key. Passing nil uses
// DefaultHMACKey.
func NewEngine(key []byte) *Engine {
	if key == nil {
		key = []byte(DefaultHMACKey)
	}
	return &Engine{key: key}
}

// challenge computes H(Rg.x || Rg.y || Rh.x || Rh.y || gx.x || gx.y ||
// hx.x || hx.y) as an unbounded integer, per spec §4.2. Every coordinate
// is rendered as its base-10 decimal representation with no separators;
// this exact serialization is part of the wire contract.
func (e *Engine) challenge(rg, rh, gx, hx curve.Point) *big.Int {
	rgx, rgy := curve.DecimalCoords(rg)
	rhx, rhy := curve.DecimalCoords(rh)
	gxx, gxy := curve.DecimalCoords(gx)
	hxx, hxy := curve.DecimalCoords(hx)
	msg := rgx + rgy + rhx + rhy + gxx + gxy + hxx + hxy

	mac := hmac.New(sha256.New, e.key)
	mac.Write([]byte(msg))
	digest := mac.Sum(nil)

	c := new(big.Int).SetBytes(digest)
	return c
}

// Prove produces a proof that log_g(gx) == log_h(hx) == x.
func (e *Engine) Prove(g, gx, h, hx curve.Point, x *big.Int) (Proof, error) {
	r, err := curve.RandScalar()
	if err != nil {
		return Proof{}, fmt.Errorf("dleq: prove: %w", err)
	}
	rg := curve.Mul(r, g)
	rh := curve.Mul(r, h)

	c := e.challenge(rg, rh, gx, hx)

	t := new(big.Int).Add(r, new(big.Int).Mul(c, x))
	return Proof{R: r, T: t}, nil
}

// Verify checks a proof produced by Prove. It never returns an error for
// a failed proof; a mismatch simply yields false.
func (e *Engine) Verify(g, gx, h, hx curve.Point, proof Proof) bool {
	if proof.R == nil || proof.T == nil {
		return false
	}
	rg := curve.Mul(proof.R, g)
	rh := curve.Mul(proof.R, h)

	c := e.challenge(rg, rh, gx, hx)

	tg := curve.Mul(proof.T, g)
	th := curve.Mul(proof.T, h)
	gxc := curve.Mul(c, gx)
	hxc := curve.Mul(c, hx)

	okG := curve.Eq(tg, curve.Add(rg, gxc))
	okH := curve.Eq(th, curve.Add(rh, hxc))
	return okG && okH
}

var defaultEngine = NewEngine(nil)

// Prove proves with the default, publicly-known HMAC key.
func Prove(g, gx, h, hx curve.Point, x *big.Int) (Proof, error) {
	return defaultEngine.Prove(g, gx, h, hx, x)
}

// Verify verifies with the default, publicly-known HMAC key.
func Verify(g, gx, h, hx curve.Point, proof Proof) bool {
	return defaultEngine.Verify(g, gx, h, hx, proof)
}

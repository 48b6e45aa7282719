package shuffle

import (
	"math/big"
	"testing"

	"github.com/peilunnn/mentalpoker/internal/curve"
	"github.com/peilunnn/mentalpoker/internal/deck"
)

// committedDeck builds a single committed deck by running both halves of
// the commitment protocol (spec §4.3) between two in-memory decks and
// keeping only the first peer's resulting deck; shuffle tests only need
// a valid committed deck, not cross-peer verification (that is covered
// by the deck package's own tests).
func committedDeck(t *testing.T) *deck.Deck {
	t.Helper()
	alice := deck.New()
	bob := deck.New()

	aliceContribs, err := deck.PrepareRound(alice)
	if err != nil {
		t.Fatalf("alice prepare round: %v", err)
	}
	bobContribs, err := deck.PrepareRound(bob)
	if err != nil {
		t.Fatalf("bob prepare round: %v", err)
	}
	for i := 0; i < deck.Size; i++ {
		if err := deck.ApplyContribution(alice, i, bobContribs[i]); err != nil {
			t.Fatalf("alice applying bob's contribution %d: %v", i, err)
		}
		if err := deck.ApplyContribution(bob, i, aliceContribs[i]); err != nil {
			t.Fatalf("bob applying alice's contribution %d: %v", i, err)
		}
	}
	if err := alice.Finalize(); err != nil {
		t.Fatalf("alice finalize: %v", err)
	}
	return alice
}

func TestShuffleCompleteness(t *testing.T) {
	for trial := 0; trial < 5; trial++ {
		d := committedDeck(t)
		x, perm, out, err := Shuffle(d)
		if err != nil {
			t.Fatalf("shuffle: %v", err)
		}
		proof, err := Prove(d, out, x, perm)
		if err != nil {
			t.Fatalf("prove: %v", err)
		}
		if err := Verify(d, out, proof); err != nil {
			t.Fatalf("trial %d: verify failed: %v", trial, err)
		}
	}
}

func TestShufflePreservesBaseSlot(t *testing.T) {
	d := committedDeck(t)
	x, _, out, err := Shuffle(d)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	want := curve.Mul(x, d.Slots[0])
	if !curve.Eq(out.Slots[0], want) {
		t.Fatalf("base slot not preserved under shuffle")
	}
}

func TestShuffleIsAPermutation(t *testing.T) {
	d := committedDeck(t)
	x, _, out, err := Shuffle(d)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	xInv := new(big.Int).ModInverse(x, curve.Order())
	if xInv == nil {
		t.Fatalf("x has no inverse mod n")
	}

	original := make([]string, deck.Size)
	unmasked := make([]string, deck.Size)
	for i := 0; i < deck.Size; i++ {
		ox, oy := curve.DecimalCoords(d.Slots[i])
		original[i] = ox + "|" + oy
		p := curve.Mul(xInv, out.Slots[i])
		ux, uy := curve.DecimalCoords(p)
		unmasked[i] = ux + "|" + uy
	}

	count := map[string]int{}
	for _, k := range original {
		count[k]++
	}
	for _, k := range unmasked {
		count[k]--
	}
	for k, c := range count {
		if c != 0 {
			t.Fatalf("multiset mismatch at %q: count %d", k, c)
		}
	}
}

// TestRandPermutationIsUnbiased is spec §8's invariant 9: the shuffle is
// drawn from an unbiased permutation distribution. It tracks, across
// many draws, which of the deck.Size-1 non-base slots ends up at output
// position 1, and checks the resulting distribution against uniform
// with a chi-square goodness-of-fit statistic. A biased Fisher-Yates
// (e.g. the classic off-by-one that excludes the last element from
// ever moving) would skew this distribution sharply; an unbiased one
// keeps the statistic well within the generous threshold below.
func TestRandPermutationIsUnbiased(t *testing.T) {
	const (
		buckets = deck.Size - 1 // values 1..deck.Size-1
		trials  = buckets * 200
	)
	counts := make(map[int]int, buckets)
	for i := 0; i < trials; i++ {
		perm, err := randPermutation()
		if err != nil {
			t.Fatalf("rand perm: %v", err)
		}
		counts[perm[1]]++
	}

	expected := float64(trials) / float64(buckets)
	chiSquare := 0.0
	for v := 1; v < deck.Size; v++ {
		diff := float64(counts[v]) - expected
		chiSquare += diff * diff / expected
	}

	// 51 degrees of freedom; the 0.001-significance critical value is
	// ~88. Use a much looser bound so the test only fires on a real
	// bias, not sampling noise.
	const threshold = 150.0
	if chiSquare > threshold {
		t.Fatalf("chi-square statistic %.2f exceeds %.2f across %d buckets (%d trials); randPermutation looks biased",
			chiSquare, threshold, buckets, trials)
	}
}

func TestComposeAssociativity(t *testing.T) {
	a, err := randPermutation()
	if err != nil {
		t.Fatalf("rand perm: %v", err)
	}
	b, err := randPermutation()
	if err != nil {
		t.Fatalf("rand perm: %v", err)
	}
	c, err := randPermutation()
	if err != nil {
		t.Fatalf("rand perm: %v", err)
	}

	left := Compose(Compose(a, b), c)
	right := Compose(a, Compose(b, c))
	if left != right {
		t.Fatalf("compose is not associative")
	}
}

func TestVerifyRejectsSwappedRoundDisclosure(t *testing.T) {
	d := committedDeck(t)
	x, perm, out, err := Shuffle(d)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	proof, err := Prove(d, out, x, perm)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if len(proof.Rounds) < 2 {
		t.Fatalf("expected at least 2 rounds")
	}
	proof.Rounds[0].C, proof.Rounds[1].C = proof.Rounds[1].C, proof.Rounds[0].C

	if err := Verify(d, out, proof); err == nil {
		t.Fatalf("expected verification to fail after swapping C between rounds 0 and 1")
	}
}

package deck

import (
	"math/big"
	"testing"
)

// runCommitment simulates both peers' prepare rounds and cross-folding,
// returning the two decks once committed.
func runCommitment(t *testing.T) (alice, bob *Deck) {
	t.Helper()
	alice = New()
	bob = New()

	aliceContribs, err := PrepareRound(alice)
	if err != nil {
		t.Fatalf("alice prepare round: %v", err)
	}
	bobContribs, err := PrepareRound(bob)
	if err != nil {
		t.Fatalf("bob prepare round: %v", err)
	}

	for i := 0; i < Size; i++ {
		if err := ApplyContribution(bob, i, aliceContribs[i]); err != nil {
			t.Fatalf("bob applying alice's contribution %d: %v", i, err)
		}
		if err := ApplyContribution(alice, i, bobContribs[i]); err != nil {
			t.Fatalf("alice applying bob's contribution %d: %v", i, err)
		}
	}

	if err := alice.Finalize(); err != nil {
		t.Fatalf("alice finalize: %v", err)
	}
	if err := bob.Finalize(); err != nil {
		t.Fatalf("bob finalize: %v", err)
	}
	return alice, bob
}

func TestCommitmentSymmetry(t *testing.T) {
	alice, bob := runCommitment(t)
	if err := VerifyAgainst(alice, bob); err != nil {
		t.Fatalf("decks disagree: %v", err)
	}
	if alice.State() != StateCommitted || bob.State() != StateCommitted {
		t.Fatalf("expected both decks committed")
	}
}

func TestApplyContributionRejectsTamperedProof(t *testing.T) {
	alice := New()
	bob := New()

	aliceContribs, err := PrepareRound(alice)
	if err != nil {
		t.Fatalf("prepare round: %v", err)
	}

	tampered := aliceContribs[0]
	tampered.Proof.T = new(big.Int).Add(tampered.Proof.T, big.NewInt(1))

	if err := ApplyContribution(bob, 0, tampered); err == nil {
		t.Fatalf("expected tampered contribution to be rejected")
	}
}

func TestFinalizeRejectsIncompleteDeck(t *testing.T) {
	alice := New()
	if _, err := PrepareRound(alice); err != nil {
		t.Fatalf("prepare round: %v", err)
	}
	if err := alice.Finalize(); err == nil {
		t.Fatalf("expected finalize to fail without the peer's contributions")
	}
}

func TestBuildMappingCoversAllCanonicalCards(t *testing.T) {
	alice, _ := runCommitment(t)
	mapping, err := BuildMapping(alice)
	if err != nil {
		t.Fatalf("build mapping: %v", err)
	}
	for i := 1; i < Size; i++ {
		if _, err := mapping.Lookup(alice.Slots[i]); err != nil {
			t.Fatalf("slot %d not present in mapping: %v", i, err)
		}
	}
}

func TestBuildMappingRejectsEmptyDeck(t *testing.T) {
	if _, err := BuildMapping(New()); err == nil {
		t.Fatalf("expected error building mapping from an empty deck")
	}
}

package handrank

import "testing"

func c(rank Rank, suit Suit) Card { return Card{Rank: rank, Suit: suit} }

func TestEvaluateCategories(t *testing.T) {
	tests := []struct {
		name string
		hand []Card
		want Category
	}{
		{
			name: "royal flush",
			hand: []Card{c(Ten, Spades), c(Jack, Spades), c(Queen, Spades), c(King, Spades), c(Ace, Spades), c(Two, Clubs), c(Three, Hearts)},
			want: RoyalFlush,
		},
		{
			name: "straight flush",
			hand: []Card{c(Five, Hearts), c(Six, Hearts), c(Seven, Hearts), c(Eight, Hearts), c(Nine, Hearts), c(Two, Clubs), c(Three, Spades)},
			want: StraightFlush,
		},
		{
			name: "four of a kind",
			hand: []Card{c(Nine, Clubs), c(Nine, Hearts), c(Nine, Diamonds), c(Nine, Spades), c(Two, Clubs), c(Three, Hearts), c(Four, Spades)},
			want: FourOfAKind,
		},
		{
			name: "full house",
			hand: []Card{c(Nine, Clubs), c(Nine, Hearts), c(Nine, Diamonds), c(Two, Spades), c(Two, Clubs), c(Three, Hearts), c(Four, Spades)},
			want: FullHouse,
		},
		{
			name: "flush",
			hand: []Card{c(Two, Clubs), c(Five, Clubs), c(Eight, Clubs), c(Jack, Clubs), c(King, Clubs), c(Three, Hearts), c(Four, Spades)},
			want: Flush,
		},
		{
			name: "wheel straight",
			hand: []Card{c(Ace, Clubs), c(Two, Hearts), c(Three, Diamonds), c(Four, Spades), c(Five, Clubs), c(Nine, Hearts), c(Jack, Spades)},
			want: Straight,
		},
		{
			name: "three of a kind",
			hand: []Card{c(Seven, Clubs), c(Seven, Hearts), c(Seven, Diamonds), c(Two, Spades), c(Four, Clubs), c(Six, Hearts), c(Nine, Spades)},
			want: ThreeOfAKind,
		},
		{
			name: "two pair",
			hand: []Card{c(Seven, Clubs), c(Seven, Hearts), c(Four, Diamonds), c(Four, Spades), c(Two, Clubs), c(Six, Hearts), c(Nine, Spades)},
			want: TwoPair,
		},
		{
			name: "one pair",
			hand: []Card{c(Seven, Clubs), c(Seven, Hearts), c(Four, Diamonds), c(Two, Spades), c(Three, Clubs), c(Six, Hearts), c(Nine, Spades)},
			want: Pair,
		},
		{
			name: "high card",
			hand: []Card{c(Two, Clubs), c(Four, Hearts), c(Six, Diamonds), c(Eight, Spades), c(Ten, Clubs), c(Queen, Hearts), c(Ace, Spades)},
			want: HighCard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.hand)
			if got.Category != tt.want {
				t.Fatalf("Evaluate(%s) category = %v, want %v (%s)", tt.name, got.Category, tt.want, got.Description)
			}
		})
	}
}

func TestResultCompareOrdersByCategoryThenTieBreak(t *testing.T) {
	pair := Evaluate([]Card{c(Seven, Clubs), c(Seven, Hearts), c(Four, Diamonds), c(Two, Spades), c(Three, Clubs), c(Six, Hearts), c(Nine, Spades)})
	flush := Evaluate([]Card{c(Two, Clubs), c(Five, Clubs), c(Eight, Clubs), c(Jack, Clubs), c(King, Clubs), c(Three, Hearts), c(Four, Spades)})

	if flush.Compare(pair) <= 0 {
		t.Fatalf("expected flush to beat pair")
	}
	if pair.Compare(flush) >= 0 {
		t.Fatalf("expected pair to lose to flush")
	}
	if pair.Compare(pair) != 0 {
		t.Fatalf("expected identical hands to tie")
	}
}

func TestAllCardsOrderAndCount(t *testing.T) {
	if len(AllCards) != 52 {
		t.Fatalf("len(AllCards) = %d, want 52", len(AllCards))
	}
	if AllCards[0].Rank != Two || AllCards[0].Suit != Clubs {
		t.Fatalf("AllCards[0] = %v, want Two of clubs", AllCards[0])
	}
	if AllCards[51].Rank != Ace || AllCards[51].Suit != Spades {
		t.Fatalf("AllCards[51] = %v, want Ace of spades", AllCards[51])
	}
	seen := map[int]bool{}
	for _, card := range AllCards {
		id := card.ID()
		if seen[id] {
			t.Fatalf("duplicate card id %d for %v", id, card)
		}
		seen[id] = true
	}
}

package wire

import (
	"encoding/json"
	"testing"

	"github.com/peilunnn/mentalpoker/internal/curve"
	"github.com/peilunnn/mentalpoker/internal/deck"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	want := Hello{Name: "alice"}
	b, err := Encode(TypeHello, want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeHello {
		t.Fatalf("got type %q, want %q", env.Type, TypeHello)
	}

	var got Hello
	if err := json.Unmarshal(env.Value, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	if _, err := Decode([]byte(`{"value": {}}`)); err == nil {
		t.Fatalf("expected error decoding frame with no type")
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error decoding malformed frame")
	}
}

func TestPointRoundTrip(t *testing.T) {
	g := curve.Base()
	w := PointToWire(g)
	if w.X == "" || w.Y == "" {
		t.Fatalf("expected non-empty decimal coordinates for the base point")
	}
	back, err := PointFromWire(w)
	if err != nil {
		t.Fatalf("point from wire: %v", err)
	}
	if !curve.Eq(g, back) {
		t.Fatalf("round-tripped point does not match original")
	}
}

func TestIdentityPointRoundTrip(t *testing.T) {
	w := PointToWire(curve.Point{})
	back, err := PointFromWire(w)
	if err != nil {
		t.Fatalf("identity point from wire: %v", err)
	}
	if !curve.Identity(back) {
		t.Fatalf("expected identity point to round-trip as identity")
	}
}

func TestPointFromWireRejectsNonDecimal(t *testing.T) {
	if _, err := PointFromWire(Point{X: "0xFF", Y: "1"}); err == nil {
		t.Fatalf("expected rejection of a hex-encoded coordinate")
	}
}

func TestCardPrepRoundTrip(t *testing.T) {
	d := deck.New()
	contribs, err := deck.PrepareRound(d)
	if err != nil {
		t.Fatalf("prepare round: %v", err)
	}

	cp := CardPrepToWire(contribs)
	b, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("marshal card prep: %v", err)
	}

	var roundTripped CardPrep
	if err := json.Unmarshal(b, &roundTripped); err != nil {
		t.Fatalf("unmarshal card prep: %v", err)
	}

	back, err := CardPrepFromWire(roundTripped)
	if err != nil {
		t.Fatalf("card prep from wire: %v", err)
	}
	for i := range back {
		if !curve.Eq(back[i].HX, contribs[i].HX) {
			t.Fatalf("slot %d hx mismatch after round trip", i)
		}
	}
}

package value

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRoundTripPreservesIntegers(t *testing.T) {
	m := Map{"name": "A", "count": int64(42), "nested": Map{"x": int64(1)}}
	enc, err := MarshalCanonical(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dec, err := Unmarshal(enc)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !Equal(m, dec) {
		t.Fatalf("round trip mismatch: %s", enc)
	}
}

func TestRoundTripPreservesDecimalPrecision(t *testing.T) {
	price, err := decimal.NewFromString("19.99")
	if err != nil {
		t.Fatalf("decimal: %v", err)
	}
	enc, err := MarshalCanonical(Map{"price": price})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dec, err := Unmarshal(enc)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	enc2, err := MarshalCanonical(dec)
	if err != nil {
		t.Fatalf("marshal2: %v", err)
	}
	if string(enc) != string(enc2) {
		t.Fatalf("decimal precision lost: %s != %s", enc, enc2)
	}
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a := Map{"a": int64(1), "b": int64(2)}
	b := Map{"b": int64(2), "a": int64(1)}
	if !Equal(a, b) {
		t.Fatalf("expected key-order-independent equality")
	}
}

func TestNilMapRoundTrips(t *testing.T) {
	enc, err := MarshalCanonical(nil)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if string(enc) != "null" {
		t.Fatalf("expected null, got %s", enc)
	}
	dec, err := Unmarshal(enc)
	if err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if dec != nil {
		t.Fatalf("expected nil map, got %v", dec)
	}
}

package storage

import (
	"testing"

	gocid "github.com/ipfs/go-cid"
)

func TestComputeCID_Deterministic(t *testing.T) {
	data := []byte(`{"hash":"deadbeef"}`)
	a, err := computeCID(data)
	if err != nil {
		t.Fatalf("computeCID: %v", err)
	}
	b, err := computeCID(data)
	if err != nil {
		t.Fatalf("computeCID: %v", err)
	}
	if !a.Equals(b) {
		t.Fatal("computeCID should be deterministic for identical input")
	}
}

func TestComputeCID_DiffersOnDifferentInput(t *testing.T) {
	a, err := computeCID([]byte("one"))
	if err != nil {
		t.Fatalf("computeCID: %v", err)
	}
	b, err := computeCID([]byte("two"))
	if err != nil {
		t.Fatalf("computeCID: %v", err)
	}
	if a.Equals(b) {
		t.Fatal("computeCID should differ for different input")
	}
}

func TestCidToString_RoundTripsThroughMultibase(t *testing.T) {
	c, err := computeCID([]byte("payload"))
	if err != nil {
		t.Fatalf("computeCID: %v", err)
	}
	s := cidToString(c)
	if len(s) == 0 {
		t.Fatal("cidToString produced empty string")
	}
	if s[0] != 'b' {
		t.Fatalf("expected base32 multibase prefix 'b', got %q", s)
	}
	back, err := gocid.Decode(s)
	if err != nil {
		t.Fatalf("gocid.Decode(%q): %v", s, err)
	}
	if !back.Equals(c) {
		t.Fatalf("decoded CID %s does not match original %s", back, c)
	}
}

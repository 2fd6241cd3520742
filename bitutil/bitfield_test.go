package bitutil

import (
	"crypto/rand"
	"testing"
)

func TestPackBitsKnownValues(t *testing.T) {
	bits := []bool{true, true, false, false, true, true, false, false}
	got := PackBits(bits)
	if len(got) != 1 || got[0] != 0b11001100 {
		t.Errorf("expected [0b11001100], got %08b", got)
	}
}

func TestUnpackBitsKnownValues(t *testing.T) {
	got := UnpackBits([]byte{0b10101010})
	expected := []bool{true, false, true, false, true, false, true, false}
	for i, exp := range expected {
		if got[i] != exp {
			t.Errorf("index %d: expected %v, got %v", i, exp, got[i])
		}
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	for n := 0; n < 200; n += 7 {
		raw := make([]byte, (n+7)/8)
		if _, err := rand.Read(raw); err != nil {
			t.Fatal(err)
		}
		bits := UnpackBits(raw)
		if got := PackBits(bits); string(got) != string(raw) {
			t.Errorf("PackBits(UnpackBits(x)) != x for n=%d", n)
		}
	}
}

func TestUnpackPackPadsWithFalse(t *testing.T) {
	bits := []bool{true, false, true}
	packed := PackBits(bits)
	unpacked := UnpackBits(packed)
	if len(unpacked) != 8 {
		t.Fatalf("expected padded length 8, got %d", len(unpacked))
	}
	for i := 3; i < 8; i++ {
		if unpacked[i] {
			t.Errorf("expected padding bit %d to be false", i)
		}
	}
}

func TestHashPercentEncoded(t *testing.T) {
	h, err := FromSlice([]byte("01234567890123456789"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enc := h.PercentEncoded()
	if len(enc) != HashSize*3 {
		t.Errorf("expected %d chars, got %d", HashSize*3, len(enc))
	}
}

func TestHashFromSliceWrongLength(t *testing.T) {
	if _, err := FromSlice([]byte("short")); err == nil {
		t.Error("expected an error for a non-20-byte slice")
	}
}

func TestEndianRoundTrip(t *testing.T) {
	if got := BEToU32(U32BE(0xdeadbeef)); got != 0xdeadbeef {
		t.Errorf("expected 0xdeadbeef, got %x", got)
	}
	if got := BEToU64(U64BE(0x0102030405060708)); got != 0x0102030405060708 {
		t.Errorf("expected 0x0102030405060708, got %x", got)
	}
}

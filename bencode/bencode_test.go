package bencode

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeInteger(t *testing.T) {
	v, err := Decode([]byte("i42e"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := v.AsInt()
	if err != nil {
		t.Fatalf("AsInt: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
	if !bytes.Equal(Encode(v), []byte("i42e")) {
		t.Errorf("encode round-trip mismatch: %s", Encode(v))
	}
}

func TestDecodeNegativeInteger(t *testing.T) {
	v, err := Decode([]byte("i-3e"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, _ := v.AsInt()
	if n != -3 {
		t.Errorf("expected -3, got %d", n)
	}
}

func TestDecodeIntegerRejectsLeadingZero(t *testing.T) {
	if _, err := Decode([]byte("i042e")); err == nil {
		t.Error("expected an error for a leading zero")
	}
}

func TestDecodeIntegerRejectsNegativeZero(t *testing.T) {
	if _, err := Decode([]byte("i-0e")); err == nil {
		t.Error("expected an error for -0")
	}
}

func TestDecodeString(t *testing.T) {
	v, err := Decode([]byte("4:spam"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, err := v.AsText()
	if err != nil {
		t.Fatalf("AsText: %v", err)
	}
	if text != "spam" {
		t.Errorf("expected spam, got %q", text)
	}
}

func TestDecodeList(t *testing.T) {
	v, err := Decode([]byte("l4:spami42ee"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, err := v.AsList()
	if err != nil {
		t.Fatalf("AsList: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(list))
	}
	text, _ := list[0].AsText()
	if text != "spam" {
		t.Errorf("expected spam, got %q", text)
	}
	n, _ := list[1].AsInt()
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

func TestDecodeDict(t *testing.T) {
	v, err := Decode([]byte("d3:cow3:moo4:spam4:eggse"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cow, err := v.GetText("cow")
	if err != nil || cow != "moo" {
		t.Errorf("expected cow=moo, got %q err=%v", cow, err)
	}
	spam, err := v.GetText("spam")
	if err != nil || spam != "eggs" {
		t.Errorf("expected spam=eggs, got %q err=%v", spam, err)
	}
	// Dict keys already in sorted order so re-encoding reproduces the input.
	if !bytes.Equal(Encode(v), []byte("d3:cow3:moo4:spam4:eggse")) {
		t.Errorf("canonical round-trip mismatch: %s", Encode(v))
	}
}

func TestEncodeSortsUnorderedDict(t *testing.T) {
	v := NewDict(map[string]Value{
		"z": Text("last"),
		"a": Text("first"),
		"m": Text("middle"),
	})
	expected := []byte("d1:a5:first1:m6:middle1:z4:laste")
	if !bytes.Equal(Encode(v), expected) {
		t.Errorf("expected %s, got %s", expected, Encode(v))
	}
}

func TestMissingKey(t *testing.T) {
	v, _ := Decode([]byte("d3:cow3:mooe"))
	_, err := v.GetText("spam")
	var missing *MissingKeyError
	if err == nil {
		t.Fatal("expected a MissingKeyError")
	}
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingKeyError, got %T: %v", err, err)
	}
}

func TestWrongType(t *testing.T) {
	v := Integer(1)
	if _, err := v.AsText(); err == nil {
		t.Error("expected a WrongTypeError")
	}
}

func TestDecodeTruncatedStringFails(t *testing.T) {
	if _, err := Decode([]byte("10:short")); err == nil {
		t.Error("expected an error for a string shorter than its declared length")
	}
}

func TestDecodeUnterminatedListFails(t *testing.T) {
	if _, err := Decode([]byte("l4:spam")); err == nil {
		t.Error("expected an error for an unterminated list")
	}
}

func TestStringRedactsPieces(t *testing.T) {
	v := NewDict(map[string]Value{
		"pieces": String(bytes.Repeat([]byte{0xAB}, 40)),
		"name":   Text("movie.mp4"),
	})
	s := v.String()
	if bytes.Contains([]byte(s), bytes.Repeat([]byte{0xAB}, 40)) {
		t.Error("expected pieces bytes to be redacted from String()")
	}
	if !bytes.Contains([]byte(s), []byte("redacted")) {
		t.Errorf("expected redaction marker in %q", s)
	}
}

// For any decoded value, re-encoding and re-decoding should be stable.
func TestDecodeEncodeDecodeStable(t *testing.T) {
	inputs := [][]byte{
		[]byte("i0e"),
		[]byte("i123456789e"),
		[]byte("0:"),
		[]byte("l4:spami42e4:eggse"),
		[]byte("d4:infod4:name4:test12:piece lengthi16384eee"),
	}
	for _, in := range inputs {
		v1, err := Decode(in)
		if err != nil {
			t.Fatalf("decode %s: %v", in, err)
		}
		re := Encode(v1)
		v2, err := Decode(re)
		if err != nil {
			t.Fatalf("re-decode %s: %v", re, err)
		}
		if !valuesEqual(v1, v2) {
			t.Errorf("decode(encode(v)) != v for %s", in)
		}
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInteger:
		return a.Int == b.Int
	case KindString:
		return bytes.Equal(a.Str, b.Str)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !valuesEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.Dict) != len(b.Dict) {
			return false
		}
		for k, av := range a.Dict {
			bv, ok := b.Dict[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

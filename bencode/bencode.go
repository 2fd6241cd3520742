// Package bencode implements a general encoder/decoder for the bencode
// format used by .torrent files and tracker responses.
package bencode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindInteger Kind = iota
	KindString
	KindList
	KindDict
)

// Value is a tagged bencode value: exactly one of Int, Str, List or Dict
// is meaningful, selected by Kind.
type Value struct {
	Kind Kind

	Int  int64
	Str  []byte
	List []Value
	Dict map[string]Value
}

// Integer wraps an int64 as a bencode Value.
func Integer(v int64) Value { return Value{Kind: KindInteger, Int: v} }

// String wraps a byte string as a bencode Value.
func String(v []byte) Value { return Value{Kind: KindString, Str: v} }

// Text wraps a UTF-8 string as a bencode byte-string Value.
func Text(v string) Value { return Value{Kind: KindString, Str: []byte(v)} }

// List wraps a list of values as a bencode Value.
func List(v ...Value) Value { return Value{Kind: KindList, List: v} }

// NewDict builds a dict Value from a map; Encode sorts its keys.
func NewDict(m map[string]Value) Value {
	return Value{Kind: KindDict, Dict: m}
}

// IsZero reports whether v is the zero Value (useful to detect "missing").
func (v Value) IsZero() bool {
	return v.Kind == KindInteger && v.Int == 0 && v.Str == nil && v.List == nil && v.Dict == nil
}

// --- typed accessors ---

// AsInt returns the integer value or a WrongTypeError.
func (v Value) AsInt() (int64, error) {
	if v.Kind != KindInteger {
		return 0, &WrongTypeError{Expected: "integer", Got: v.Kind}
	}
	return v.Int, nil
}

// AsBytes returns the raw byte string or a WrongTypeError.
func (v Value) AsBytes() ([]byte, error) {
	if v.Kind != KindString {
		return nil, &WrongTypeError{Expected: "string", Got: v.Kind}
	}
	return v.Str, nil
}

// AsText decodes the byte string as UTF-8 text.
func (v Value) AsText() (string, error) {
	b, err := v.AsBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AsList returns the list or a WrongTypeError.
func (v Value) AsList() ([]Value, error) {
	if v.Kind != KindList {
		return nil, &WrongTypeError{Expected: "list", Got: v.Kind}
	}
	return v.List, nil
}

// AsDict returns the dict or a WrongTypeError.
func (v Value) AsDict() (map[string]Value, error) {
	if v.Kind != KindDict {
		return nil, &WrongTypeError{Expected: "dict", Got: v.Kind}
	}
	return v.Dict, nil
}

func (v Value) lookup(key string) (Value, error) {
	dict, err := v.AsDict()
	if err != nil {
		return Value{}, err
	}
	val, ok := dict[key]
	if !ok {
		return Value{}, &MissingKeyError{Key: key}
	}
	return val, nil
}

// GetInt looks up key in a dict Value and returns it as an integer.
func (v Value) GetInt(key string) (int64, error) {
	val, err := v.lookup(key)
	if err != nil {
		return 0, err
	}
	return val.AsInt()
}

// GetBytes looks up key in a dict Value and returns it as raw bytes.
func (v Value) GetBytes(key string) ([]byte, error) {
	val, err := v.lookup(key)
	if err != nil {
		return nil, err
	}
	return val.AsBytes()
}

// GetText looks up key in a dict Value and returns it as text.
func (v Value) GetText(key string) (string, error) {
	val, err := v.lookup(key)
	if err != nil {
		return "", err
	}
	return val.AsText()
}

// GetList looks up key in a dict Value and returns it as a list.
func (v Value) GetList(key string) ([]Value, error) {
	val, err := v.lookup(key)
	if err != nil {
		return nil, err
	}
	return val.AsList()
}

// GetDict looks up key in a dict Value and returns it as a dict.
func (v Value) GetDict(key string) (map[string]Value, error) {
	val, err := v.lookup(key)
	if err != nil {
		return nil, err
	}
	return val.AsDict()
}

// String implements fmt.Stringer with the "pieces" key redacted, since it
// is always large and binary and useless in a debug dump.
func (v Value) String() string {
	var b strings.Builder
	v.writeDebug(&b, "")
	return b.String()
}

func (v Value) writeDebug(b *strings.Builder, dictKey string) {
	switch v.Kind {
	case KindInteger:
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case KindString:
		if dictKey == "pieces" {
			fmt.Fprintf(b, "<%d redacted bytes>", len(v.Str))
			return
		}
		b.WriteString(strconv.Quote(string(v.Str)))
	case KindList:
		b.WriteByte('[')
		for i, elem := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			elem.writeDebug(b, "")
		}
		b.WriteByte(']')
	case KindDict:
		keys := sortedKeys(v.Dict)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%q: ", k)
			val := v.Dict[k]
			val.writeDebug(b, k)
		}
		b.WriteByte('}')
	}
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

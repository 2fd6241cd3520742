package bencode

import (
	"bytes"
	"strconv"
)

// Encode renders v in canonical bencode form: dict keys are always
// emitted in ascending lexicographic byte order, regardless of the
// order they were inserted or decoded in. This is what makes
// Encode(Decode(infoBytes)) reproduce a torrent's published info-hash
// even when the original encoder didn't sort its keys — the identity
// hash has to be computed from our own canonical form, not whatever
// byte order the source happened to use.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeTo(&buf, v)
	return buf.Bytes()
}

func encodeTo(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindInteger:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	case KindString:
		buf.WriteString(strconv.Itoa(len(v.Str)))
		buf.WriteByte(':')
		buf.Write(v.Str)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.List {
			encodeTo(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		for _, k := range sortedKeys(v.Dict) {
			encodeTo(buf, Text(k))
			encodeTo(buf, v.Dict[k])
		}
		buf.WriteByte('e')
	}
}

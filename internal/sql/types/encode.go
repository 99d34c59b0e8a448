package types

import (
	"encoding/binary"
	"math"
	"time"
)

// Encoding tags. Numeric values are canonicalized so that an integer and a
// float holding the same number encode identically; equal keys must produce
// equal bytes no matter which numeric kind carried them.
const (
	tagNull      byte = 0x00
	tagInt       byte = 0x01
	tagFloat     byte = 0x02
	tagText      byte = 0x03
	tagBoolFalse byte = 0x04
	tagBoolTrue  byte = 0x05
	tagTimestamp byte = 0x06
)

// AppendEncoded appends a canonical byte encoding of v to dst and returns the
// extended slice. The encoding is self-delimiting, so several values can be
// concatenated to form a composite key.
func AppendEncoded(dst []byte, v Value) []byte {
	if v.Null {
		return append(dst, tagNull)
	}
	switch val := v.Data.(type) {
	case int64:
		dst = append(dst, tagInt)
		return binary.BigEndian.AppendUint64(dst, uint64(val))
	case float64:
		if f := math.Trunc(val); f == val && f >= math.MinInt64 && f < math.MaxInt64 {
			// Integral float: encode as the equal integer.
			dst = append(dst, tagInt)
			return binary.BigEndian.AppendUint64(dst, uint64(int64(f)))
		}
		dst = append(dst, tagFloat)
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(val))
	case string:
		dst = append(dst, tagText)
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(val)))
		return append(dst, val...)
	case bool:
		if val {
			return append(dst, tagBoolTrue)
		}
		return append(dst, tagBoolFalse)
	case time.Time:
		dst = append(dst, tagTimestamp)
		return binary.BigEndian.AppendUint64(dst, uint64(val.UnixNano()))
	default:
		return append(dst, tagNull)
	}
}

// EncodeKey encodes a composite key from the given values.
func EncodeKey(values ...Value) []byte {
	dst := make([]byte, 0, 16*len(values))
	for _, v := range values {
		dst = AppendEncoded(dst, v)
	}
	return dst
}

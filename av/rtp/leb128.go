package rtp

import "fmt"

// maxLEB128Bytes bounds decoding; AV1 limits leb128() to 8 bytes.
const maxLEB128Bytes = 8

// DecodeLEB128 decodes an unsigned LEB128 value from the start of buf and
// returns it with the number of bytes consumed.
func DecodeLEB128(buf []byte) (uint64, int, error) {
	var value uint64
	for i := 0; i < maxLEB128Bytes; i++ {
		if i >= len(buf) {
			return 0, 0, fmt.Errorf("%w: unexpected end of buffer", ErrMalformedLEB128)
		}
		b := buf[i]
		value |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: longer than %d bytes", ErrMalformedLEB128, maxLEB128Bytes)
}

// EncodeLEB128 encodes value as unsigned LEB128.
func EncodeLEB128(value uint64) []byte {
	out := make([]byte, 0, 2)
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

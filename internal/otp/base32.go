package otp

import (
	"errors"
	"strings"
)

// base32 alphabet per RFC 4648 (A-Z, 2-7)
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

const base32Pad = '='

var ErrMalformedBase32 = errors.New("malformed base32 input")

// Base32Decode is a strict decoder for TOTP secrets. The padding
// character count must be one of {0, 1, 3, 4, 6} and padding, when
// present, must be a trailing contiguous run. Malformed input is
// rejected outright rather than silently truncated.
func Base32Decode(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}

	padCount := strings.Count(s, string(base32Pad))
	switch padCount {
	case 0, 1, 3, 4, 6:
	default:
		return nil, ErrMalformedBase32
	}

	if padCount > 0 {
		if !strings.HasSuffix(s, strings.Repeat(string(base32Pad), padCount)) {
			return nil, ErrMalformedBase32
		}
		if strings.Contains(s[:len(s)-padCount], string(base32Pad)) {
			return nil, ErrMalformedBase32
		}
	}

	trimmed := s[:len(s)-padCount]

	var (
		buffer  uint32
		bits    uint
		decoded []byte
	)
	for i := 0; i < len(trimmed); i++ {
		idx := strings.IndexByte(base32Alphabet, trimmed[i])
		if idx < 0 {
			return nil, ErrMalformedBase32
		}

		buffer = buffer<<5 | uint32(idx)
		bits += 5
		if bits >= 8 {
			bits -= 8
			decoded = append(decoded, byte(buffer>>bits))
		}
	}

	return decoded, nil
}

// Base32Encode encodes raw bytes with trailing padding to a multiple of
// eight characters. Inverse of Base32Decode for well-formed input.
func Base32Encode(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var (
		buffer  uint32
		bits    uint
		builder strings.Builder
	)
	for _, b := range data {
		buffer = buffer<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			builder.WriteByte(base32Alphabet[buffer>>bits&31])
		}
	}
	if bits > 0 {
		builder.WriteByte(base32Alphabet[buffer<<(5-bits)&31])
	}

	for builder.Len()%8 != 0 {
		builder.WriteByte(base32Pad)
	}

	return builder.String()
}

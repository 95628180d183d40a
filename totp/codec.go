package totp

import (
	"strconv"
	"strings"
)

const (
	base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	base32Pad      = '='
)

var base32Decode = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xff
	}
	for i := 0; i < len(base32Alphabet); i++ {
		t[base32Alphabet[i]] = byte(i)
	}
	return t
}()

// FormatError reports a secret text that is not valid base-32.
type FormatError struct {
	Offset int
	Char   byte
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return "totp: malformed base32: " + e.Reason
	}
	return "totp: malformed base32: illegal character " + strconv.QuoteRune(rune(e.Char)) + " at offset " + strconv.Itoa(e.Offset)
}

// EncodeBase32 encodes src with the RFC 4648 alphabet. Every 5 bits become
// one symbol, the final group is right-padded with zero bits and the output
// is padded with '=' to a multiple of 8 characters.
func EncodeBase32(src []byte) string {
	if len(src) == 0 {
		return ""
	}

	symbols := (len(src)*8 + 4) / 5
	padded := (symbols + 7) / 8 * 8

	var b strings.Builder
	b.Grow(padded)

	var buf uint32
	bits := 0
	for _, c := range src {
		buf = buf<<8 | uint32(c)
		bits += 8
		for bits >= 5 {
			bits -= 5
			b.WriteByte(base32Alphabet[(buf>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		b.WriteByte(base32Alphabet[(buf<<uint(5-bits))&0x1f])
	}
	for i := symbols; i < padded; i++ {
		b.WriteByte(base32Pad)
	}
	return b.String()
}

// DecodeBase32 reverses [EncodeBase32]. Trailing '=' terminators are
// stripped; lowercase letters and spaces (as displayed by authenticator
// apps) are accepted. Any other character yields a *FormatError.
func DecodeBase32(text string) ([]byte, error) {
	cleaned := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == ' ':
			continue
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		}
		cleaned = append(cleaned, c)
	}

	end := len(cleaned)
	for end > 0 && cleaned[end-1] == base32Pad {
		end--
	}
	cleaned = cleaned[:end]

	switch len(cleaned) % 8 {
	case 1, 3, 6:
		return nil, &FormatError{Reason: "impossible symbol count " + strconv.Itoa(len(cleaned))}
	}

	out := make([]byte, 0, len(cleaned)*5/8)
	var buf uint32
	bits := 0
	for i, c := range cleaned {
		v := base32Decode[c]
		if v == 0xff {
			return nil, &FormatError{Offset: offsetInOriginal(text, i), Char: c}
		}
		buf = buf<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>uint(bits)))
		}
	}
	return out, nil
}

// offsetInOriginal maps an index into the space-stripped input back to the
// caller's string.
func offsetInOriginal(text string, cleanedIdx int) int {
	seen := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			continue
		}
		if seen == cleanedIdx {
			return i
		}
		seen++
	}
	return len(text)
}

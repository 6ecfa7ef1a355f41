package output

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// SanitizeCell makes a string from the kernel safe to print inside one table
// cell. Control characters, including newlines and tabs, and invalid UTF-8
// bytes are replaced with visible escapes:
//   - "hi\x1b[31m" -> `hi\x1b[31m`
//   - "a\nb"       -> `a\x0ab`
//   - "bad:\xff"   -> `bad:\xff`
func SanitizeCell(s string) string {
	idx := 0
	for idx < len(s) {
		r, size := utf8.DecodeRuneInString(s[idx:])
		if (r == utf8.RuneError && size == 1) || unicode.IsControl(r) {
			break
		}
		idx += size
	}
	if idx == len(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	b.WriteString(s[:idx])

	for idx < len(s) {
		r, size := utf8.DecodeRuneInString(s[idx:])
		switch {
		case r == utf8.RuneError && size == 1:
			appendEscapedByte(&b, s[idx])
		case unicode.IsControl(r):
			appendEscapedRune(&b, r)
		default:
			b.WriteString(s[idx : idx+size])
		}
		idx += size
	}
	return b.String()
}

func appendEscapedByte(b *strings.Builder, bt byte) {
	b.WriteString(`\x`)
	b.WriteByte(hexDigits[bt>>4])
	b.WriteByte(hexDigits[bt&0x0f])
}

// appendEscapedRune writes \xHH, \uHHHH or \UHHHHHHHH depending on the size
// of r.
func appendEscapedRune(b *strings.Builder, r rune) {
	if r <= 0xFF {
		appendEscapedByte(b, byte(r))
		return
	}
	if r <= 0xFFFF {
		b.WriteString(`\u`)
		writeHex(b, uint32(r), 4)
		return
	}
	b.WriteString(`\U`)
	writeHex(b, uint32(r), 8)
}

func writeHex(b *strings.Builder, v uint32, digits int) {
	for i := digits - 1; i >= 0; i-- {
		b.WriteByte(hexDigits[(v>>(4*i))&0x0f])
	}
}

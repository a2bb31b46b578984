package gcode

import "strings"

var bom = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a UTF-8 byte-order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == bom[0] && b[1] == bom[1] && b[2] == bom[2] {
		return b[3:]
	}
	return b
}

// isASCII reports whether every byte is plain ASCII (0x00-0x7F).
func isASCII(b []byte) bool {
	for _, c := range b {
		if c > 0x7F {
			return false
		}
	}
	return true
}

// stripComments removes "(...)" block comments, ";..." line comments, and
// "%"-framing lines, then trims trailing whitespace. A line that is only a
// "%" framing marker becomes empty (the loader then drops it, but still
// counts its position in the source line numbering).
func stripComments(raw string) string {
	if strings.TrimSpace(raw) == "%" {
		return ""
	}
	var b strings.Builder
	depth := 0
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth > 0:
			// inside a block comment, skip
		case c == ';':
			i = len(raw) // stop: rest of line is a comment
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimRight(b.String(), " \t\r\n")
}

// compact removes inter-word spaces, drops N-prefixed line-number words, and
// normalizes numeric formatting. words is the already-parsed token list for
// the (comment-stripped) line.
func compact(words []Word) string {
	var b strings.Builder
	for _, w := range words {
		if w.Letter == 'N' {
			continue // line numbers are not meaningful to GRBL and only cost bytes
		}
		b.WriteByte(w.Letter)
		b.WriteString(normalizeNumber(w.Raw))
	}
	return b.String()
}

// normalizeNumber strips trailing fractional zeros, drops a redundant
// leading zero before the decimal point, and always preserves the sign.
func normalizeNumber(raw string) string {
	sign := ""
	s := raw
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	} else if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return sign + s
	}
	intPart := s[:dot]
	fracPart := strings.TrimRight(s[dot+1:], "0")
	if fracPart == "" {
		if intPart == "" {
			intPart = "0"
		}
		return sign + intPart
	}
	if intPart == "0" {
		intPart = ""
	}
	return sign + intPart + "." + fracPart
}

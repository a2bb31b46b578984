package stream

import "github.com/rkolbi/simple-sender/gcode"

func validateLine(text string) error {
	full := len(text) + 1 // + LF
	if full > gcode.MaxLineBytes {
		return &ValidationError{Kind: LineTooLong, Text: text}
	}
	for i := 0; i < len(text); i++ {
		b := text[i]
		if b != 0x09 && (b < 0x20 || b > 0x7E) {
			return &ValidationError{Kind: NonAsciiLine, Text: text}
		}
	}
	return nil
}

// isAutoPauseLine reports whether text's leading word is M0, M1, or M6
// (spec §4.D auto-pause directives).
func isAutoPauseLine(text string) bool {
	words := gcode.ParseWords(text)
	if len(words) == 0 || words[0].Letter != 'M' {
		return false
	}
	switch words[0].Raw {
	case "0", "1", "6":
		return true
	default:
		return false
	}
}

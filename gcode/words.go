package gcode

import (
	"regexp"
	"strconv"
	"strings"
)

var wordPattern = regexp.MustCompile(`[A-Za-z][-+]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)`)

// Word is one letter+number pair parsed out of a line, e.g. "X10.5".
type Word struct {
	Letter byte
	Raw    string // the numeric portion, as written
}

// Value parses the word's numeric portion as a float64.
func (w Word) Value() float64 {
	v, _ := strconv.ParseFloat(w.Raw, 64)
	return v
}

// ParseWords tokenizes an already comment-stripped G-code line into its
// constituent words, tolerant of spaces anywhere between or inside a word
// boundary (but not inside a number).
func ParseWords(line string) []Word {
	matches := wordPattern.FindAllString(line, -1)
	words := make([]Word, 0, len(matches))
	for _, m := range matches {
		letter := m[0]
		if letter >= 'a' && letter <= 'z' {
			letter -= 'a' - 'A'
		}
		words = append(words, Word{Letter: letter, Raw: m[1:]})
	}
	return words
}

// HasOnlyWords reports whether every word's letter is in allowed.
func HasOnlyWords(words []Word, allowed string) bool {
	for _, w := range words {
		if !strings.ContainsRune(allowed, rune(w.Letter)) {
			return false
		}
	}
	return true
}

// FindWord returns the first word with the given letter.
func FindWord(words []Word, letter byte) (Word, bool) {
	for _, w := range words {
		if w.Letter == letter {
			return w, true
		}
	}
	return Word{}, false
}

package macro

import (
	"bufio"
	"fmt"
	"strings"
)

// Header is a macro file's fixed 4-line positional header (spec §6):
// label, tooltip, an optional background color, and an optional text
// color. Using a plain positional scan here (not yaml.v3) is deliberate:
// a 4-line fixed-position format is the wrong job for a general-purpose
// YAML parser, so this is a justified standard-library exception
// (documented in DESIGN.md).
type Header struct {
	Label     string
	Tooltip   string
	Color     string // "" if omitted
	TextColor string // "" if omitted
}

// ParseFile splits raw macro file content into its Header and body text.
func ParseFile(content string) (Header, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var lines [4]string
	n := 0
	for n < 4 && scanner.Scan() {
		lines[n] = scanner.Text()
		n++
	}
	if n < 2 {
		return Header{}, "", fmt.Errorf("macro: header requires at least label and tooltip lines, got %d", n)
	}

	h := Header{Label: lines[0], Tooltip: lines[1]}
	if n >= 3 {
		h.Color = strings.TrimSpace(lines[2])
	}
	if n >= 4 {
		h.TextColor = strings.TrimSpace(lines[3])
	}

	var body strings.Builder
	for scanner.Scan() {
		body.WriteString(scanner.Text())
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return Header{}, "", fmt.Errorf("macro: reading body: %w", err)
	}
	return h, body.String(), nil
}

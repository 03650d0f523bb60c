package format

import (
	"strings"
)

// EscapeCell makes text safe inside a single markdown table cell.
func EscapeCell(text string) string {
	text = PreprocessText(text)
	text = strings.ReplaceAll(text, "|", "\\|")
	return strings.Join(strings.Fields(text), " ")
}

// PreprocessText normalizes caller-supplied text for display.
func PreprocessText(text string) string {
	if text == "" {
		return text
	}

	// Replace curly quotes (helps readability)
	text = strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	).Replace(text)

	return text
}

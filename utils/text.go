package utils

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
	"github.com/zeebo/blake3"
)

const (
	// MaxThoughtChars caps every free-text input (thoughts, problem statements).
	MaxThoughtChars = 2000

	// ContextCharBudget is the total character budget of one context list.
	ContextCharBudget = 2000

	signatureHexLen = 16
)

// CollapseWhitespace replaces every run of whitespace with a single space and trims the ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// NormalizeThought collapses whitespace and truncates to MaxThoughtChars.
func NormalizeThought(s string) string {
	return Truncate(CollapseWhitespace(s), MaxThoughtChars)
}

// ThoughtSignature returns a short BLAKE3 digest of the case- and whitespace-insensitive
// form of a thought. Thoughts that differ only in case or spacing share a signature.
func ThoughtSignature(s string) string {
	normalized := strings.ToLower(NormalizeThought(s))
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:signatureHexLen]
}

// AppendWithinBudget appends entry and evicts the oldest entries while the total
// character count exceeds maxChars. The newest entry is always kept.
func AppendWithinBudget(entries []string, entry string, maxChars int) []string {
	entries = append(entries, entry)
	return TrimToBudget(entries, maxChars)
}

// TrimToBudget drops the oldest entries until the total character count fits in
// maxChars or a single entry remains.
func TrimToBudget(entries []string, maxChars int) []string {
	if maxChars <= 0 {
		return entries
	}
	total := 0
	for _, e := range entries {
		total += utf8.RuneCountInString(e)
	}
	drop := 0
	for total > maxChars && len(entries)-drop > 1 {
		total -= utf8.RuneCountInString(entries[drop])
		drop++
	}
	if drop == 0 {
		return entries
	}
	return append(entries[:0:0], entries[drop:]...)
}

// ParseContextBlob splits a newline-delimited blob into normalized, non-empty entries
// bounded by ContextCharBudget.
func ParseContextBlob(blob string) []string {
	if strings.TrimSpace(blob) == "" {
		return nil
	}
	var entries []string
	for _, line := range strings.Split(blob, "\n") {
		line = NormalizeThought(line)
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	return TrimToBudget(entries, ContextCharBudget)
}

// Summarize produces a short summary from the most recent context entry: its first
// sentence, cut to maxChars.
func Summarize(entries []string, maxChars int) string {
	if len(entries) == 0 {
		return ""
	}
	return Truncate(firstSentence(entries[len(entries)-1]), maxChars)
}

// firstSentence uses prose sentence segmentation; on failure the whole text is returned.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return text
	}
	sentences := doc.Sentences()
	if len(sentences) == 0 {
		return text
	}
	first := strings.TrimSpace(sentences[0].Text)
	if first == "" {
		return text
	}
	return first
}

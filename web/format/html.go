package format

import (
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"hrm-reasoner/session"
)

var listItemPattern = regexp.MustCompile(`^(\d+\.|[-*+])\s`)

// ToHTML converts markdown to HTML. Raw HTML in the input is dropped since the text
// comes from callers.
func ToHTML(md string) string {
	md = normalizeMarkdownLists(md)
	p := parser.NewWithExtensions(parser.CommonExtensions)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	return string(markdown.ToHTML([]byte(md), p, r))
}

// ReportHTML renders a standalone HTML page describing st.
func ReportHTML(st *session.State) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>Reasoning session %s</title>\n", stdhtml.EscapeString(st.ID))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(ToHTML(StateMarkdown(st)))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// normalizeMarkdownLists ensures list items are preceded by a blank line so the
// parser treats them as lists.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i > 0 && listItemPattern.MatchString(trimmed) {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !listItemPattern.MatchString(prev) && !strings.HasPrefix(prev, "|") {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

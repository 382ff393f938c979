package markdown

import (
	"regexp"
	"strings"
)

// Style is the formatting of an inline span.
type Style int

const (
	Plain Style = iota
	Bold
	Italic
	Code
)

func (s Style) String() string {
	switch s {
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case Code:
		return "code"
	default:
		return "plain"
	}
}

// Span is a run of text with one style. Markers are stripped.
type Span struct {
	Style Style
	Text  string
}

var (
	codePattern   = regexp.MustCompile("`([^`]+)`")
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicPattern = regexp.MustCompile(`\*(.+?)\*|_(.+?)_`)
)

// Inline splits one line into styled spans. Code spans are found first,
// bold in the text between them, italic in what remains, so spans never
// overlap. Unmatched markers stay in the plain text.
func Inline(text string) []Span {
	if text == "" {
		return nil
	}
	return splitBy(text, codePattern, Code, func(seg string) []Span {
		return splitBy(seg, boldPattern, Bold, func(seg string) []Span {
			return splitBy(seg, italicPattern, Italic, plain)
		})
	})
}

func splitBy(text string, re *regexp.Regexp, style Style, rest func(string) []Span) []Span {
	var spans []Span
	last := 0
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			spans = append(spans, rest(text[last:m[0]])...)
		}
		spans = append(spans, Span{Style: style, Text: firstGroup(text, m)})
		last = m[1]
	}
	if last < len(text) {
		spans = append(spans, rest(text[last:])...)
	}
	return spans
}

// firstGroup returns the first capture group that participated in match m.
func firstGroup(text string, m []int) string {
	for i := 2; i+1 < len(m); i += 2 {
		if m[i] >= 0 {
			return text[m[i]:m[i+1]]
		}
	}
	return ""
}

func plain(s string) []Span {
	return []Span{{Style: Plain, Text: s}}
}

// PlainText joins the span texts without markers.
func PlainText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

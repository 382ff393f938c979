// Package markdown renders the small markdown subset assistant replies use:
// paragraphs, bullet and numbered lists, and bold, italic and code spans.
//
// Render is a pure function of its input and is meant to be called again on
// the whole accumulated text after every streamed delta.
package markdown

import (
	"regexp"
	"strings"
)

// Kind identifies a block.
type Kind int

const (
	Paragraph Kind = iota
	BulletList
	NumberedList
	Break
)

func (k Kind) String() string {
	switch k {
	case BulletList:
		return "bullet-list"
	case NumberedList:
		return "numbered-list"
	case Break:
		return "break"
	default:
		return "paragraph"
	}
}

// Block is one rendered block. Paragraphs use Spans, lists use Items, and
// breaks use neither.
type Block struct {
	Kind  Kind
	Spans []Span
	Items [][]Span
}

var (
	bulletItem   = regexp.MustCompile(`^[-*]\s+(.+)$`)
	numberedItem = regexp.MustCompile(`^\d+\.\s+(.+)$`)
)

// Render converts text into blocks. Empty input yields no blocks.
func Render(text string) []Block {
	if text == "" {
		return nil
	}

	var (
		blocks []Block
		list   *Block
	)
	flush := func() {
		if list != nil {
			blocks = append(blocks, *list)
			list = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		kind, item, ok := listItem(line)
		if ok {
			if list != nil && list.Kind != kind {
				flush()
			}
			if list == nil {
				list = &Block{Kind: kind}
			}
			list.Items = append(list.Items, Inline(item))
			continue
		}

		flush()
		if line == "" {
			blocks = append(blocks, Block{Kind: Break})
			continue
		}
		blocks = append(blocks, Block{Kind: Paragraph, Spans: Inline(line)})
	}
	flush()

	return blocks
}

func listItem(line string) (Kind, string, bool) {
	if m := bulletItem.FindStringSubmatch(line); m != nil {
		return BulletList, m[1], true
	}
	if m := numberedItem.FindStringSubmatch(line); m != nil {
		return NumberedList, m[1], true
	}
	return 0, "", false
}

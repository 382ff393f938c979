package main

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/folio/internal/markdown"
)

var (
	styleItalic = lipgloss.NewStyle().Italic(true)
	styleCode   = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	styleBullet = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// renderMarkdown formats a reply for the terminal.
func renderMarkdown(text string) string {
	var sb strings.Builder
	for _, b := range markdown.Render(text) {
		switch b.Kind {
		case markdown.Paragraph:
			sb.WriteString(renderSpans(b.Spans))
			sb.WriteString("\n")
		case markdown.Break:
			sb.WriteString("\n")
		case markdown.BulletList:
			for _, item := range b.Items {
				sb.WriteString("  " + colorize(styleBullet, "•") + " ")
				sb.WriteString(renderSpans(item))
				sb.WriteString("\n")
			}
		case markdown.NumberedList:
			for i, item := range b.Items {
				sb.WriteString("  " + colorize(styleBullet, strconv.Itoa(i+1)+".") + " ")
				sb.WriteString(renderSpans(item))
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

func renderSpans(spans []markdown.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		switch s.Style {
		case markdown.Bold:
			sb.WriteString(colorize(styleBold, s.Text))
		case markdown.Italic:
			sb.WriteString(colorize(styleItalic, s.Text))
		case markdown.Code:
			if noColor {
				sb.WriteString("`" + s.Text + "`")
			} else {
				sb.WriteString(styleCode.Render(s.Text))
			}
		default:
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

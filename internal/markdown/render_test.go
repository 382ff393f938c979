package markdown

import (
	"reflect"
	"testing"
)

func TestInline(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Span
	}{
		{
			name: "three styles",
			in:   "**bold** and *italic* and `code`",
			want: []Span{
				{Bold, "bold"}, {Plain, " and "}, {Italic, "italic"}, {Plain, " and "}, {Code, "code"},
			},
		},
		{
			name: "underscore markers",
			in:   "__strong__ then _soft_",
			want: []Span{{Bold, "strong"}, {Plain, " then "}, {Italic, "soft"}},
		},
		{
			name: "plain text",
			in:   "nothing special",
			want: []Span{{Plain, "nothing special"}},
		},
		{
			name: "unterminated bold stays literal",
			in:   "**bold without end",
			want: []Span{{Plain, "**bold without end"}},
		},
		{
			name: "unterminated code stays literal",
			in:   "use `go test",
			want: []Span{{Plain, "use `go test"}},
		},
		{
			name: "markers inside code are verbatim",
			in:   "run `a *b* c` now",
			want: []Span{{Plain, "run "}, {Code, "a *b* c"}, {Plain, " now"}},
		},
		{
			name: "italic inside bold is not split out",
			in:   "**very *much* so**",
			want: []Span{{Bold, "very *much* so"}},
		},
		{
			name: "empty",
			in:   "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Inline(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Inline(%q) =\n%+v\nwant\n%+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRender_ListBreakParagraph(t *testing.T) {
	got := Render("- a\n- b\n\nc")
	want := []Block{
		{Kind: BulletList, Items: [][]Span{{{Plain, "a"}}, {{Plain, "b"}}}},
		{Kind: Break},
		{Kind: Paragraph, Spans: []Span{{Plain, "c"}}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Render() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestRender_SingleParagraph(t *testing.T) {
	got := Render("**bold** and *italic* and `code`")
	if len(got) != 1 || got[0].Kind != Paragraph {
		t.Fatalf("Render() = %+v, want one paragraph", got)
	}
	if len(got[0].Spans) != 5 {
		t.Errorf("got %d spans, want 5", len(got[0].Spans))
	}
}

func TestRender_ListKindChangeFlushes(t *testing.T) {
	got := Render("1. first\n2. second\n* bullet\n3. third")
	kinds := make([]Kind, len(got))
	for i, b := range got {
		kinds[i] = b.Kind
	}
	want := []Kind{NumberedList, BulletList, NumberedList}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	if len(got[0].Items) != 2 {
		t.Errorf("first list has %d items, want 2", len(got[0].Items))
	}
	if PlainText(got[2].Items[0]) != "third" {
		t.Errorf("last item = %q, want third", PlainText(got[2].Items[0]))
	}
}

func TestRender_TrailingListFlushed(t *testing.T) {
	got := Render("Skills:\n  - Go\n  - **Rust**")
	if len(got) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got))
	}
	list := got[1]
	if list.Kind != BulletList || len(list.Items) != 2 {
		t.Fatalf("list = %+v", list)
	}
	if !reflect.DeepEqual(list.Items[1], []Span{{Bold, "Rust"}}) {
		t.Errorf("item 2 = %+v", list.Items[1])
	}
}

func TestRender_NotAList(t *testing.T) {
	tests := []string{"-no space", "1.no space", "**bold** start", "-", "12"}
	for _, in := range tests {
		got := Render(in)
		if len(got) != 1 || got[0].Kind != Paragraph {
			t.Errorf("Render(%q) = %+v, want one paragraph", in, got)
		}
	}
}

func TestRender_Empty(t *testing.T) {
	if got := Render(""); got != nil {
		t.Errorf("Render(\"\") = %+v, want nil", got)
	}
}

func TestRender_Idempotent(t *testing.T) {
	full := "Here is a list:\n- one\n- two *ish*\n\nDone."
	// Rendering every prefix must never panic, and rendering the same text
	// twice must give the same result.
	for i := 0; i <= len(full); i++ {
		Render(full[:i])
	}
	if !reflect.DeepEqual(Render(full), Render(full)) {
		t.Error("Render is not deterministic")
	}
}

func TestKindAndStyleStrings(t *testing.T) {
	if Break.String() != "break" || NumberedList.String() != "numbered-list" {
		t.Error("unexpected Kind strings")
	}
	if Code.String() != "code" || Plain.String() != "plain" {
		t.Error("unexpected Style strings")
	}
}

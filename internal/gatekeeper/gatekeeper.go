// Package gatekeeper decides whether a visitor question is about the site
// owner and therefore worth sending to the language model.
//
// It is a keyword heuristic that lets ambiguous input through, not an intent
// classifier. Rules run in a fixed order and the first match wins.
package gatekeeper

import (
	"strings"
	"unicode/utf16"
)

// Rejection messages shown to the visitor.
const (
	MsgTooShort   = "Please ask a more specific question about my work, experience, or projects."
	MsgOutOfScope = "I can only answer questions about my professional background, experience, projects, and skills. Please ask me something about my work or portfolio."
	MsgRephrase   = "I can help answer questions about my professional experience, projects I've built, my skills, or my background. Could you rephrase your question to be more specific?"
	MsgFallback   = "I can only answer questions about my professional background. Please ask about my experience, projects, or skills."
)

// Verdict is the outcome of classifying one question.
type Verdict struct {
	Relevant bool   `json:"relevant"`
	Message  string `json:"message,omitempty"`
}

// RejectionMessage returns the message to show for a rejected verdict.
func (v Verdict) RejectionMessage() string {
	if v.Message == "" {
		return MsgFallback
	}
	return v.Message
}

// Question holds the normalized text and the keyword facts the rules test.
type Question struct {
	Text    string
	OnTopic bool
	Generic bool
}

// Rule is one step of the decision list.
type Rule struct {
	Name    string
	Match   func(Question) bool
	Verdict Verdict
}

// Rules is evaluated top to bottom, and the first match wins.
var Rules = []Rule{
	{
		Name:    "too-short",
		Match:   func(q Question) bool { return textLength(q.Text) < minLength },
		Verdict: Verdict{Message: MsgTooShort},
	},
	{
		Name:    "generic",
		Match:   func(q Question) bool { return q.Generic && !q.OnTopic },
		Verdict: Verdict{Message: MsgOutOfScope},
	},
	{
		Name:    "on-topic",
		Match:   func(q Question) bool { return q.OnTopic },
		Verdict: Verdict{Relevant: true},
	},
	{
		Name:    "vague-question",
		Match:   looksLikeQuestion,
		Verdict: Verdict{Message: MsgRephrase},
	},
}

// Analyze normalizes the question and computes its keyword facts.
func Analyze(question string) Question {
	text := strings.TrimSpace(strings.ToLower(question))
	return Question{
		Text:    text,
		OnTopic: containsAny(text, OnTopicKeywords),
		Generic: hasAnyPrefix(text, OffTopicPrefixes) && !strings.Contains(text, selfReference),
	}
}

// Classify runs the rules against question. Questions no rule matches are
// accepted.
func Classify(question string) Verdict {
	v, _ := Explain(question)
	return v
}

// Explain is Classify that also names the deciding rule, or "default".
func Explain(question string) (Verdict, string) {
	q := Analyze(question)
	for _, r := range Rules {
		if r.Match(q) {
			return r.Verdict, r.Name
		}
	}
	return Verdict{Relevant: true}, "default"
}

func looksLikeQuestion(q Question) bool {
	return strings.Contains(q.Text, "?") || hasAnyPrefix(q.Text, questionOpeners)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// textLength counts UTF-16 code units, so a character outside the BMP such
// as an emoji counts twice.
func textLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

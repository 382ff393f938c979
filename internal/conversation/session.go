// Package conversation holds a visitor's side of a chat: the message
// history, the greeting, and a client that streams replies from the relay.
package conversation

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
)

// GreetingID marks the synthetic first message, which is never sent upstream.
const GreetingID = "greeting"

// ErrorReply is the assistant turn shown when a reply fails.
const ErrorReply = "Sorry, I encountered an error. Please try again."

const greetingTail = "Ask me anything about my work, experience, or projects."

// SuggestedPrompts are offered before the visitor types anything.
var SuggestedPrompts = []string{
	"Tell me about your professional experience and previous roles",
	"What technologies and programming languages do you specialize in?",
	"Show me some of your most interesting projects",
	"Tell me more about yourself and your background",
}

// Message is one entry of the visible history.
type Message struct {
	ID      string
	Role    string
	Content string
}

// Session is the ordered history of one conversation. It is safe for
// concurrent use so a UI can read it while a reply streams in.
type Session struct {
	mu       sync.Mutex
	messages []Message
}

// NewSession seeds the greeting from p. The greeting is fixed at creation.
func NewSession(p *profile.Profile) *Session {
	s := &Session{}
	s.messages = append(s.messages, Message{ID: GreetingID, Role: proxy.RoleAssistant, Content: Greeting(p)})
	return s
}

// Greeting returns the opening line for p.
func Greeting(p *profile.Profile) string {
	if name := p.FullName(); name != "" {
		return "Hi! I'm " + name + ". " + greetingTail
	}
	return "Hi there! " + greetingTail
}

// Messages returns a copy of the full history, greeting included.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Upstream returns the history in wire form, without the greeting.
func (s *Session) Upstream() []proxy.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proxy.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.ID == GreetingID {
			continue
		}
		out = append(out, proxy.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// AddUser appends a visitor turn and returns its ID.
func (s *Session) AddUser(content string) string {
	return s.add(proxy.RoleUser, content)
}

// AddAssistant appends an assistant turn and returns its ID.
func (s *Session) AddAssistant(content string) string {
	return s.add(proxy.RoleAssistant, content)
}

func (s *Session) add(role, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.messages = append(s.messages, Message{ID: id, Role: role, Content: content})
	return id
}

// Append adds delta to the message with the given ID and returns the new text.
func (s *Session) Append(id, delta string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content += delta
			return s.messages[i].Content
		}
	}
	return ""
}

// Replace sets the content of the message with the given ID.
func (s *Session) Replace(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			return
		}
	}
}

func (s *Session) content(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m.Content
		}
	}
	return ""
}

// Last returns the newest message.
func (s *Session) Last() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[len(s.messages)-1]
}

// Transcript renders the history as plain "role: text" lines.
func (s *Session) Transcript() string {
	var sb strings.Builder
	for _, m := range s.Messages() {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

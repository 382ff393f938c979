package composer

import (
	"strconv"
	"strings"

	"github.com/kalambet/folio/internal/profile"
	"github.com/kalambet/folio/internal/proxy"
)

// Fallback is the system prompt used when no profile record is available.
const Fallback = "You are a helpful AI assistant."

// Closing is appended to every persona prompt.
const Closing = "\n\nIMPORTANT: Answer all questions as if you ARE this person. " +
	`Use "I" and "my" when referring to your experience, projects, and skills. ` +
	"Be conversational and authentic. If asked about something not in your profile, " +
	"politely say you don't have that information rather than making things up."

// Compose renders the bundle into the assistant's system prompt. Sections
// whose collection is empty are left out entirely.
func Compose(b profile.Bundle) string {
	p := b.Profile
	if p == nil {
		return Fallback
	}

	var sb strings.Builder

	sb.WriteString("You are " + p.FirstName + " " + p.LastName + ". ")
	if p.Headline != "" {
		sb.WriteString("Your professional headline is: " + p.Headline + ". ")
	}
	if p.ShortBio != "" {
		sb.WriteString("About you: " + p.ShortBio + " ")
	}
	if p.YearsOfExperience != 0 {
		sb.WriteString("You have " + formatNumber(p.YearsOfExperience) + " years of professional experience. ")
	}
	if p.Location != "" {
		sb.WriteString("You are located in " + p.Location + ". ")
	}

	writeExperience(&sb, b.Experience)
	writeProjects(&sb, b.Projects)
	writeSkills(&sb, b.Skills)
	writeEducation(&sb, b.Education)

	sb.WriteString(Closing)
	return sb.String()
}

func writeExperience(sb *strings.Builder, exps []profile.Experience) {
	if len(exps) == 0 {
		return
	}
	sb.WriteString("\n\nYour Professional Experience:\n")
	for i, e := range exps {
		sb.WriteString(strconv.Itoa(i+1) + ". " + e.JobTitle + " at " + e.Company)
		if e.Location != "" {
			sb.WriteString(" (" + e.Location + ")")
		}
		if e.StartDate != "" {
			sb.WriteString(" from " + e.StartDate)
			if e.EndDate != "" {
				sb.WriteString(" to " + e.EndDate)
			}
			if e.Current {
				sb.WriteString(" (Current)")
			}
		}
		if e.Description != "" {
			sb.WriteString("\n   " + e.Description)
		}
		if len(e.Achievements) > 0 {
			sb.WriteString("\n   Key Achievements: " + strings.Join(e.Achievements, ", "))
		}
		writeTechnologies(sb, e.Technologies)
		sb.WriteString("\n")
	}
}

func writeProjects(sb *strings.Builder, projects []profile.Project) {
	if len(projects) == 0 {
		return
	}
	sb.WriteString("\n\nYour Projects:\n")
	for i, p := range projects {
		sb.WriteString(strconv.Itoa(i+1) + ". " + p.Title)
		if p.Tagline != "" {
			sb.WriteString(" - " + p.Tagline)
		}
		if p.Category != "" {
			sb.WriteString(" (" + p.Category + ")")
		}
		if p.LiveURL != "" {
			sb.WriteString("\n   Live: " + p.LiveURL)
		}
		if p.GitHubURL != "" {
			sb.WriteString("\n   GitHub: " + p.GitHubURL)
		}
		writeTechnologies(sb, p.Technologies)
		sb.WriteString("\n")
	}
}

func writeSkills(sb *strings.Builder, skills []profile.Skill) {
	if len(skills) == 0 {
		return
	}

	// Categories keep the order in which they first appear.
	var order []string
	groups := make(map[string][]string)
	for _, s := range skills {
		cat := s.Category
		if cat == "" {
			cat = "Other"
		}
		if _, ok := groups[cat]; !ok {
			order = append(order, cat)
		}
		entry := s.Name
		if s.Level != "" {
			entry += " (" + s.Level + ")"
		}
		if s.YearsOfExperience != 0 {
			entry += " - " + formatNumber(s.YearsOfExperience) + " years"
		}
		groups[cat] = append(groups[cat], entry)
	}

	sb.WriteString("\n\nYour Skills:\n")
	for _, cat := range order {
		sb.WriteString(cat + ": " + strings.Join(groups[cat], ", ") + "\n")
	}
}

func writeEducation(sb *strings.Builder, edu []profile.Education) {
	if len(edu) == 0 {
		return
	}
	sb.WriteString("\n\nYour Education:\n")
	for i, e := range edu {
		sb.WriteString(strconv.Itoa(i+1) + ". " + e.Degree)
		if e.Field != "" {
			sb.WriteString(" in " + e.Field)
		}
		// An absent institution still renders the clause.
		sb.WriteString(" from " + e.Institution)
		if e.Location != "" {
			sb.WriteString(" (" + e.Location + ")")
		}
		if e.StartDate != "" && e.EndDate != "" {
			sb.WriteString(", " + e.StartDate + " - " + e.EndDate)
		}
		if e.GPA != "" {
			sb.WriteString(", GPA: " + e.GPA)
		}
		if e.Description != "" {
			sb.WriteString("\n   " + e.Description)
		}
		sb.WriteString("\n")
	}
}

func writeTechnologies(sb *strings.Builder, techs []profile.Technology) {
	names := make([]string, 0, len(techs))
	for _, t := range techs {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	if len(names) > 0 {
		sb.WriteString("\n   Technologies: " + strings.Join(names, ", "))
	}
}

// formatNumber prints whole numbers without a decimal point.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WithSystem prepends the system prompt to the conversation. An existing
// leading system message is merged rather than duplicated.
func WithSystem(system string, msgs []proxy.Message) []proxy.Message {
	if len(msgs) > 0 && msgs[0].Role == proxy.RoleSystem {
		out := make([]proxy.Message, len(msgs))
		copy(out, msgs)
		out[0].Content = system + "\n\n---\n\n" + msgs[0].Content
		return out
	}
	out := make([]proxy.Message, 0, len(msgs)+1)
	out = append(out, proxy.Message{Role: proxy.RoleSystem, Content: system})
	return append(out, msgs...)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

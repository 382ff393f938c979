package profile

import "encoding/json"

// Bundle is everything the chat assistant knows about the site owner. Every
// field is optional; consumers treat the zero value as absent.
type Bundle struct {
	Profile    *Profile     `json:"profile,omitempty"`
	Experience []Experience `json:"experience,omitempty" validate:"dive"`
	Projects   []Project    `json:"projects,omitempty" validate:"dive"`
	Skills     []Skill      `json:"skills,omitempty" validate:"dive"`
	Education  []Education  `json:"education,omitempty" validate:"dive"`
}

// Profile is the singleton identity record.
type Profile struct {
	FirstName         string          `json:"firstName,omitempty"`
	LastName          string          `json:"lastName,omitempty"`
	Headline          string          `json:"headline,omitempty"`
	ShortBio          string          `json:"shortBio,omitempty"`
	FullBio           string          `json:"fullBio,omitempty"`
	Email             string          `json:"email,omitempty"`
	Phone             string          `json:"phone,omitempty"`
	Location          string          `json:"location,omitempty"`
	Availability      string          `json:"availability,omitempty"`
	YearsOfExperience float64         `json:"yearsOfExperience,omitempty" validate:"gte=0"`
	SocialLinks       json.RawMessage `json:"socialLinks,omitempty"`
	Stats             json.RawMessage `json:"stats,omitempty"`
}

// FullName joins the non-empty name parts.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

// Technology is a dereferenced technology document.
type Technology struct {
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

type Experience struct {
	ID           string       `json:"_id,omitempty"`
	JobTitle     string       `json:"jobTitle,omitempty"`
	Company      string       `json:"company,omitempty"`
	Location     string       `json:"location,omitempty"`
	StartDate    string       `json:"startDate,omitempty"`
	EndDate      string       `json:"endDate,omitempty"`
	Current      bool         `json:"current,omitempty"`
	Description  string       `json:"description,omitempty"`
	Achievements []string     `json:"achievements,omitempty"`
	Technologies []Technology `json:"technologies,omitempty"`
}

type Project struct {
	ID           string       `json:"_id,omitempty"`
	Title        string       `json:"title,omitempty"`
	Tagline      string       `json:"tagline,omitempty"`
	Category     string       `json:"category,omitempty"`
	LiveURL      string       `json:"liveUrl,omitempty"`
	GitHubURL    string       `json:"githubUrl,omitempty"`
	Order        int          `json:"order,omitempty"`
	Technologies []Technology `json:"technologies,omitempty"`
}

type Skill struct {
	ID                string  `json:"_id,omitempty"`
	Name              string  `json:"name,omitempty"`
	Category          string  `json:"category,omitempty"`
	Level             string  `json:"level,omitempty"`
	YearsOfExperience float64 `json:"yearsOfExperience,omitempty" validate:"gte=0"`
	Percentage        float64 `json:"percentage,omitempty" validate:"gte=0,lte=100"`
}

type Education struct {
	ID          string `json:"_id,omitempty"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	Institution string `json:"institution,omitempty"`
	Location    string `json:"location,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Description string `json:"description,omitempty"`
	GPA         string `json:"gpa,omitempty"`
}

// Empty reports whether the bundle carries no content at all.
func (b Bundle) Empty() bool {
	return b.Profile == nil && len(b.Experience) == 0 && len(b.Projects) == 0 &&
		len(b.Skills) == 0 && len(b.Education) == 0
}

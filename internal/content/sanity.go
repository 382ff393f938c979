package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/folio/internal/profile"
)

const (
	defaultDataset    = "production"
	defaultAPIVersion = "2024-01-01"
	fetchTimeout      = 10 * time.Second
)

// GROQ queries for each bundle collection. Ordering happens server-side.
const (
	profileQuery = `*[_id == "singleton-profile"][0]{
  firstName, lastName, headline, shortBio, fullBio, email, phone,
  location, availability, socialLinks, yearsOfExperience, stats
}`
	experienceQuery = `*[_type == "experience"] | order(startDate desc){
  _id, jobTitle, company, location, startDate, endDate, current,
  description, achievements[], technologies[]->{name, category}
}`
	projectsQuery = `*[_type == "project"] | order(order asc){
  _id, title, tagline, category, liveUrl, githubUrl, order,
  technologies[]->{name, category}
}`
	skillsQuery = `*[_type == "skill"] | order(name asc){
  _id, name, category, level, yearsOfExperience, percentage
}`
	educationQuery = `*[_type == "education"] | order(endDate desc){
  _id, degree, field, institution, location, startDate, endDate,
  description, gpa
}`
)

// SanityOptions locate a Sanity dataset.
type SanityOptions struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	UseCDN     bool
	// Token is an optional read token for private datasets.
	Token string
	// BaseURL overrides the computed API host (used by tests).
	BaseURL string
}

// Sanity fetches the bundle from a Sanity content lake over its HTTP query
// API.
type Sanity struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSanity creates a Sanity source.
func NewSanity(opts SanityOptions) *Sanity {
	if opts.Dataset == "" {
		opts.Dataset = defaultDataset
	}
	if opts.APIVersion == "" {
		opts.APIVersion = defaultAPIVersion
	}
	base := opts.BaseURL
	if base == "" {
		host := "api.sanity.io"
		if opts.UseCDN && opts.Token == "" {
			host = "apicdn.sanity.io"
		}
		base = fmt.Sprintf("https://%s.%s", opts.ProjectID, host)
	}
	base = strings.TrimRight(base, "/") + "/v" + strings.TrimPrefix(opts.APIVersion, "v") + "/data/query/" + opts.Dataset

	return &Sanity{
		baseURL:    base,
		token:      opts.Token,
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch runs the five collection queries concurrently and validates the
// assembled bundle.
func (s *Sanity) Fetch(ctx context.Context) (profile.Bundle, error) {
	var b profile.Bundle
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.query(gCtx, profileQuery, &b.Profile) })
	g.Go(func() error { return s.query(gCtx, experienceQuery, &b.Experience) })
	g.Go(func() error { return s.query(gCtx, projectsQuery, &b.Projects) })
	g.Go(func() error { return s.query(gCtx, skillsQuery, &b.Skills) })
	g.Go(func() error { return s.query(gCtx, educationQuery, &b.Education) })

	if err := g.Wait(); err != nil {
		return profile.Bundle{}, err
	}
	if err := profile.Validate(b); err != nil {
		return profile.Bundle{}, err
	}
	return b, nil
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type queryError struct {
	Error struct {
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"error"`
}

func (s *Sanity) query(ctx context.Context, groq string, into any) error {
	u := s.baseURL + "?query=" + url.QueryEscape(groq)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("querying content store: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading content store response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var qe queryError
		if json.Unmarshal(body, &qe) == nil && qe.Error.Description != "" {
			return fmt.Errorf("content store returned %d: %s", resp.StatusCode, qe.Error.Description)
		}
		return fmt.Errorf("content store returned %d", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return fmt.Errorf("decoding content store response: %w", err)
	}
	if len(qr.Result) == 0 || string(qr.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(qr.Result, into); err != nil {
		return fmt.Errorf("decoding query result: %w", err)
	}
	return nil
}

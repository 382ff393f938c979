package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document kinds, one per bundle collection.
const (
	KindProfile    = "profile"
	KindExperience = "experience"
	KindProject    = "project"
	KindSkill      = "skill"
	KindEducation  = "education"
)

// Kinds lists every document kind in bundle order.
var Kinds = []string{KindProfile, KindExperience, KindProject, KindSkill, KindEducation}

// Document is one stored content record. Body is the record's JSON.
type Document struct {
	Kind      string
	ID        string
	Position  int
	Body      string
	UpdatedAt time.Time
}

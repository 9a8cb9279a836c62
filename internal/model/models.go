// Package model defines shared data structures for the ingest service.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Category is the opportunity type; values mirror the feed categories.
type Category string

const (
	CategoryHackathon   Category = "HACKATHON"
	CategoryCompetition Category = "COMPETITION"
	CategoryInternship  Category = "INTERNSHIP"
	CategoryJob         Category = "JOB"
	CategoryScholarship Category = "SCHOLARSHIP"
)

// AllCategories lists every category in processing order.
var AllCategories = []Category{
	CategoryHackathon,
	CategoryCompetition,
	CategoryInternship,
	CategoryJob,
	CategoryScholarship,
}

// ParseCategory converts a raw string (any case) to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// SourceRef identifies the feed record an opportunity was merged from.
type SourceRef struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
}

// Opportunity is the persisted, deduplicated record.
// It is stored as a JSONB document keyed by ID.
type Opportunity struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Company         string      `json:"company"`
	Type            Category    `json:"type"`
	Location        string      `json:"location"`
	Country         string      `json:"country"`
	ApplyLink       string      `json:"apply_link"`
	Deadline        *time.Time  `json:"deadline"`
	PostedAt        *time.Time  `json:"posted_at"`
	Source          string      `json:"source"`
	Status          string      `json:"status"`
	Description     string      `json:"description"`
	FullDescription string      `json:"full_description"`
	EducationLevel  []string    `json:"education_level"`
	Domain          []string    `json:"domain"`
	SkillsRequired  []string    `json:"skills_required"`
	Tags            []string    `json:"tags"`
	MergedSources   []SourceRef `json:"merged_sources"`
	Archived        bool        `json:"archived"`
	FetchedAt       time.Time   `json:"fetched_at"`
}

// Status values written alongside the feed record.
const (
	StatusOpen    = "open"
	StatusUnknown = "unknown"
)

// SourceLog is a write-only audit record of one raw fetch.
type SourceLog struct {
	ID         string    `json:"id"`
	FetchedAt  time.Time `json:"fetched_at"`
	Source     string    `json:"source"`
	Category   Category  `json:"category"`
	Page       int       `json:"page"`
	StatusCode int       `json:"status_code"`
	Raw        string    `json:"raw,omitempty"`
	Truncated  bool      `json:"truncated"`
}

// MaxRawPayload caps the characters kept in SourceLog.Raw.
const MaxRawPayload = 200_000

// NewSourceLog builds a SourceLog, truncating raw to MaxRawPayload characters.
func NewSourceLog(id string, fetchedAt time.Time, source string, category Category, page, statusCode int, raw string) SourceLog {
	l := SourceLog{
		ID:         id,
		FetchedAt:  fetchedAt,
		Source:     source,
		Category:   category,
		Page:       page,
		StatusCode: statusCode,
	}
	if raw == "" {
		return l
	}
	runes := []rune(raw)
	if len(runes) > MaxRawPayload {
		l.Raw = string(runes[:MaxRawPayload])
		l.Truncated = true
		return l
	}
	l.Raw = raw
	return l
}

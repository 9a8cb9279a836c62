// Package merge combines an existing opportunity with an incoming candidate.
//
// Precedence rules:
//   - identifying scalars keep the existing value unless it is empty
//   - long text keeps whichever side is longer after trimming
//   - list fields are an ordered union, existing items first
//   - merged sources are unique by (source, source_id)
//   - the result is never archived
package merge

import (
	"strings"
	"time"

	"pace/ingest-service/internal/model"
)

// Merge returns the merged record. The existing ID is kept and FetchedAt is
// set to now.
func Merge(existing, incoming model.Opportunity, now time.Time) model.Opportunity {
	out := existing

	out.Title = firstNonEmpty(existing.Title, incoming.Title)
	out.Company = firstNonEmpty(existing.Company, incoming.Company)
	out.Type = model.Category(firstNonEmpty(string(existing.Type), string(incoming.Type)))
	out.Location = firstNonEmpty(existing.Location, incoming.Location)
	out.Country = firstNonEmpty(existing.Country, incoming.Country)
	out.ApplyLink = firstNonEmpty(existing.ApplyLink, incoming.ApplyLink)
	out.Source = firstNonEmpty(existing.Source, incoming.Source)
	out.Status = firstNonEmpty(existing.Status, incoming.Status)
	out.Deadline = firstTime(existing.Deadline, incoming.Deadline)
	out.PostedAt = firstTime(existing.PostedAt, incoming.PostedAt)

	out.Description = longer(existing.Description, incoming.Description)
	out.FullDescription = longer(existing.FullDescription, incoming.FullDescription)

	out.EducationLevel = UniqueStrings(existing.EducationLevel, incoming.EducationLevel)
	out.Domain = UniqueStrings(existing.Domain, incoming.Domain)
	out.SkillsRequired = UniqueStrings(existing.SkillsRequired, incoming.SkillsRequired)
	out.Tags = UniqueStrings(existing.Tags, incoming.Tags)

	out.MergedSources = UniqueSources(existing.MergedSources, incoming.MergedSources)

	out.Archived = false
	out.FetchedAt = now
	return out
}

// UniqueStrings concatenates lists, dropping empty values and any value whose
// trimmed form was already seen. First-seen order is kept.
func UniqueStrings(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, item := range list {
			key := strings.TrimSpace(item)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// UniqueSources concatenates source lists, keeping the first entry for each
// (source, source_id) pair.
func UniqueSources(lists ...[]model.SourceRef) []model.SourceRef {
	seen := make(map[model.SourceRef]struct{})
	out := make([]model.SourceRef, 0)
	for _, list := range lists {
		for _, ref := range list {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}

func firstNonEmpty(existing, incoming string) string {
	if strings.TrimSpace(existing) != "" {
		return existing
	}
	return incoming
}

func firstTime(existing, incoming *time.Time) *time.Time {
	if existing != nil && !existing.IsZero() {
		return existing
	}
	return incoming
}

// longer returns the trimmed longer text; ties keep existing.
func longer(existing, incoming string) string {
	a := strings.TrimSpace(existing)
	b := strings.TrimSpace(incoming)
	if len(b) > len(a) {
		return b
	}
	return a
}

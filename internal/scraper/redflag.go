// Package scraper fetches opportunity listings, extracts candidates and
// drives them through the ingest gateway.
package scraper

import (
	"strings"

	"pace/ingest-service/internal/model"
)

// RedFlags holds lower-cased exclusion terms. A candidate whose title,
// company or description mentions any term is discarded before matching.
type RedFlags []string

// NewRedFlags drops blank terms and lower-cases the rest.
func NewRedFlags(terms []string) RedFlags {
	out := make(RedFlags, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Match returns the first term found in the candidate, or "".
func (r RedFlags) Match(opp model.Opportunity) string {
	if len(r) == 0 {
		return ""
	}
	combined := strings.ToLower(opp.Title + " " + opp.Company + " " + opp.Description + " " + opp.FullDescription)
	for _, flag := range r {
		if strings.Contains(combined, flag) {
			return flag
		}
	}
	return ""
}

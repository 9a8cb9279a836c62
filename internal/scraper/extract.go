package scraper

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pace/ingest-service/internal/model"
	"pace/ingest-service/internal/normalize"
)

const (
	// SourceName tags records fetched from the Unstop feed.
	SourceName = "unstop"
	// BaseHost is joined with relative links and slugs.
	BaseHost = "https://unstop.com"

	summaryLength = 300
)

// Keywords maps each category to the feed's "opportunity" query value,
// which is also the path segment of its public listing pages.
var Keywords = map[model.Category]string{
	model.CategoryHackathon:   "hackathons",
	model.CategoryCompetition: "competitions",
	model.CategoryInternship:  "internships",
	model.CategoryJob:         "jobs",
	model.CategoryScholarship: "scholarships",
}

// Fallback key chains, tried in order. Dotted keys descend into nested objects.
var (
	titleKeys    = []string{"title", "name", "opportunity_title", "opportunity_name"}
	orgKeys      = []string{"organization_name", "organizationName", "org_name", "company_name", "organization.name", "organization.title", "organisation.name"}
	urlKeys      = []string{"url", "link", "public_url", "share_url", "seo_link", "seo_url"}
	slugKeys     = []string{"slug", "opportunity_slug", "opportunity_url_slug"}
	deadlineKeys = []string{"submissionDeadline", "deadline", "end_date", "endDate", "application_end_date", "regnRequirements.end_regn_dt"}
	postedKeys   = []string{"start_date", "startDate", "created_at", "updated_at"}
	idKeys       = []string{"id", "opportunity_id"}
	locationKeys = []string{"location", "city", "address_with_country_logo.city"}
	countryKeys  = []string{"country", "address_with_country_logo.country.name", "address_with_country_logo.country"}
	summaryKeys  = []string{"short_description", "tagline", "seo_details", "summary"}
	detailKeys   = []string{"details", "description", "full_description"}
	skillKeys    = []string{"required_skills", "skills", "skills_required"}
	tagKeys      = []string{"tags", "filters"}
	domainKeys   = []string{"domain", "domains", "categories"}
	eduKeys      = []string{"education_level", "eligibility", "eligible_for"}
	listNameKeys = []string{"skill_name", "skill", "name", "title"}
)

// Extract maps one raw feed item to a candidate. ok is false when the item
// has no resolvable title or link; such items cannot be ingested.
func Extract(item map[string]any, category model.Category) (model.Opportunity, bool) {
	title := strings.TrimSpace(firstString(item, titleKeys...))
	link := resolveLink(firstString(item, urlKeys...), firstString(item, slugKeys...), Keywords[category])
	if title == "" || link == "" {
		return model.Opportunity{}, false
	}

	deadline := parseTime(lookupFirst(item, deadlineKeys...))
	status := model.StatusUnknown
	if deadline != nil {
		status = model.StatusOpen
	}

	full := htmlToText(firstString(item, detailKeys...))
	summary := htmlToText(firstString(item, summaryKeys...))
	if summary == "" {
		summary = truncateWords(full, summaryLength)
	}

	opp := model.Opportunity{
		ID:              normalize.ID(link),
		Title:           title,
		Company:         strings.TrimSpace(firstString(item, orgKeys...)),
		Type:            category,
		Location:        strings.TrimSpace(firstString(item, locationKeys...)),
		Country:         strings.TrimSpace(firstString(item, countryKeys...)),
		ApplyLink:       normalize.URL(link),
		Deadline:        deadline,
		PostedAt:        parseTime(lookupFirst(item, postedKeys...)),
		Source:          SourceName,
		Status:          status,
		Description:     summary,
		FullDescription: full,
		SkillsRequired:  firstList(item, skillKeys...),
		Tags:            firstList(item, tagKeys...),
		Domain:          firstList(item, domainKeys...),
		EducationLevel:  firstList(item, eduKeys...),
	}
	if sourceID := firstString(item, idKeys...); sourceID != "" {
		opp.MergedSources = []model.SourceRef{{Source: SourceName, SourceID: sourceID}}
	}
	return opp, true
}

// resolveLink uses absolute URLs as-is, joins relative paths to BaseHost and
// assembles slug-only items from the category path.
func resolveLink(rawURL, slug, keyword string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL != "" {
		if strings.HasPrefix(rawURL, "http") {
			return rawURL
		}
		if !strings.HasPrefix(rawURL, "/") {
			rawURL = "/" + rawURL
		}
		return BaseHost + rawURL
	}
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return ""
	}
	return BaseHost + "/" + keyword + "/" + slug
}

// lookup resolves a dotted key against nested objects.
func lookup(item map[string]any, key string) (any, bool) {
	var cur any = item
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// lookupFirst returns the first value that renders to a non-empty string.
func lookupFirst(item map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := lookup(item, k); ok && stringify(v) != "" {
			return v
		}
	}
	return nil
}

func firstString(item map[string]any, keys ...string) string {
	return stringify(lookupFirst(item, keys...))
}

// firstList returns the first key holding a non-empty list. Items may be
// strings or objects carrying a name-like field.
func firstList(item map[string]any, keys ...string) []string {
	for _, k := range keys {
		v, ok := lookup(item, k)
		if !ok {
			continue
		}
		var out []string
		switch list := v.(type) {
		case []any:
			for _, el := range list {
				if s := listItemName(el); s != "" {
					out = append(out, s)
				}
			}
		case string:
			for _, part := range strings.Split(list, ",") {
				if s := strings.TrimSpace(part); s != "" {
					out = append(out, s)
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func listItemName(el any) string {
	if obj, ok := el.(map[string]any); ok {
		for _, k := range listNameKeys {
			if s := strings.TrimSpace(stringify(obj[k])); s != "" {
				return s
			}
		}
		return ""
	}
	return strings.TrimSpace(stringify(el))
}

// stringify renders scalar JSON values; objects and lists render empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006",
}

// parseTime accepts the date layouts seen in the feed and unix timestamps in
// seconds or milliseconds. Unparseable values are treated as absent.
func parseTime(v any) *time.Time {
	var t time.Time
	switch raw := v.(type) {
	case float64:
		if raw <= 0 {
			return nil
		}
		if raw > 1e12 {
			t = time.UnixMilli(int64(raw)).UTC()
		} else {
			t = time.Unix(int64(raw), 0).UTC()
		}
		return &t
	case string:
		raw = strings.TrimSpace(raw)
		for _, layout := range timeLayouts {
			parsed, err := time.Parse(layout, raw)
			if err == nil {
				t = parsed.UTC()
				return &t
			}
		}
	}
	return nil
}

// htmlToText renders an HTML fragment to whitespace-collapsed text.
func htmlToText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.Contains(fragment, "<") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	doc.Find("p, div, br, li, tr, h1, h2, h3, h4, h5, h6").AppendHtml(" ")
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}

// truncateWords cuts s to at most n runes on a word boundary.
func truncateWords(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

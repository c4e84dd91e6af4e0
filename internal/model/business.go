package model

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdeaLength bounds the free-text business idea.
const MaxIdeaLength = 5000

// BusinessInput describes the idea a competitor analysis is run for.
type BusinessInput struct {
	IdeaDescription string `json:"idea_description"`
	TargetMarket    string `json:"target_market,omitempty"`
	BusinessModel   string `json:"business_model,omitempty"`
	GeographicFocus string `json:"geographic_focus,omitempty"`
	Industry        string `json:"industry,omitempty"`
}

// Validate checks the input invariants.
func (b BusinessInput) Validate() error {
	idea := strings.TrimSpace(b.IdeaDescription)
	if idea == "" {
		return eris.New("model: idea_description is required")
	}
	if len([]rune(idea)) > MaxIdeaLength {
		return eris.Errorf("model: idea_description exceeds %d characters", MaxIdeaLength)
	}
	return nil
}

// CompetitorCategory classifies how a competitor relates to the idea.
type CompetitorCategory string

const (
	CategoryDirect     CompetitorCategory = "direct"
	CategoryIndirect   CompetitorCategory = "indirect"
	CategorySubstitute CompetitorCategory = "substitute"
)

// ParseCategory maps free text onto a category. Unknown values are direct.
func ParseCategory(s string) CompetitorCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indirect":
		return CategoryIndirect
	case "substitute", "alternative", "alternatives":
		return CategorySubstitute
	default:
		return CategoryDirect
	}
}

// CompetitorBasic is a discovered competitor before enrichment.
type CompetitorBasic struct {
	Name        string             `json:"name"`
	Domain      string             `json:"domain,omitempty"`
	Description string             `json:"description,omitempty"`
	Category    CompetitorCategory `json:"category"`
}

// Key returns the deduplication key: the normalized domain, or the folded
// name when no domain is known.
func (c CompetitorBasic) Key() string {
	if d := NormalizeDomain(c.Domain); d != "" {
		return d
	}
	return "name:" + FoldName(c.Name)
}

// Merge fills empty fields of c from other. Existing values are kept.
func (c CompetitorBasic) Merge(other CompetitorBasic) CompetitorBasic {
	if c.Name == "" {
		c.Name = other.Name
	}
	if c.Domain == "" {
		c.Domain = other.Domain
	}
	if len(other.Description) > len(c.Description) {
		c.Description = other.Description
	}
	if c.Category == "" {
		c.Category = other.Category
	}
	return c
}

// NormalizeDomain lowercases a domain and strips scheme, credentials, port,
// path, query and a leading "www.".
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimSuffix(u.Hostname(), ".")
	host = strings.TrimPrefix(host, "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// FoldName lowercases a company name, strips diacritics and drops anything
// that is not a letter or digit.
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package model

import (
	"strings"
	"time"
)

// CanvasSection names a business model canvas section.
type CanvasSection string

const (
	SectionCustomerSegments      CanvasSection = "customer_segments"
	SectionValuePropositions     CanvasSection = "value_propositions"
	SectionChannels              CanvasSection = "channels"
	SectionCustomerRelationships CanvasSection = "customer_relationships"
	SectionRevenueStreams        CanvasSection = "revenue_streams"
	SectionKeyResources          CanvasSection = "key_resources"
	SectionKeyActivities         CanvasSection = "key_activities"
	SectionKeyPartnerships       CanvasSection = "key_partnerships"
	SectionCostStructure         CanvasSection = "cost_structure"
	SectionFinancialProjections  CanvasSection = "financial_projections"
	SectionMarketSizing          CanvasSection = "market_sizing"
)

// CanvasSections is the canvas schema.
var CanvasSections = []CanvasSection{
	SectionCustomerSegments, SectionValuePropositions, SectionChannels,
	SectionCustomerRelationships, SectionRevenueStreams, SectionKeyResources,
	SectionKeyActivities, SectionKeyPartnerships, SectionCostStructure,
	SectionFinancialProjections, SectionMarketSizing,
}

// Valid reports whether s is part of the canvas schema.
func (s CanvasSection) Valid() bool {
	for _, v := range CanvasSections {
		if v == s {
			return true
		}
	}
	return false
}

// ChangeRef points an applied change back at its evidence.
type ChangeRef struct {
	InsightID string `json:"insight_id"`
	Quote     string `json:"quote"`
}

// CanvasItem is one list entry of a canvas field.
type CanvasItem struct {
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     *ChangeRef `json:"source,omitempty"`
}

// CanvasField holds a refinable text plus an additive item list.
type CanvasField struct {
	Text       string       `json:"text,omitempty"`
	Confidence float64      `json:"confidence"`
	Validated  bool         `json:"validated,omitempty"`
	Source     *ChangeRef   `json:"source,omitempty"`
	Items      []CanvasItem `json:"items,omitempty"`
}

// HasItem reports whether an item with the same normalized value exists.
func (f CanvasField) HasItem(value string) bool {
	key := normalizeValue(value)
	for _, it := range f.Items {
		if normalizeValue(it.Value) == key {
			return true
		}
	}
	return false
}

// Canvas is a versioned business model canvas snapshot. Snapshots are
// treated as values: updates produce a new snapshot via Clone.
type Canvas struct {
	IdeaID    string                                   `json:"idea_id"`
	Version   int                                      `json:"version"`
	Sections  map[CanvasSection]map[string]CanvasField `json:"sections"`
	UpdatedAt time.Time                                `json:"updated_at"`
}

// NewCanvas returns an empty version-0 canvas.
func NewCanvas(ideaID string) Canvas {
	return Canvas{IdeaID: ideaID, Sections: map[CanvasSection]map[string]CanvasField{}}
}

// Field returns the field, and whether it exists.
func (c Canvas) Field(section CanvasSection, field string) (CanvasField, bool) {
	fields, ok := c.Sections[section]
	if !ok {
		return CanvasField{}, false
	}
	f, ok := fields[field]
	return f, ok
}

// SetField stores f. c must be a clone the caller owns.
func (c *Canvas) SetField(section CanvasSection, field string, f CanvasField) {
	if c.Sections == nil {
		c.Sections = map[CanvasSection]map[string]CanvasField{}
	}
	if c.Sections[section] == nil {
		c.Sections[section] = map[string]CanvasField{}
	}
	c.Sections[section][field] = f
}

// Clone deep-copies the snapshot.
func (c Canvas) Clone() Canvas {
	out := Canvas{IdeaID: c.IdeaID, Version: c.Version, UpdatedAt: c.UpdatedAt,
		Sections: make(map[CanvasSection]map[string]CanvasField, len(c.Sections))}
	for s, fields := range c.Sections {
		cp := make(map[string]CanvasField, len(fields))
		for name, f := range fields {
			f.Items = append([]CanvasItem(nil), f.Items...)
			cp[name] = f
		}
		out.Sections[s] = cp
	}
	return out
}

// AppliedChange is the audit record of one canvas mutation.
type AppliedChange struct {
	ID        string        `json:"id"`
	IdeaID    string        `json:"idea_id"`
	Version   int           `json:"version"`
	Section   CanvasSection `json:"section"`
	Field     string        `json:"field"`
	Mode      DeltaMode     `json:"mode"`
	OldValue  string        `json:"old_value,omitempty"`
	NewValue  string        `json:"new_value"`
	Rule      string        `json:"rule"`
	Sources   []ChangeRef   `json:"sources"`
	AppliedAt time.Time     `json:"applied_at"`
}

// CanvasDelta is a batch of changes produced against BaseVersion.
type CanvasDelta struct {
	IdeaID      string          `json:"idea_id"`
	BaseVersion int             `json:"base_version"`
	Changes     []AppliedChange `json:"changes"`
}

func normalizeValue(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

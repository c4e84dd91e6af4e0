package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Acme.com/pricing?x=1", "acme.com"},
		{"acme.com", "acme.com"},
		{"HTTP://WWW.ACME.COM", "acme.com"},
		{"www.acme.io/", "acme.io"},
		{"acme.com:8443/path", "acme.com"},
		{"  app.hr-tool.co.uk  ", "app.hr-tool.co.uk"},
		{"", ""},
		{"not a domain", ""},
		{"localhost", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDomain(tt.in))
		})
	}
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "cafeconnect", FoldName("Café Connect"))
	assert.Equal(t, "bamboohr", FoldName("BambooHR"))
	assert.Equal(t, "bamboohrinc", FoldName("Bamboo-HR, Inc."))
}

func TestCompetitorBasicKey(t *testing.T) {
	a := CompetitorBasic{Name: "Gusto", Domain: "https://www.gusto.com"}
	b := CompetitorBasic{Name: "Gusto Inc", Domain: "gusto.com/"}
	assert.Equal(t, a.Key(), b.Key())

	noDomain := CompetitorBasic{Name: "Rippling"}
	assert.Equal(t, "name:rippling", noDomain.Key())
}

func TestCompetitorBasicMerge(t *testing.T) {
	a := CompetitorBasic{Name: "Gusto", Category: CategoryDirect}
	b := CompetitorBasic{Name: "Gusto Inc", Domain: "gusto.com", Description: "Payroll and HR for small businesses"}

	merged := a.Merge(b)
	assert.Equal(t, "Gusto", merged.Name)
	assert.Equal(t, "gusto.com", merged.Domain)
	assert.Equal(t, CategoryDirect, merged.Category)
	assert.Equal(t, b.Description, merged.Description)
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryDirect, ParseCategory("Direct"))
	assert.Equal(t, CategoryIndirect, ParseCategory(" indirect "))
	assert.Equal(t, CategorySubstitute, ParseCategory("alternative"))
	assert.Equal(t, CategoryDirect, ParseCategory("unknown"))
}

func TestBusinessInputValidate(t *testing.T) {
	assert.NoError(t, BusinessInput{IdeaDescription: "AI HR tool for SMBs"}.Validate())
	assert.Error(t, BusinessInput{IdeaDescription: "   "}.Validate())
	assert.Error(t, BusinessInput{IdeaDescription: strings.Repeat("x", MaxIdeaLength+1)}.Validate())
	assert.NoError(t, BusinessInput{IdeaDescription: strings.Repeat("x", MaxIdeaLength)}.Validate())
}

func TestRunStatusTransitions(t *testing.T) {
	order := []RunStatus{
		RunStatusPending, RunStatusDiscovering, RunStatusEnriching,
		RunStatusAnalyzing, RunStatusReporting, RunStatusCompleted,
	}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanTransition(order[i+1]), "%s -> %s", order[i], order[i+1])
		assert.True(t, order[i].CanTransition(RunStatusFailed), "%s -> failed", order[i])
	}

	assert.False(t, RunStatusPending.CanTransition(RunStatusAnalyzing))
	assert.False(t, RunStatusEnriching.CanTransition(RunStatusDiscovering))
	assert.False(t, RunStatusCompleted.CanTransition(RunStatusFailed))
	assert.False(t, RunStatusFailed.CanTransition(RunStatusPending))
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusReporting.Terminal())
}

func TestNewCompetitorAnalysisAllMissing(t *testing.T) {
	ca := NewCompetitorAnalysis(CompetitorBasic{Name: "Acme"})
	require.Len(t, ca.Provenance, len(AllFacets))
	for _, f := range AllFacets {
		assert.Equal(t, ProvenanceMissing, ca.Provenance[f])
		assert.False(t, ca.HasFacet(f))
	}

	price := 12.0
	ca.Pricing = &PricingData{MonthlyPrice: &price}
	assert.True(t, ca.HasFacet(FacetPricing))
	ca.Sentiment = &MarketSentiment{}
	assert.False(t, ca.HasFacet(FacetSentiment))
}

func validInsight() ExtractedInsight {
	return ExtractedInsight{
		ID:              "ins-1",
		InterviewID:     "int-1",
		Type:            InsightPainPoint,
		Content:         "Payroll takes two days a month",
		Quote:           "we lose two full days every month on payroll",
		ConfidenceScore: 0.82,
		ImpactScore:     7.5,
		Tags:            []string{"payroll", "time"},
		BMCImpact: &BMCImpact{
			Sections: []CanvasSection{SectionValuePropositions},
			Deltas: []FieldDelta{{
				Section: SectionValuePropositions, Field: "pain_relievers",
				Value: "Automated payroll runs", Mode: DeltaAdd,
			}},
		},
	}
}

func TestExtractedInsightValidate(t *testing.T) {
	require.NoError(t, validInsight().Validate())

	bad := validInsight()
	bad.ConfidenceScore = 1.2
	assert.Error(t, bad.Validate())

	bad = validInsight()
	bad.ImpactScore = -1
	assert.Error(t, bad.Validate())

	bad = validInsight()
	bad.Type = "rumor"
	assert.Error(t, bad.Validate())

	bad = validInsight()
	bad.BMCImpact.Sections = []CanvasSection{"moonshots"}
	assert.Error(t, bad.Validate())

	bad = validInsight()
	bad.BMCImpact.Sections = nil
	assert.Error(t, bad.Validate())
}

func TestExtractedInsightSupersede(t *testing.T) {
	orig := validInsight()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	next := orig.Supersede("ins-2", at, func(i *ExtractedInsight) {
		i.Content = "Payroll takes three days a month"
		i.Tags[0] = "payroll-cost"
		i.BMCImpact.Deltas[0].Value = "One-click payroll"
	})

	assert.Equal(t, "ins-2", next.ID)
	assert.Equal(t, "ins-1", next.SupersedesID)
	assert.Equal(t, at, next.CreatedAt)
	// Original untouched.
	assert.Equal(t, "Payroll takes two days a month", orig.Content)
	assert.Equal(t, "payroll", orig.Tags[0])
	assert.Equal(t, "Automated payroll runs", orig.BMCImpact.Deltas[0].Value)
}

func TestCanvasCloneIsIndependent(t *testing.T) {
	c := NewCanvas("idea-1")
	c.SetField(SectionChannels, "primary", CanvasField{
		Text:  "Direct sales",
		Items: []CanvasItem{{Value: "LinkedIn outreach"}},
	})

	cp := c.Clone()
	f, ok := cp.Field(SectionChannels, "primary")
	require.True(t, ok)
	f.Items[0].Value = "changed"
	f.Text = "Partners"
	cp.SetField(SectionChannels, "primary", f)
	cp.SetField(SectionCostStructure, "fixed", CanvasField{Text: "Salaries"})

	orig, _ := c.Field(SectionChannels, "primary")
	assert.Equal(t, "Direct sales", orig.Text)
	assert.Equal(t, "LinkedIn outreach", orig.Items[0].Value)
	_, ok = c.Field(SectionCostStructure, "fixed")
	assert.False(t, ok)
}

func TestCanvasFieldHasItem(t *testing.T) {
	f := CanvasField{Items: []CanvasItem{{Value: "Small  Businesses"}}}
	assert.True(t, f.HasItem("small businesses"))
	assert.False(t, f.HasItem("enterprises"))
}

func TestTokenUsageAdd(t *testing.T) {
	var u TokenUsage
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 5, Calls: 1})
	u.Add(TokenUsage{InputTokens: 3, CacheReadTokens: 7, Calls: 1})
	assert.Equal(t, TokenUsage{InputTokens: 13, OutputTokens: 5, CacheReadTokens: 7, Calls: 2}, u)
}

package model

// Facet is one of the enrichment dimensions of a competitor.
type Facet string

const (
	FacetFinancial Facet = "financial"
	FacetPricing   Facet = "pricing"
	FacetSentiment Facet = "sentiment"
)

// AllFacets lists every facet in a stable order.
var AllFacets = []Facet{FacetFinancial, FacetPricing, FacetSentiment}

// Provenance records where a facet's data came from.
type Provenance string

const (
	ProvenanceScraped     Provenance = "scraped"
	ProvenanceAIEstimated Provenance = "ai_estimated"
	ProvenanceMissing     Provenance = "missing"
)

// FinancialData is the financial facet. Every field is independently optional.
type FinancialData struct {
	FundingTotal     string   `json:"funding_total,omitempty"`
	LastFundingRound string   `json:"last_funding_round,omitempty"`
	EmployeeCount    *int     `json:"employee_count,omitempty"`
	Valuation        string   `json:"valuation,omitempty"`
	FoundedYear      *int     `json:"founded_year,omitempty"`
	Location         string   `json:"location,omitempty"`
	Industries       []string `json:"industries,omitempty"`
}

// Empty reports whether no field is set.
func (f *FinancialData) Empty() bool {
	return f == nil || (f.FundingTotal == "" && f.LastFundingRound == "" && f.EmployeeCount == nil &&
		f.Valuation == "" && f.FoundedYear == nil && f.Location == "" && len(f.Industries) == 0)
}

// PricingData is the pricing facet.
type PricingData struct {
	MonthlyPrice   *float64 `json:"monthly_price,omitempty"`
	PricingModel   string   `json:"pricing_model,omitempty"`
	FreeTier       *bool    `json:"free_tier,omitempty"`
	PricingDetails []string `json:"pricing_details,omitempty"`
}

// Empty reports whether no field is set.
func (p *PricingData) Empty() bool {
	return p == nil || (p.MonthlyPrice == nil && p.PricingModel == "" && p.FreeTier == nil && len(p.PricingDetails) == 0)
}

// MarketSentiment is the sentiment facet. OverallScore is in [-1, 1].
type MarketSentiment struct {
	OverallScore    *float64 `json:"overall_score,omitempty"`
	RedditMentions  int      `json:"reddit_mentions"`
	TwitterMentions int      `json:"twitter_mentions"`
	ReviewScore     *float64 `json:"review_score,omitempty"`
	KeyComplaints   []string `json:"key_complaints,omitempty"`
	KeyPraises      []string `json:"key_praises,omitempty"`
}

// Empty reports whether no field is set.
func (m *MarketSentiment) Empty() bool {
	return m == nil || (m.OverallScore == nil && m.RedditMentions == 0 && m.TwitterMentions == 0 &&
		m.ReviewScore == nil && len(m.KeyComplaints) == 0 && len(m.KeyPraises) == 0)
}

// SWOT holds the per-competitor strategic assessment.
type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// CompetitorAnalysis is an enriched competitor.
type CompetitorAnalysis struct {
	Basic      CompetitorBasic      `json:"basic_info"`
	Financial  *FinancialData       `json:"financial_data,omitempty"`
	Pricing    *PricingData         `json:"pricing_data,omitempty"`
	Sentiment  *MarketSentiment     `json:"market_sentiment,omitempty"`
	Provenance map[Facet]Provenance `json:"provenance"`
	Sources    map[Facet]string     `json:"sources,omitempty"`
	SWOT

	EvidenceScore float64        `json:"evidence_score"`
	EvidenceTier  ConfidenceTier `json:"evidence_tier,omitempty"`
	SWOTFallback  bool           `json:"swot_fallback,omitempty"`
}

// NewCompetitorAnalysis returns an analysis with every facet marked missing.
func NewCompetitorAnalysis(basic CompetitorBasic) CompetitorAnalysis {
	prov := make(map[Facet]Provenance, len(AllFacets))
	for _, f := range AllFacets {
		prov[f] = ProvenanceMissing
	}
	return CompetitorAnalysis{Basic: basic, Provenance: prov, Sources: map[Facet]string{}}
}

// HasFacet reports whether the facet holds data.
func (c *CompetitorAnalysis) HasFacet(f Facet) bool {
	switch f {
	case FacetFinancial:
		return !c.Financial.Empty()
	case FacetPricing:
		return !c.Pricing.Empty()
	case FacetSentiment:
		return !c.Sentiment.Empty()
	}
	return false
}

// GapCategory is one of the fixed market gap labels.
type GapCategory string

const (
	GapPricing     GapCategory = "PRICING GAPS"
	GapFeature     GapCategory = "FEATURE GAPS"
	GapSegment     GapCategory = "SEGMENT GAPS"
	GapPositioning GapCategory = "POSITIONING GAPS"
)

// GapCategories lists the gap labels in report order.
var GapCategories = []GapCategory{GapPricing, GapFeature, GapSegment, GapPositioning}

// MarketGap is an underserved area found across competitors.
type MarketGap struct {
	Category          GapCategory `json:"category"`
	Description       string      `json:"description"`
	OpportunityScore  float64     `json:"opportunity_score"`
	RecommendedAction string      `json:"recommended_action"`
	Competitors       []string    `json:"competitors,omitempty"`
}

// CompetitorReport is the final output of an analysis run.
type CompetitorReport struct {
	RunID                      string               `json:"run_id"`
	BusinessIdea               string               `json:"business_idea"`
	Input                      BusinessInput        `json:"input"`
	Status                     RunStatus            `json:"status"`
	TotalCompetitors           int                  `json:"total_competitors"`
	Competitors                []CompetitorAnalysis `json:"competitors"`
	MarketGaps                 []MarketGap          `json:"market_gaps"`
	KeyInsights                []string             `json:"key_insights"`
	PositioningRecommendations []string             `json:"positioning_recommendations"`
	Warnings                   []string             `json:"warnings,omitempty"`
	StageTimings               []StageTiming        `json:"stage_timings,omitempty"`
	Usage                      TokenUsage           `json:"usage"`
	EstimatedCostUSD           float64              `json:"estimated_cost_usd"`
	ExecutionTime              float64              `json:"execution_time"`
}

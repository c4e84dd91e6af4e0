package scoring

import (
	"math"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// CompetitorFactors derives factor scores for an enriched competitor:
//
//   - frequency: share of facets holding data
//   - intensity: strength of the market signal (sentiment magnitude or mention volume)
//   - specificity: how much the SWOT says, saturating at eight entries
//   - consistency: agreement between measured sentiment and the SWOT balance
//   - evidence: share of facets backed by a scraped source
//   - recency: 1 for scraped data, 0.5 when only estimates exist
func CompetitorFactors(ca model.CompetitorAnalysis) model.ScoreFactors {
	var present, scraped, estimated int
	for _, f := range model.AllFacets {
		if !ca.HasFacet(f) {
			continue
		}
		present++
		switch ca.Provenance[f] {
		case model.ProvenanceScraped:
			scraped++
		case model.ProvenanceAIEstimated:
			estimated++
		}
	}
	n := float64(len(model.AllFacets))

	var f model.ScoreFactors
	f.Frequency = float64(present) / n
	f.Evidence = float64(scraped) / n

	if s := ca.Sentiment; s != nil {
		if s.OverallScore != nil {
			f.Intensity = math.Abs(*s.OverallScore)
		}
		f.Intensity = math.Max(f.Intensity, math.Min(1, float64(s.RedditMentions+s.TwitterMentions)/10))
	}

	items := len(ca.Strengths) + len(ca.Weaknesses) + len(ca.Opportunities) + len(ca.Threats)
	f.Specificity = math.Min(1, float64(items)/8)

	f.Consistency = 0.5
	if s := ca.Sentiment; s != nil && s.OverallScore != nil && len(ca.Strengths)+len(ca.Weaknesses) > 0 {
		balance := float64(len(ca.Strengths)-len(ca.Weaknesses)) / float64(len(ca.Strengths)+len(ca.Weaknesses))
		f.Consistency = 1 - math.Abs(clampSigned(*s.OverallScore)-balance)/2
	}

	switch {
	case scraped > 0:
		f.Recency = 1
	case estimated > 0:
		f.Recency = 0.5
	}
	return f
}

// ScoreCompetitor sets EvidenceScore and EvidenceTier on ca.
func (e *Engine) ScoreCompetitor(ca *model.CompetitorAnalysis) {
	ca.EvidenceScore = round3(e.Score(CompetitorFactors(*ca)))
	ca.EvidenceTier = Tier(ca.EvidenceScore)
}

func clampSigned(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

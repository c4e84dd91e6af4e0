// Package source holds the adapters that look a competitor up in one
// external source each. Adapters are independent of each other; the
// enrichment aggregator runs them concurrently and merges their records
// by priority.
package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// ErrNotFound means the source has nothing on the competitor. It is not a
// failure and is never logged as one.
var ErrNotFound = eris.New("source: not found")

// Adapter looks up one competitor in one source.
type Adapter interface {
	Name() string
	// Priority orders adapters when merging; lower wins.
	Priority() int
	// Facets lists what the adapter can fill.
	Facets() []model.Facet
	Identify(ctx context.Context, basic model.CompetitorBasic) (*Record, error)
}

// Budgeted is implemented by adapters whose requests go through the shared
// fetcher. MaxRequests is the most requests one Identify call issues.
type Budgeted interface {
	MaxRequests() int
}

// RequestsPerCompetitor is the worst-case request count of one competitor
// lookup across adapters.
func RequestsPerCompetitor(adapters []Adapter) int {
	n := 0
	for _, a := range adapters {
		if b, ok := a.(Budgeted); ok {
			n += b.MaxRequests()
		}
	}
	return n
}

// Record is an adapter's partial view of a competitor.
type Record struct {
	Financial *model.FinancialData
	Pricing   *model.PricingData
	Sentiment *model.MarketSentiment
	// Evidence maps a facet to the URL it was read from.
	Evidence map[model.Facet]string
}

// Has reports whether the record holds data for f.
func (r *Record) Has(f model.Facet) bool {
	if r == nil {
		return false
	}
	switch f {
	case model.FacetFinancial:
		return !r.Financial.Empty()
	case model.FacetPricing:
		return !r.Pricing.Empty()
	case model.FacetSentiment:
		return !r.Sentiment.Empty()
	}
	return false
}

// Empty reports whether no facet holds data.
func (r *Record) Empty() bool {
	for _, f := range model.AllFacets {
		if r.Has(f) {
			return false
		}
	}
	return true
}

func (r *Record) cite(f model.Facet, url string) {
	if r.Evidence == nil {
		r.Evidence = map[model.Facet]string{}
	}
	r.Evidence[f] = url
}

// Package enrich turns discovered competitors into CompetitorAnalysis
// values by querying every source adapter concurrently and merging their
// records facet by facet.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/source"
)

// EstimateSource is recorded as the source of AI-estimated facets.
const EstimateSource = "llm_estimate"

// Estimator fills facets no adapter could.
type Estimator interface {
	Estimate(ctx context.Context, known model.CompetitorAnalysis, missing []model.Facet) (*source.Record, error)
}

// Options tunes an Aggregator.
type Options struct {
	// MaxConcurrent bounds competitors enriched at once. Default 5.
	MaxConcurrent int
	// EstimateTimeout bounds one estimation call. Zero means no extra limit.
	EstimateTimeout time.Duration
}

// Aggregator merges adapter records into analyses.
type Aggregator struct {
	adapters  []source.Adapter
	estimator Estimator
	opts      Options
}

// New creates an Aggregator. Adapters are merged in priority order;
// estimator may be nil.
func New(adapters []source.Adapter, estimator Estimator, opts Options) *Aggregator {
	sorted := append([]source.Adapter(nil), adapters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	return &Aggregator{adapters: sorted, estimator: estimator, opts: opts}
}

// EnrichAll enriches every competitor and returns them in input order,
// together with warnings for degraded lookups. It returns once every
// competitor is done.
func (a *Aggregator) EnrichAll(ctx context.Context, basics []model.CompetitorBasic) ([]model.CompetitorAnalysis, []string) {
	out := make([]model.CompetitorAnalysis, len(basics))
	warnings := make([][]string, len(basics))

	var g errgroup.Group
	g.SetLimit(a.opts.MaxConcurrent)
	for i, b := range basics {
		g.Go(func() error {
			out[i], warnings[i] = a.Enrich(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	var flat []string
	for _, w := range warnings {
		flat = append(flat, w...)
	}
	return out, flat
}

type adapterResult struct {
	rec *source.Record
	err error
}

// Enrich runs every adapter for one competitor and merges the records.
// Every facet ends up scraped, ai_estimated or missing.
func (a *Aggregator) Enrich(ctx context.Context, basic model.CompetitorBasic) (model.CompetitorAnalysis, []string) {
	log := zap.L().With(zap.String("competitor", basic.Name))
	results := make([]adapterResult, len(a.adapters))

	var wg sync.WaitGroup
	for i, ad := range a.adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = identify(ctx, ad, basic)
		}()
	}
	wg.Wait()

	ca := model.NewCompetitorAnalysis(basic)
	var warnings []string
	for i, ad := range a.adapters {
		res := results[i]
		switch {
		case errors.Is(res.err, source.ErrNotFound):
			log.Debug("enrich: adapter has no data", zap.String("adapter", ad.Name()))
			continue
		case res.err != nil:
			log.Warn("enrich: adapter failed", zap.String("adapter", ad.Name()), zap.Error(res.err))
			warnings = append(warnings, fmt.Sprintf("%s: %s lookup failed", basic.Name, ad.Name()))
			continue
		}
		merge(&ca, res.rec, ad.Name())
	}

	missing := missingFacets(&ca)
	if len(missing) > 0 && a.estimator != nil {
		if err := a.estimate(ctx, &ca, missing); err != nil {
			log.Warn("enrich: estimation failed", zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("%s: estimation failed, %d facet(s) missing", basic.Name, len(missing)))
		}
	}
	return ca, warnings
}

func (a *Aggregator) estimate(ctx context.Context, ca *model.CompetitorAnalysis, missing []model.Facet) error {
	if a.opts.EstimateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.EstimateTimeout)
		defer cancel()
	}
	rec, err := a.estimator.Estimate(ctx, *ca, missing)
	if err != nil {
		return err
	}
	for _, f := range missing {
		if !rec.Has(f) {
			continue
		}
		setFacet(ca, rec, f)
		ca.Provenance[f] = model.ProvenanceAIEstimated
		ca.Sources[f] = EstimateSource
	}
	return nil
}

// identify calls the adapter, turning a panic into an error.
func identify(ctx context.Context, ad source.Adapter, basic model.CompetitorBasic) (res adapterResult) {
	defer func() {
		if r := recover(); r != nil {
			res = adapterResult{err: eris.Errorf("enrich: adapter %s panicked: %v", ad.Name(), r)}
		}
	}()
	rec, err := ad.Identify(ctx, basic)
	if err == nil && rec == nil {
		err = source.ErrNotFound
	}
	return adapterResult{rec: rec, err: err}
}

// merge fills facets that are still empty. Adapters arrive in priority
// order, so the first record to provide a facet wins it.
func merge(ca *model.CompetitorAnalysis, rec *source.Record, adapter string) {
	for _, f := range model.AllFacets {
		if ca.HasFacet(f) || !rec.Has(f) {
			continue
		}
		setFacet(ca, rec, f)
		ca.Provenance[f] = model.ProvenanceScraped
		ca.Sources[f] = adapter
	}
}

func setFacet(ca *model.CompetitorAnalysis, rec *source.Record, f model.Facet) {
	switch f {
	case model.FacetFinancial:
		ca.Financial = rec.Financial
	case model.FacetPricing:
		ca.Pricing = rec.Pricing
	case model.FacetSentiment:
		ca.Sentiment = rec.Sentiment
	}
}

func missingFacets(ca *model.CompetitorAnalysis) []model.Facet {
	var out []model.Facet
	for _, f := range model.AllFacets {
		if !ca.HasFacet(f) {
			out = append(out, f)
		}
	}
	return out
}

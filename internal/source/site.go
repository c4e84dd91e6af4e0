package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/chain"
	"github.com/cluvo-ai/cluvo/internal/fetcher"
	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/pkg/jina"
)

// PageFetcher is the slice of the rate-limited fetcher the adapters use.
type PageFetcher interface {
	FetchMany(ctx context.Context, reqs []fetcher.Request) []fetcher.Result
}

// sitePaths are fetched for every competitor, pricing pages first.
var sitePaths = []string{"/pricing", "/plans", "/about", "/"}

// SiteAdapter reads the competitor's own website for pricing and company
// facts. Pages that come back blocked or without prices fall back to the
// Jina reader, which renders script-heavy pricing pages.
type SiteAdapter struct {
	fetch  PageFetcher
	reader jina.Client
}

// NewSiteAdapter creates a SiteAdapter. reader may be nil.
func NewSiteAdapter(fetch PageFetcher, reader jina.Client) *SiteAdapter {
	return &SiteAdapter{fetch: fetch, reader: reader}
}

func (s *SiteAdapter) Name() string  { return "company_site" }
func (s *SiteAdapter) Priority() int { return 2 }

// MaxRequests is one fetch per site page plus the reader fallback.
func (s *SiteAdapter) MaxRequests() int {
	if s.reader == nil {
		return len(sitePaths)
	}
	return len(sitePaths) + 1
}
func (s *SiteAdapter) Facets() []model.Facet {
	return []model.Facet{model.FacetPricing, model.FacetFinancial}
}

type sitePage struct {
	url  string
	text string
}

// Identify implements Adapter.
func (s *SiteAdapter) Identify(ctx context.Context, basic model.CompetitorBasic) (*Record, error) {
	domain := model.NormalizeDomain(basic.Domain)
	if domain == "" {
		return nil, ErrNotFound
	}

	reqs := make([]fetcher.Request, len(sitePaths))
	for i, p := range sitePaths {
		reqs[i] = fetcher.Request{URL: "https://" + domain + p}
	}
	results := s.fetch.FetchMany(ctx, reqs)

	var pages []sitePage
	var failures int
	for _, res := range results {
		if !res.OK() {
			failures++
			zap.L().Debug("source: site page not fetched",
				zap.String("url", res.URL),
				zap.String("outcome", res.Outcome.String()),
				zap.Int("status", res.StatusCode),
			)
			continue
		}
		if bt := DetectBlock(res.Body); bt != BlockNone {
			zap.L().Debug("source: site page blocked", zap.String("url", res.URL), zap.String("block", string(bt)))
			continue
		}
		pages = append(pages, sitePage{url: res.URL, text: VisibleText(res.Body)})
	}

	rec := &Record{}
	pricingURL := "https://" + domain + "/pricing"
	links := []chain.Link[pricingHit]{
		{Name: "site", Run: func(context.Context) (pricingHit, error) {
			for _, p := range pages {
				if pd := ParsePricing(p.text); pd != nil && pd.MonthlyPrice != nil {
					return pricingHit{data: pd, url: p.url}, nil
				}
			}
			return pricingHit{}, eris.New("source: no prices on site pages")
		}},
		{Name: "reader", Run: func(ctx context.Context) (pricingHit, error) {
			if s.reader == nil {
				return pricingHit{}, chain.ErrSkip
			}
			resp, err := s.reader.Read(ctx, pricingURL)
			if err != nil {
				return pricingHit{}, err
			}
			if pd := ParsePricing(resp.Data.Content); pd != nil {
				return pricingHit{data: pd, url: pricingURL}, nil
			}
			return pricingHit{}, eris.New("source: no prices in rendered page")
		}},
		{Name: "site_partial", Run: func(context.Context) (pricingHit, error) {
			for _, p := range pages {
				if pd := ParsePricing(p.text); pd != nil && (pd.FreeTier != nil || pd.PricingModel != "") {
					return pricingHit{data: pd, url: p.url}, nil
				}
			}
			return pricingHit{}, chain.ErrSkip
		}},
	}
	if hit, trace, err := chain.First(ctx, links...); err == nil {
		rec.Pricing = hit.data
		rec.cite(model.FacetPricing, hit.url)
		zap.L().Debug("source: pricing found", zap.String("domain", domain), zap.String("via", trace.Winner()))
	}

	for _, p := range pages {
		if !isCompanyPage(p.url) {
			continue
		}
		if fd := ParseFinancial(p.text); fd != nil {
			rec.Financial = fd
			rec.cite(model.FacetFinancial, p.url)
			break
		}
	}

	if rec.Empty() {
		if len(pages) == 0 && failures == len(results) && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "source: site fetch")
		}
		return nil, ErrNotFound
	}
	return rec, nil
}

type pricingHit struct {
	data *model.PricingData
	url  string
}

func isCompanyPage(u string) bool {
	return strings.HasSuffix(u, "/about") || strings.HasSuffix(u, "/")
}

package source

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/internal/resilience"
	"github.com/cluvo-ai/cluvo/pkg/crunchbase"
)

// FinancialAdapter looks competitors up in a keyed company-data provider.
// Lookups go through a circuit breaker so a provider outage costs one
// timeout per run rather than one per competitor.
type FinancialAdapter struct {
	client  crunchbase.Client
	breaker *resilience.Breaker
	retry   resilience.RetryPolicy
}

// NewFinancialAdapter creates the adapter. A nil client disables it.
func NewFinancialAdapter(client crunchbase.Client) *FinancialAdapter {
	return &FinancialAdapter{
		client: client,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:             "crunchbase",
			FailureThreshold: 3,
			Cooldown:         time.Minute,
			Trips: func(err error) bool {
				return err != nil && !errors.Is(err, crunchbase.ErrNotFound)
			},
		}),
		retry: resilience.RetryPolicy{
			MaxAttempts: 2,
			Backoff:     resilience.Backoff{Initial: 500 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
			Retryable:   isRetryableProviderErr,
			OnRetry:     resilience.LogRetry("source", "crunchbase lookup"),
		},
	}
}

func (a *FinancialAdapter) Name() string          { return "financial_provider" }
func (a *FinancialAdapter) Priority() int         { return 1 }
func (a *FinancialAdapter) Facets() []model.Facet { return []model.Facet{model.FacetFinancial} }

// MaxRequests counts the domain lookup and the name fallback.
func (a *FinancialAdapter) MaxRequests() int {
	if a.client == nil {
		return 0
	}
	return 2
}

// Identify implements Adapter.
func (a *FinancialAdapter) Identify(ctx context.Context, basic model.CompetitorBasic) (*Record, error) {
	if a.client == nil {
		return nil, ErrNotFound
	}
	domain := model.NormalizeDomain(basic.Domain)

	company, err := resilience.Call(ctx, a.breaker, func(ctx context.Context) (*crunchbase.Company, error) {
		return resilience.RetryValue(ctx, a.retry, func(ctx context.Context) (*crunchbase.Company, error) {
			return a.client.Lookup(ctx, domain, basic.Name)
		})
	})
	switch {
	case errors.Is(err, crunchbase.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, eris.Wrapf(err, "source: financial lookup for %s", basic.Name)
	}

	fd := &model.FinancialData{
		FundingTotal:     company.Funding,
		LastFundingRound: company.LastRound,
		Location:         company.Location,
		Industries:       company.Industries,
	}
	if n, ok := company.EmployeeEstimate(); ok {
		fd.EmployeeCount = &n
	}
	if y, ok := company.Founded(); ok {
		fd.FoundedYear = &y
	}
	if fd.Empty() {
		return nil, ErrNotFound
	}

	rec := &Record{Financial: fd}
	rec.cite(model.FacetFinancial, "crunchbase:"+crunchbase.Slug(basic.Name))
	return rec, nil
}

func isRetryableProviderErr(err error) bool {
	var se *crunchbase.StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientStatus(se.StatusCode)
	}
	return resilience.IsTransient(err)
}

package source

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cluvo-ai/cluvo/internal/model"
	"github.com/cluvo-ai/cluvo/pkg/jina"
)

// SocialAdapter reads public discussion of a competitor through web search:
// review and forum mentions for sentiment, and the LinkedIn company page
// for head count.
type SocialAdapter struct {
	search jina.Client
	// MaxResults caps each search.
	MaxResults int
}

// NewSocialAdapter creates the adapter. A nil client disables it.
func NewSocialAdapter(search jina.Client) *SocialAdapter {
	return &SocialAdapter{search: search, MaxResults: 10}
}

func (a *SocialAdapter) Name() string  { return "social_presence" }
func (a *SocialAdapter) Priority() int { return 3 }

// MaxRequests counts the review and LinkedIn searches.
func (a *SocialAdapter) MaxRequests() int {
	if a.search == nil {
		return 0
	}
	return 2
}
func (a *SocialAdapter) Facets() []model.Facet {
	return []model.Facet{model.FacetSentiment, model.FacetFinancial}
}

var (
	linkedInEmployeesRe = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})*|\d+)\+?\s+employees\b`)
	ratingRe            = regexp.MustCompile(`(?i)\b([1-5](?:\.\d)?)\s*(?:/\s*5|out of 5|stars?)`)
)

// Identify implements Adapter.
func (a *SocialAdapter) Identify(ctx context.Context, basic model.CompetitorBasic) (*Record, error) {
	if a.search == nil || strings.TrimSpace(basic.Name) == "" {
		return nil, ErrNotFound
	}

	var reviews, linkedin *jina.SearchResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reviews, err = a.search.Search(gctx, basic.Name+" reviews complaints reddit twitter", jina.WithNumResults(a.MaxResults))
		return err
	})
	g.Go(func() error {
		var err error
		linkedin, err = a.search.Search(gctx, basic.Name+" company", jina.WithSiteFilter("linkedin.com"), jina.WithNumResults(3))
		if err != nil {
			zap.L().Debug("source: linkedin search failed", zap.String("competitor", basic.Name), zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "source: social search for %s", basic.Name)
	}

	rec := &Record{}
	if s := sentimentFrom(basic.Name, reviews); s != nil {
		rec.Sentiment = s
		rec.cite(model.FacetSentiment, "search:"+basic.Name+" reviews")
	}
	if fd, u := employeesFrom(linkedin); fd != nil {
		rec.Financial = fd
		rec.cite(model.FacetFinancial, u)
	}
	if rec.Empty() {
		return nil, ErrNotFound
	}
	return rec, nil
}

func sentimentFrom(name string, resp *jina.SearchResponse) *model.MarketSentiment {
	if resp == nil || len(resp.Data) == 0 {
		return nil
	}
	var (
		s       model.MarketSentiment
		sum     float64
		scored  int
		ratings []float64
	)
	folded := strings.ToLower(name)
	for _, r := range resp.Data {
		host := hostOf(r.URL)
		switch {
		case strings.HasSuffix(host, "reddit.com"):
			s.RedditMentions++
		case strings.HasSuffix(host, "twitter.com"), host == "x.com":
			s.TwitterMentions++
		}

		text := r.Title + ". " + r.Description
		if !strings.Contains(strings.ToLower(text+r.Content), folded) {
			continue
		}
		if m := ratingRe.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				ratings = append(ratings, v)
			}
		}
		pol, ok := Polarity(text)
		if !ok {
			continue
		}
		sum += pol
		scored++
		snippet := strings.TrimSpace(r.Description)
		if snippet == "" {
			snippet = strings.TrimSpace(r.Title)
		}
		if len(snippet) > 160 {
			snippet = snippet[:160]
		}
		switch {
		case pol > 0.2 && len(s.KeyPraises) < 3:
			s.KeyPraises = append(s.KeyPraises, snippet)
		case pol < -0.2 && len(s.KeyComplaints) < 3:
			s.KeyComplaints = append(s.KeyComplaints, snippet)
		}
	}
	if scored > 0 {
		v := round2(sum / float64(scored))
		s.OverallScore = &v
	}
	if len(ratings) > 0 {
		var total float64
		for _, r := range ratings {
			total += r
		}
		v := round2(total / float64(len(ratings)))
		s.ReviewScore = &v
	}
	if s.Empty() {
		return nil
	}
	return &s
}

func employeesFrom(resp *jina.SearchResponse) (*model.FinancialData, string) {
	if resp == nil {
		return nil, ""
	}
	for _, r := range resp.Data {
		if !strings.Contains(r.URL, "linkedin.com/company/") {
			continue
		}
		m := linkedInEmployeesRe.FindStringSubmatch(r.Description + " " + r.Content)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil || n <= 0 {
			continue
		}
		return &model.FinancialData{EmployeeCount: &n}, r.URL
	}
	return nil, ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cluvo-ai/cluvo/internal/llm"
	"github.com/cluvo-ai/cluvo/internal/model"
)

type scripted struct {
	replies []string
	errs    []error
	prompts []llm.Prompt
}

func (s *scripted) Complete(_ context.Context, p llm.Prompt, _ *llm.Schema) (json.RawMessage, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, p)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.replies) {
		return json.RawMessage(s.replies[i]), nil
	}
	return nil, errors.New("unexpected call")
}

func list(names ...string) string {
	type c struct {
		Name     string `json:"name"`
		Domain   string `json:"domain"`
		Category string `json:"category"`
	}
	var out struct {
		Competitors []c `json:"competitors"`
	}
	for _, n := range names {
		domain := ""
		if n != "" {
			domain = strings.ToLower(strings.ReplaceAll(n, " ", "")) + ".com"
		}
		out.Competitors = append(out.Competitors, c{Name: n, Domain: domain, Category: "direct"})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

var input = model.BusinessInput{IdeaDescription: "AI HR tool for SMBs", TargetMarket: "US small businesses"}

func TestDiscover_PrimaryEnough(t *testing.T) {
	primary := &scripted{replies: []string{list("Gusto", "Rippling", "BambooHR", "Gusto")}}
	search := &scripted{}

	res := New(DefaultStrategies(primary, search), Options{}).Discover(context.Background(), input)

	require.Len(t, res.Competitors, 3)
	assert.Equal(t, "gusto.com", res.Competitors[0].Domain)
	assert.Empty(t, search.prompts)
	require.Len(t, res.Strategies, 1)
	assert.Equal(t, StrategyOutcome{Name: "primary", Found: 4, Added: 3, Duration: res.Strategies[0].Duration}, res.Strategies[0])

	require.Len(t, primary.prompts, 1)
	p := primary.prompts[0]
	assert.Equal(t, "discovery", p.Stage)
	assert.Contains(t, p.User, "AI HR tool for SMBs")
	assert.Contains(t, p.User, "Target market: US small businesses")
	assert.NotContains(t, p.User, "Industry:")
}

func TestDiscover_FallbackTopsUp(t *testing.T) {
	primary := &scripted{replies: []string{list("Gusto", "Rippling")}}
	search := &scripted{replies: []string{list("Rippling", "Deel", "Justworks")}}

	res := New(DefaultStrategies(primary, search), Options{MinCompetitors: 3, MaxCompetitors: 5}).
		Discover(context.Background(), input)

	names := make([]string, len(res.Competitors))
	for i, c := range res.Competitors {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Gusto", "Rippling", "Deel", "Justworks"}, names)
	require.Len(t, res.Strategies, 2)
	assert.NotEmpty(t, res.Strategies[0].Err)
	assert.Equal(t, 2, res.Strategies[1].Added)
	assert.Contains(t, search.prompts[0].User, "instead of this product")
}

func TestDiscover_PrimaryFailsFallbackTruncated(t *testing.T) {
	quota := &llm.Error{Kind: llm.KindQuota, Provider: "anthropic", Err: errors.New("429")}
	primary := &scripted{errs: []error{quota, quota}}
	search := &scripted{replies: []string{list("A One", "B Two", "C Three", "D Four", "E Five", "F Six")}}

	res := New(DefaultStrategies(primary, search), Options{}).Discover(context.Background(), input)

	assert.Len(t, res.Competitors, 5)
	assert.Equal(t, "A One", res.Competitors[0].Name)
	assert.Contains(t, res.Strategies[0].Err, "quota")
	assert.Len(t, primary.prompts, 2)
}

func TestDiscover_AllFailReturnsLargestSet(t *testing.T) {
	primary := &scripted{replies: []string{list("Gusto")}}
	search := &scripted{errs: []error{errors.New("boom")}}

	res := New(DefaultStrategies(primary, search), Options{}).Discover(context.Background(), input)
	require.Len(t, res.Competitors, 1)
	assert.Equal(t, "Gusto", res.Competitors[0].Name)

	none := &scripted{errs: []error{errors.New("down"), errors.New("down")}}
	res = New(DefaultStrategies(none, nil), Options{}).Discover(context.Background(), input)
	assert.Empty(t, res.Competitors)
	assert.Len(t, res.Strategies, 2)
}

func TestDiscover_FallbackReusesPrimaryWithoutSearch(t *testing.T) {
	primary := &scripted{replies: []string{list("Gusto"), list("Deel", "Remote")}}

	res := New(DefaultStrategies(primary, nil), Options{}).Discover(context.Background(), input)

	assert.Len(t, res.Competitors, 3)
	require.Len(t, primary.prompts, 2)
	assert.Contains(t, primary.prompts[1].User, "alternative solutions")
}

func TestDiscover_NilCompleterSkipped(t *testing.T) {
	primary := &scripted{replies: []string{list("A One", "B Two", "C Three")}}
	strategies := []Strategy{
		{Name: "unconfigured", Prompt: primaryPrompt},
		{Name: "primary", Completer: primary, Prompt: primaryPrompt},
	}
	res := New(strategies, Options{}).Discover(context.Background(), input)
	assert.Len(t, res.Competitors, 3)
	assert.True(t, res.Strategies[0].Skipped)
	assert.Empty(t, res.Strategies[0].Err)
}

func TestCompetitorSet_MergesByDomainAndName(t *testing.T) {
	s := newCompetitorSet()
	assert.True(t, s.add(model.CompetitorBasic{Name: "Gusto"}))
	assert.False(t, s.add(model.CompetitorBasic{Name: "Gusto", Domain: "gusto.com", Description: "Payroll"}))
	assert.False(t, s.add(model.CompetitorBasic{Name: "Gusto Payroll", Domain: "www.gusto.com"}))
	assert.True(t, s.add(model.CompetitorBasic{Name: "Rippling", Domain: "rippling.com"}))

	got := s.list(0)
	require.Len(t, got, 2)
	assert.Equal(t, "Gusto", got[0].Name)
	assert.Equal(t, "gusto.com", got[0].Domain)
	assert.Equal(t, "Payroll", got[0].Description)
	assert.Len(t, s.list(1), 1)
}

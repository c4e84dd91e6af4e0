package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleText(t *testing.T) {
	page := `<html><head><title>Acme</title><style>.a{}</style></head>
<body><script>var price = "$999/mo";</script>
<h1>Pricing</h1><p>Starter <b>$12</b> /mo</p><ul><li>Unlimited &amp; fast</li></ul>
<noscript>Enable JavaScript</noscript></body></html>`

	text := VisibleText([]byte(page))
	assert.Equal(t, "Pricing\nStarter $12 /mo\nUnlimited & fast", text)
	assert.NotContains(t, text, "999")
}

func TestDetectBlock(t *testing.T) {
	assert.Equal(t, BlockChallenge, DetectBlock([]byte("<title>Just a moment...</title>Checking your browser before accessing")))
	assert.Equal(t, BlockCaptcha, DetectBlock([]byte(`<div class="g-recaptcha"></div>`)))
	assert.Equal(t, BlockJSShell, DetectBlock([]byte(`<div id="root"></div><noscript>You need to enable JavaScript</noscript>`)))
	assert.Equal(t, BlockNone, DetectBlock([]byte("<h1>Pricing</h1>"+strings.Repeat("<p>plan</p>", 300))))
}

func TestParsePricing_PerSeatWithFreePlan(t *testing.T) {
	text := "Starter\n$12 /user/month\nPro\n$24 per user per month\nFree plan available\nContact sales for Enterprise"

	p := ParsePricing(text)
	require.NotNil(t, p)
	require.NotNil(t, p.MonthlyPrice)
	assert.Equal(t, 12.0, *p.MonthlyPrice)
	require.NotNil(t, p.FreeTier)
	assert.True(t, *p.FreeTier)
	assert.Equal(t, "per_seat", p.PricingModel)
	assert.Equal(t, []string{"$12 /user/month", "$24 per user per month"}, p.PricingDetails)
}

func TestParsePricing_AnnualAndTiers(t *testing.T) {
	text := "Basic £120 per year\nTeam £600 / year"

	p := ParsePricing(text)
	require.NotNil(t, p)
	assert.Equal(t, 10.0, *p.MonthlyPrice)
	require.NotNil(t, p.FreeTier)
	assert.False(t, *p.FreeTier)
	assert.Equal(t, "tiered", p.PricingModel)
}

func TestParsePricing_CustomOnly(t *testing.T) {
	p := ParsePricing("Enterprise plans\nContact sales for custom pricing")
	require.NotNil(t, p)
	assert.Nil(t, p.MonthlyPrice)
	assert.Equal(t, "custom", p.PricingModel)
}

func TestParsePricing_NoSignals(t *testing.T) {
	assert.Nil(t, ParsePricing("We build HR software for growing teams."))
}

func TestParseFinancial(t *testing.T) {
	f := ParseFinancial("About us\nFounded in 2014, Acme has 1,200 employees across 4 offices.")
	require.NotNil(t, f)
	assert.Equal(t, 2014, *f.FoundedYear)
	assert.Equal(t, 1200, *f.EmployeeCount)

	assert.Nil(t, ParseFinancial("We love payroll."))
}

func TestPolarity(t *testing.T) {
	v, ok := Polarity("Great product, easy to use, but expensive.")
	require.True(t, ok)
	assert.InDelta(t, 1.0/3.0, v, 0.0001)

	v, ok = Polarity("Not reliable and slow")
	require.True(t, ok)
	assert.Equal(t, -1.0, v)

	_, ok = Polarity("The company was founded in Ohio.")
	assert.False(t, ok)
}

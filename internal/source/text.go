package source

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/cluvo-ai/cluvo/internal/model"
)

// BlockType describes an anti-bot page served instead of content.
type BlockType string

const (
	BlockNone      BlockType = ""
	BlockChallenge BlockType = "challenge"
	BlockCaptcha   BlockType = "captcha"
	BlockJSShell   BlockType = "js_shell"
)

// DetectBlock looks for bot challenges and script-only shells.
func DetectBlock(body []byte) BlockType {
	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return BlockChallenge
	case strings.Contains(lower, "recaptcha"), strings.Contains(lower, "hcaptcha"), strings.Contains(lower, "captcha"):
		return BlockCaptcha
	}
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "svg": true,
	"template": true, "head": true, "iframe": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "br": true, "section": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"article": true, "header": true, "footer": true, "td": true, "th": true,
}

// VisibleText returns the text a reader would see, one block per line.
func VisibleText(page []byte) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	var (
		b     strings.Builder
		skip  int
		lines []string
	)
	flush := func() {
		line := strings.Join(strings.Fields(b.String()), " ")
		if line != "" {
			lines = append(lines, line)
		}
		b.Reset()
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return strings.Join(lines, "\n")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				skip++
			}
			if blockTags[tag] {
				flush()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				flush()
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

var (
	priceRe     = regexp.MustCompile(`(?i)([$€£])\s?(\d{1,5}(?:[.,]\d{1,2})?)\s*(?:usd|eur|gbp)?\s*(?:/|per|a)\s*(user\s*/\s*|seat\s*/\s*|user\s+per\s+|seat\s+per\s+)?(mo|month|yr|year|annum)`)
	anyPriceRe  = regexp.MustCompile(`[$€£]\s?\d`)
	freeRe      = regexp.MustCompile(`(?i)(?:\b(?:free plan|free forever|free tier|forever free|free version|start for free)\b|\$0(?:\.00)?\b)`)
	foundedRe   = regexp.MustCompile(`(?i)\b(?:founded|established|since)\s+(?:in\s+)?((?:19|20)\d{2})\b`)
	employeesRe = regexp.MustCompile(`(?i)\b(\d{1,3}(?:,\d{3})*|\d+)\+?\s+(?:employees|team members|people worldwide|staff)\b`)
)

// ParsePricing extracts pricing signals from page text. It returns nil when
// the text holds no pricing.
func ParsePricing(text string) *model.PricingData {
	var (
		monthly []float64
		details []string
		seen    = map[string]bool{}
		p       model.PricingData
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, m := range priceRe.FindAllStringSubmatch(line, -1) {
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", "."), 64)
			if err != nil {
				continue
			}
			if strings.HasPrefix(strings.ToLower(m[4]), "y") || strings.HasPrefix(strings.ToLower(m[4]), "a") {
				v /= 12
			}
			monthly = append(monthly, v)
		}
		if len(line) < 100 && isPriceLine(line) && !seen[line] && len(details) < 8 {
			seen[line] = true
			details = append(details, line)
		}
	}

	lower := strings.ToLower(text)
	if freeRe.MatchString(text) {
		t := true
		p.FreeTier = &t
	}

	sort.Float64s(monthly)
	for _, v := range monthly {
		if v > 0 {
			price := round2(v)
			p.MonthlyPrice = &price
			break
		}
	}
	if p.FreeTier == nil && len(monthly) > 0 {
		f := false
		p.FreeTier = &f
	}

	switch {
	case strings.Contains(lower, "per user") || strings.Contains(lower, "per seat") ||
		strings.Contains(lower, "/user") || strings.Contains(lower, "/seat"):
		p.PricingModel = "per_seat"
	case strings.Contains(lower, "pay as you go") || strings.Contains(lower, "usage-based") ||
		strings.Contains(lower, "per request") || strings.Contains(lower, "per transaction"):
		p.PricingModel = "usage_based"
	case len(dedupe(monthly)) >= 2:
		p.PricingModel = "tiered"
	case len(monthly) == 1:
		p.PricingModel = "subscription"
	case strings.Contains(lower, "contact sales") || strings.Contains(lower, "custom pricing") ||
		strings.Contains(lower, "request a quote"):
		p.PricingModel = "custom"
	}

	p.PricingDetails = details
	if p.Empty() {
		return nil
	}
	return &p
}

func isPriceLine(line string) bool {
	if !strings.ContainsAny(line, "0123456789") {
		return false
	}
	lower := strings.ToLower(line)
	return anyPriceRe.MatchString(line) || strings.Contains(lower, "price") ||
		strings.Contains(lower, "/mo") || strings.Contains(lower, "per month")
}

// ParseFinancial extracts the founding year and head count from page text.
func ParseFinancial(text string) *model.FinancialData {
	var f model.FinancialData
	if m := foundedRe.FindStringSubmatch(text); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil {
			f.FoundedYear = &y
		}
	}
	if m := employeesRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && n > 0 {
			f.EmployeeCount = &n
		}
	}
	if f.Empty() {
		return nil
	}
	return &f
}

func dedupe(vs []float64) []float64 {
	var out []float64
	for i, v := range vs {
		if i == 0 || v != vs[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

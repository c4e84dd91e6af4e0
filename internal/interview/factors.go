package interview

import (
	"strings"
	"unicode"
)

// mentionsForFullFrequency is how many related mentions in one interview
// saturate the frequency factor.
const mentionsForFullFrequency = 3

// related reports whether two insights share a tag.
func related(a, b rawInsight) bool {
	for _, x := range a.Tags {
		for _, y := range b.Tags {
			if x == y {
				return true
			}
		}
	}
	return false
}

// frequency counts insights of the same type that share a tag with
// insights[i], itself included.
func frequency(insights []rawInsight, i int) float64 {
	n := 1
	for j, other := range insights {
		if j != i && other.Type == insights[i].Type && related(insights[i], other) {
			n++
		}
	}
	return min(1, float64(n)/mentionsForFullFrequency)
}

// consistency is the share of tag-related insights that agree on type.
// With nothing related the factor is neutral.
func consistency(insights []rawInsight, i int) float64 {
	var relatedN, agree int
	for j, other := range insights {
		if j == i || !related(insights[i], other) {
			continue
		}
		relatedN++
		if other.Type == insights[i].Type {
			agree++
		}
	}
	if relatedN == 0 {
		return 0.5
	}
	return float64(agree) / float64(relatedN)
}

// evidence is 1 for a verbatim quote, 0.5 when most of its words appear in
// the transcript, 0 otherwise.
func evidence(quote, transcript string) float64 {
	q := words(quote)
	if len(q) == 0 {
		return 0
	}
	t := words(transcript)
	if strings.Contains(" "+strings.Join(t, " ")+" ", " "+strings.Join(q, " ")+" ") {
		return 1
	}
	vocab := make(map[string]bool, len(t))
	for _, w := range t {
		vocab[w] = true
	}
	hits := 0
	for _, w := range q {
		if vocab[w] {
			hits++
		}
	}
	if float64(hits)/float64(len(q)) >= 0.8 {
		return 0.5
	}
	return 0
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

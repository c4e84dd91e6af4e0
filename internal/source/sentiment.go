package source

import (
	"strings"
	"unicode"
)

var positiveWords = map[string]bool{
	"love": true, "great": true, "excellent": true, "easy": true, "intuitive": true,
	"recommend": true, "best": true, "amazing": true, "helpful": true, "reliable": true,
	"fast": true, "simple": true, "affordable": true, "powerful": true, "awesome": true,
	"solid": true, "smooth": true, "responsive": true, "good": true, "happy": true,
}

var negativeWords = map[string]bool{
	"hate": true, "terrible": true, "awful": true, "slow": true, "buggy": true,
	"expensive": true, "confusing": true, "worst": true, "poor": true, "clunky": true,
	"overpriced": true, "frustrating": true, "broken": true, "difficult": true, "bad": true,
	"unreliable": true, "lacking": true, "missing": true, "outdated": true, "disappointing": true,
}

var negators = map[string]bool{"not": true, "no": true, "never": true, "isn't": true, "don't": true, "doesn't": true}

// Polarity scores text in [-1, 1] with a word lexicon. The second result
// is false when the text carries no sentiment words.
func Polarity(text string) (float64, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	var pos, neg int
	for i, w := range words {
		sign := 0
		switch {
		case positiveWords[w]:
			sign = 1
		case negativeWords[w]:
			sign = -1
		default:
			continue
		}
		if i > 0 && negators[words[i-1]] {
			sign = -sign
		}
		if sign > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0, false
	}
	return float64(pos-neg) / float64(pos+neg), true
}

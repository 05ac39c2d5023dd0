package memory

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RelevanceKeywords is how many keywords GetRelevantContext extracts.
const RelevanceKeywords = 20

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by is are was were
		be been being have has had do does did will would should could can may might must shall`) {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords returns up to n of the most frequent content words.
// Tokens are whitespace separated, lowercased and stripped of anything that
// is not a letter or digit; tokens of three runes or fewer and stop words are
// dropped. Ties keep first-occurrence order, so output is stable run to run.
func ExtractKeywords(content string, n int) []string {
	if n <= 0 {
		return []string{}
	}

	counts := make(map[string]int)
	var order []string
	for _, word := range strings.Fields(strings.ToLower(content)) {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, word)
		if utf8.RuneCountInString(clean) <= 3 {
			continue
		}
		if _, stop := stopWords[clean]; stop {
			continue
		}
		if counts[clean] == 0 {
			order = append(order, clean)
		}
		counts[clean]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// wordSet returns the distinct whitespace-separated words of s.
func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// similar reports whether the word overlap of a and b, relative to the
// smaller set, exceeds 0.7. Empty sets are never similar.
func similar(a, b string) bool {
	wa, wb := wordSet(a), wordSet(b)
	smaller := len(wa)
	if len(wb) < smaller {
		smaller = len(wb)
	}
	if smaller == 0 {
		return false
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	return float64(common)/float64(smaller) > 0.7
}

// TitleCase upper-cases the first letter of each word and lower-cases the
// rest, collapsing runs of whitespace.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

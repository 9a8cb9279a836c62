package match

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// TokenSortRatio scores two strings 0..100 regardless of word order.
// Both inputs are case folded, stripped of punctuation and split into
// tokens; the sorted token strings are compared with an indel ratio.
// Two strings that are empty after processing score 0.
func TokenSortRatio(a, b string) float64 {
	return Ratio(tokenSort(a), tokenSort(b))
}

// Ratio is the normalized indel similarity of a and b:
// 100 * 2*LCS(a, b) / (len(a) + len(b)), measured in runes.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return 100 * float64(2*lcs(ra, rb)) / float64(total)
}

func tokenSort(s string) string {
	s = folder.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// lcs returns the length of the longest common subsequence.
func lcs(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

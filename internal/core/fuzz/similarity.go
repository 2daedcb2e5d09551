// Package fuzz provides the string similarity primitives used by entity
// matching. All functions are pure, case-folded and deterministic: identical
// inputs always yield identical scores, so matching tie-breaks stay stable.
package fuzz

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Ratio scores the whole-string similarity of a and b on a 0-100 scale,
// based on edit distance over the case-folded inputs.
func Ratio(a, b string) int {
	return ratio(normalize(a), normalize(b))
}

// PartialRatio scores the best alignment of the shorter string against any
// equal-length window of the longer one. "Acme" vs "Acme Corporation SARL"
// scores 100.
func PartialRatio(a, b string) int {
	na, nb := normalize(a), normalize(b)
	shorter, longer := []rune(na), []rune(nb)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return ratio(na, nb)
	}
	best := 0
	for start := 0; start+len(shorter) <= len(longer); start++ {
		window := string(longer[start : start+len(shorter)])
		if score := ratio(string(shorter), window); score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares the two strings with their tokens sorted, making
// the score order-insensitive: "Dupont Jean" matches "Jean Dupont" at 100.
func TokenSortRatio(a, b string) int {
	return ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares token sets, discounting tokens shared by both sides.
// It is the most permissive of the ratios and suits address comparison where
// one side carries extra tokens.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)

	var common, onlyA, onlyB []string
	for _, tok := range ta {
		if containsToken(tb, tok) {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for _, tok := range tb {
		if !containsToken(ta, tok) {
			onlyB = append(onlyB, tok)
		}
	}

	base := strings.Join(common, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(base, combinedA)
	if s := ratio(base, combinedB); s > best {
		best = s
	}
	if s := ratio(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

// NormalizePhone strips separator characters and a leading international
// prefix ("00" or "+") so that "+33 6 12 34 56 78" and "0033612345678"
// compare equal.
func NormalizePhone(s string) string {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	out := digits.String()
	if strings.HasPrefix(strings.TrimSpace(s), "+") {
		return out
	}
	if strings.HasPrefix(out, "00") {
		return out[2:]
	}
	return out
}

func ratio(a, b string) int {
	if a == b {
		return 100
	}
	lenSum := len([]rune(a)) + len([]rune(b))
	if lenSum == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	// Round half up so near-identical strings do not lose a point to
	// integer truncation.
	score := ((lenSum-dist)*200 + lenSum) / (2 * lenSum)
	if score < 0 {
		return 0
	}
	return score
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sortedTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func containsToken(tokens []string, tok string) bool {
	for _, t := range tokens {
		if t == tok {
			return true
		}
	}
	return false
}

package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// sizeRank orders the named apparel sizes. One-size markers rank after all
// other named sizes but still ahead of the numeric tier.
var sizeRank = map[string]int{
	"XXXS": 0, "XXS": 1, "XS": 2, "S": 3, "M": 4, "L": 5,
	"XL": 6, "XXL": 7, "XXXL": 8, "XXXXL": 9,
	"OS": 999, "ONE SIZE": 999, "O/S": 999,
}

var numericSize = regexp.MustCompile(`(\d+\.?\d*)`)

// CleanSize normalizes one raw variant size label. Purely alphabetic labels
// are uppercased as-is; labels containing digits are reduced to their first
// embedded numeric substring ("US WAIST 32" -> "32"). Anything else is
// uppercased unchanged so markers like "O/S" survive.
func CleanSize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	alphabetic := true
	for _, r := range trimmed {
		if !unicode.IsLetter(r) {
			alphabetic = false
			break
		}
	}
	if alphabetic {
		return strings.ToUpper(trimmed)
	}
	if m := numericSize.FindString(trimmed); m != "" {
		return m
	}
	return strings.ToUpper(trimmed)
}

// sizeKey is the canonical sort key for one size label. Tiers: named sizes
// first, then numeric sizes, then anything unparseable in lexical order.
type sizeKey struct {
	tier  int
	rank  float64
	zeros int
	lex   string
}

func keyFor(size string) sizeKey {
	upper := strings.ToUpper(strings.TrimSpace(size))
	if rank, ok := sizeRank[upper]; ok {
		return sizeKey{tier: 0, rank: float64(rank)}
	}
	if m := numericSize.FindString(size); m != "" {
		num, err := strconv.ParseFloat(m, 64)
		if err == nil {
			// Leading-zero variants order by zero count descending, so
			// "000" < "00" < "0" < "1".
			zeros := 0
			if num > 0 || !strings.Contains(m, ".") {
				zeros = len(m) - len(strings.TrimLeft(m, "0"))
			}
			return sizeKey{tier: 1, rank: num, zeros: -zeros, lex: size}
		}
	}
	return sizeKey{tier: 2, lex: size}
}

func (a sizeKey) less(b sizeKey) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.zeros != b.zeros {
		return a.zeros < b.zeros
	}
	return a.lex < b.lex
}

// SortSizes deduplicates and orders size labels by the canonical rule.
// The input slice is not modified.
func SortSizes(sizes []string) []string {
	seen := make(map[string]struct{}, len(sizes))
	out := make([]string, 0, len(sizes))
	for _, s := range sizes {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return keyFor(out[i]).less(keyFor(out[j]))
	})
	return out
}

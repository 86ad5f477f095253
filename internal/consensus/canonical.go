package consensus

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/specharvest/internal/model"
	"github.com/sells-group/specharvest/internal/rules"
)

// Canonical is the comparable form of a raw field value: a display string
// and a formatting-insensitive clustering key.
type Canonical struct {
	Display string
	Key     string
}

// Known returns false for empty or sentinel values that must never cluster.
func (c Canonical) Known() bool {
	return c.Display != "" && c.Display != model.Unknown
}

const listDelimiter = ","

var (
	firstNumberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	caseFolder    = cases.Fold()
)

// Canonicalize normalizes a raw (field, value) pair into its display string
// and clustering key. Pure; unparsable inputs map to the "unk" sentinel.
func Canonicalize(field string, rule rules.FieldRule, raw string) Canonical {
	var display string
	switch {
	case field == "polling_rate":
		display = canonicalPollingRate(raw)
	case rule.IsNumeric():
		display = canonicalNumber(raw)
	case rule.IsList():
		display = canonicalList(raw)
	default:
		display = normalizeWhitespace(raw)
	}
	if display == "" {
		display = model.Unknown
	}
	return Canonical{Display: display, Key: ClusterKey(display)}
}

// ClusterKey folds case and strips spaces so formatting differences never
// prevent two sources from agreeing.
func ClusterKey(display string) string {
	folded := caseFolder.String(display)
	return strings.ReplaceAll(folded, " ", "")
}

// canonicalPollingRate parses a delimited multi-rate string like
// "125 / 500 / 1000Hz", rounds each rate to an integer, de-duplicates and
// sorts descending.
func canonicalPollingRate(raw string) string {
	tokens := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ',' || r == '/' || r == ';' || r == ' ' || r == '\t'
	})
	seen := make(map[int]bool)
	var rates []int
	for _, tok := range tokens {
		tok = strings.TrimSuffix(tok, "hz")
		if tok == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
		if err != nil {
			continue
		}
		n := int(math.Round(f))
		if !seen[n] {
			seen[n] = true
			rates = append(rates, n)
		}
	}
	if len(rates) == 0 {
		return ""
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rates)))
	parts := make([]string, len(rates))
	for i, n := range rates {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "/")
}

// canonicalNumber extracts the first valid number, rendering integers
// without decimals and everything else to two decimal places.
func canonicalNumber(raw string) string {
	f, ok := ParseNumber(raw)
	if !ok {
		return ""
	}
	return FormatNumber(f)
}

// ParseNumber extracts the first number from free-form text, tolerating
// thousands separators ("16,000 CPI" parses as 16000).
func ParseNumber(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(raw, ",", "")
	m := firstNumberRe.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// FormatNumber renders integers without decimals and non-integers to two
// decimal places.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// canonicalList trims items, drops empties and re-joins with a uniform
// separator.
func canonicalList(raw string) string {
	var items []string
	for _, part := range strings.Split(raw, listDelimiter) {
		part = normalizeWhitespace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return strings.Join(items, listDelimiter+" ")
}

// SplitList splits a canonical list display back into its items.
func SplitList(display string) []string {
	var items []string
	for _, part := range strings.Split(display, listDelimiter) {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package units extracts a structured length/unit pair from the free-text
// race-distance strings providers publish ("50K", "13.1 Miler", "24hrs").
package units

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit is a canonical distance or duration unit. The set is closed and
// matches the pre-seeded distance_units taxonomy in the store.
type Unit string

const (
	Mile      Unit = "mile"
	Kilometer Unit = "km"
	Hour      Unit = "hour"
)

// Distance is the parsed form of a free-text distance string.
type Distance struct {
	Length float64 `json:"length"`
	Unit   Unit    `json:"unit"`
}

var (
	// Decimal numbers: digits with an optional fractional part, or a
	// leading-dot fraction.
	numberRe = regexp.MustCompile(`(?:\d+(?:\.\d*)?|\.\d+)`)
	// Maximal runs of non-digit characters.
	nonNumberRe = regexp.MustCompile(`\D+`)
)

// unitAliases maps the provider spellings we have seen in the wild onto
// canonical units. Lookups are against lowercased, trimmed tokens.
var unitAliases = map[string]Unit{
	"miler": Mile, "mile": Mile, "m": Mile, "mi": Mile, "miles": Mile,
	"m run": Mile, "mile run": Mile,
	"k": Kilometer, "km": Kilometer, "kms": Kilometer,
	"kilometers": Kilometer, "kilometer": Kilometer,
	"k run": Kilometer, "km run": Kilometer,
	"hour": Hour, "hrs": Hour, "hr": Hour,
	"hr run": Hour, "hour run": Hour, "hour night run": Hour, "hour day run": Hour,
}

// Canonical maps a raw unit token onto its canonical Unit. The token is
// lowercased and trimmed before lookup. Unknown tokens return false.
func Canonical(token string) (Unit, bool) {
	u, ok := unitAliases[strings.TrimSpace(strings.ToLower(token))]
	return u, ok
}

// Extract parses a free-text distance string into a Distance. It returns
// false for anything it cannot recognize: empty input, number-only or
// unit-only strings, and unknown unit tokens. Callers are expected to skip
// and log unrecognized strings, never to treat them as errors.
//
// The scan takes the last numeric substring as the length and the last
// non-numeric substring as the unit token, which tolerates prefixes like
// "Day 1 50K" while staying predictable on the common single-value case.
func Extract(text string) (Distance, bool) {
	text = strings.ToLower(strings.TrimSpace(text))

	// Idioms that carry no explicit number.
	switch text {
	case "marathon":
		return Distance{Length: 26.2, Unit: Mile}, true
	case "half marathon", "1/2 marathon":
		return Distance{Length: 13.1, Unit: Mile}, true
	case "mile", "beer mile":
		return Distance{Length: 1.0, Unit: Mile}, true
	case "kilometer", "beer kilometer":
		return Distance{Length: 1.0, Unit: Kilometer}, true
	}

	numbers := numberRe.FindAllString(text, -1)
	tokens := nonNumberRe.FindAllString(text, -1)

	var rawUnit string
	for _, tok := range tokens {
		if tok == "." || tok == "" {
			// Decimal points between digit groups are not unit tokens.
			continue
		}
		rawUnit = tok
	}
	if rawUnit == "" {
		return Distance{}, false
	}
	if len(numbers) == 0 {
		return Distance{}, false
	}

	length, err := strconv.ParseFloat(numbers[len(numbers)-1], 64)
	if err != nil {
		return Distance{}, false
	}

	unit, ok := Canonical(rawUnit)
	if !ok {
		return Distance{}, false
	}
	return Distance{Length: length, Unit: unit}, true
}

package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// monthNames maps folded month names and common abbreviations of the
// supported languages to month numbers.
var monthNames = map[string]int{
	// en
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7, "aug": 8,
	"sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
	// es
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10,
	"noviembre": 11, "diciembre": 12,
	// fr
	"janvier": 1, "fevrier": 2, "mars": 3, "avril": 4, "mai": 5, "juin": 6,
	"juillet": 7, "aout": 8, "septembre": 9, "octobre": 10, "novembre": 11, "decembre": 12,
	// de
	"januar": 1, "februar": 2, "marz": 3, "juni": 6, "juli": 7,
	"oktober": 10, "dezember": 12,
	// it
	"gennaio": 1, "febbraio": 2, "aprile": 4, "maggio": 5, "giugno": 6,
	"luglio": 7, "settembre": 9, "ottobre": 10, "dicembre": 12,
	// pt
	"janeiro": 1, "fevereiro": 2, "marco": 3, "maio": 5, "junho": 6, "julho": 7,
	"setembro": 9, "outubro": 10, "dezembro": 12,
}

var (
	monthPattern = monthAlternation()

	isoDateRe = regexp.MustCompile(`\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`)

	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`)

	// 12 March 2030, 12. März 2030, 12 de marzo de 2030
	textDateRe = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th|er|o)?\.?\s+(?:de\s+)?(` +
		monthPattern + `)\.?,?\s+(?:de\s+)?(\d{4})\b`)

	// March 12, 2030
	textDateUSRe = regexp.MustCompile(`\b(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)

	dateSeparatorRe = regexp.MustCompile(`[-/.\s]+`)
)

func monthAlternation() string {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, name)
	}
	// longest first so "marzo" wins over "mar"
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}

// NormalizeDate converts a recognized date to YYYY-MM-DD. A leading four-digit
// group is read as year-month-day. Otherwise the first component is the day
// when it is greater than 12 and the month when it is not, so ambiguous dates
// such as 03/04/2030 resolve month-first. Two-digit years are placed in the
// 2000s. Input that does not parse or fails the range check (year 1900-2100,
// month 1-12, day 1-31) is returned unchanged.
func NormalizeDate(raw string) string {
	if value, ok := normalizeDate(raw); ok {
		return value
	}
	return raw
}

func normalizeDate(raw string) (string, bool) {
	s := fold(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}

	var year, month, day int
	switch {
	case textDateRe.MatchString(s):
		m := textDateRe.FindStringSubmatch(s)
		day, _ = strconv.Atoi(m[1])
		month = monthNames[m[2]]
		year, _ = strconv.Atoi(m[3])
	case textDateUSRe.MatchString(s):
		m := textDateUSRe.FindStringSubmatch(s)
		month = monthNames[m[1]]
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
	default:
		parts := dateSeparatorRe.Split(s, -1)
		if len(parts) != 3 {
			return "", false
		}
		nums := make([]int, 3)
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return "", false
			}
			nums[i] = n
		}

		if len(parts[0]) == 4 {
			year, month, day = nums[0], nums[1], nums[2]
			break
		}
		if nums[0] > 12 {
			day, month = nums[0], nums[1]
		} else {
			month, day = nums[0], nums[1]
		}
		switch len(parts[2]) {
		case 2:
			year = 2000 + nums[2]
		case 4:
			year = nums[2]
		default:
			return "", false
		}
	}

	if year < 1900 || year > 2100 || month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// dateMatch is one date-like substring found on a line.
// start and end are byte offsets within the folded line.
type dateMatch struct {
	raw        string
	value      string
	valid      bool
	start, end int
	used       bool
}

// findDates returns the non-overlapping dates on one line, left to right.
func findDates(orig, folded string) []*dateMatch {
	var spans [][]int
	for _, re := range []*regexp.Regexp{isoDateRe, textDateRe, textDateUSRe, numericDateRe} {
		for _, loc := range re.FindAllStringIndex(folded, -1) {
			if !overlaps(spans, loc) {
				spans = append(spans, loc)
			}
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	matches := make([]*dateMatch, 0, len(spans))
	for _, loc := range spans {
		raw := orig[originalOffset(orig, folded, loc[0]):originalOffset(orig, folded, loc[1])]
		value, ok := normalizeDate(raw)
		if !ok {
			value = raw
		}
		matches = append(matches, &dateMatch{
			raw:   raw,
			value: value,
			valid: ok,
			start: loc[0],
			end:   loc[1],
		})
	}
	return matches
}

func overlaps(spans [][]int, loc []int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && s[0] < loc[1] {
			return true
		}
	}
	return false
}

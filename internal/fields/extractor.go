// Package fields turns recognized free text into typed, confidence-scored
// document fields. Extraction is pure and never fails: text that yields
// nothing produces an empty FieldMap, and a field that is not found is absent
// rather than empty.
package fields

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"docscan/internal/logger"
	"docscan/pkg/models"
)

// Field confidences assigned by the extractor.
const (
	ConfidenceLabeled    = 85
	ConfidencePositional = 75
	ConfidenceSplitName  = 80
	ConfidenceUnlabeled  = 70
)

var (
	blankRunRe = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)

	// documentNumberPatterns are tried in order; the first match wins.
	documentNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z]{1,2}\d{6,8}\b`),        // passport
		regexp.MustCompile(`\b[A-Z]\d{3}-?\d{4}-?\d{4}\b`), // driver's license
		regexp.MustCompile(`\b[A-Z]\d{7,12}\b`),            // driver's license, compact
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),        // SSN
		regexp.MustCompile(`\b[A-Z0-9]{8,12}\b`),           // generic, must contain a digit
	}

	hasDigitRe = regexp.MustCompile(`\d`)

	// 2-4 capitalized tokens, e.g. "John Smith" or "MARIA DEL CARMEN"
	capitalizedNameRe = regexp.MustCompile(`\p{Lu}[\p{L}'’-]*(?:[ ]+\p{Lu}[\p{L}'’-]*){0,3}`)

	labelSeparators = " \t:;/|.,-–#"
)

type line struct {
	text   string
	folded string
	dates  []*dateMatch
}

// Extractor parses recognized text into a FieldMap.
type Extractor struct {
	log zerolog.Logger
}

// New returns an Extractor logging under the "fields" component.
func New() *Extractor {
	return &Extractor{log: logger.WithComponent("fields")}
}

// Extract parses text using the keyword set of language (a BCP 47 tag) and the
// English set as a fallback.
func (e *Extractor) Extract(text, language string) models.FieldMap {
	fields := models.FieldMap{}
	lines := splitLines(text)
	if len(lines) == 0 {
		return fields
	}
	sets := setsFor(language)

	extractDocumentNumber(fields, lines)
	extractDates(fields, lines, sets)
	extractNames(fields, lines, sets)
	extractNationality(fields, lines, sets)

	e.log.Debug().
		Str("language", BaseLanguage(language)).
		Int("lines", len(lines)).
		Int("fields", len(fields)).
		Msg("Fields extracted")

	return fields
}

// splitLines normalizes line endings and blank runs and drops empty lines.
func splitLines(text string) []*line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []*line
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(blankRunRe.ReplaceAllString(raw, " "))
		if t == "" {
			continue
		}
		f := fold(t)
		lines = append(lines, &line{text: t, folded: f, dates: findDates(t, f)})
	}
	return lines
}

func extractDocumentNumber(fields models.FieldMap, lines []*line) {
	for _, re := range documentNumberPatterns {
		for _, ln := range lines {
			for _, m := range re.FindAllString(ln.text, -1) {
				if !hasDigitRe.MatchString(m) {
					continue
				}
				fields.Set(models.FieldDocumentNumber, m, ConfidenceLabeled)
				return
			}
		}
	}
}

func extractDates(fields models.FieldMap, lines []*line, sets []*keywordSet) {
	var dateLabels []*regexp.Regexp
	for _, set := range sets {
		dateLabels = append(dateLabels, set.expiry, set.issue, set.birth)
	}

	targets := []struct {
		name  string
		label func(*keywordSet) *regexp.Regexp
	}{
		{models.FieldExpirationDate, func(s *keywordSet) *regexp.Regexp { return s.expiry }},
		{models.FieldIssueDate, func(s *keywordSet) *regexp.Regexp { return s.issue }},
		{models.FieldDateOfBirth, func(s *keywordSet) *regexp.Regexp { return s.birth }},
	}
	for _, target := range targets {
		for _, set := range sets {
			if d := labeledDate(lines, target.label(set), dateLabels); d != nil {
				d.used = true
				fields.Set(target.name, d.value, ConfidenceLabeled)
				break
			}
		}
	}

	// Positional fallback over the remaining dates that normalized cleanly.
	var all, remaining []*dateMatch
	for _, ln := range lines {
		for _, d := range ln.dates {
			if !d.valid {
				continue
			}
			all = append(all, d)
			if !d.used {
				remaining = append(remaining, d)
			}
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool { return remaining[i].value < remaining[j].value })

	if !fields.Has(models.FieldExpirationDate) && len(remaining) > 0 {
		latest := remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
		fields.Set(models.FieldExpirationDate, latest.value, ConfidencePositional)
	}
	if !fields.Has(models.FieldIssueDate) && len(all) >= 2 && len(remaining) > 0 {
		fields.Set(models.FieldIssueDate, remaining[0].value, ConfidencePositional)
	}
}

// labeledDate finds the first line matching label and returns the first unused
// date after the label on that line, or else the first unused date on the
// following line when that line carries no date label of its own.
func labeledDate(lines []*line, label *regexp.Regexp, dateLabels []*regexp.Regexp) *dateMatch {
	for i, ln := range lines {
		loc := label.FindStringIndex(ln.folded)
		if loc == nil {
			continue
		}
		for _, d := range ln.dates {
			if !d.used && d.start >= loc[1] {
				return d
			}
		}
		if i+1 < len(lines) && !matchesAny(lines[i+1].folded, dateLabels) {
			for _, d := range lines[i+1].dates {
				if !d.used {
					return d
				}
			}
		}
	}
	return nil
}

func extractNames(fields models.FieldMap, lines []*line, sets []*keywordSet) {
	var surname, given, full string
	for _, set := range sets {
		if surname == "" {
			surname = nameAfterLabel(lines, set.surname, []*regexp.Regexp{set.fullName}, sets, 1)
		}
		if given == "" {
			given = nameAfterLabel(lines, set.givenNames, []*regexp.Regexp{set.fullName, set.surname}, sets, 1)
		}
		if full == "" {
			full = nameAfterLabel(lines, set.fullName, nil, sets, 2)
		}
		if full == "" && set.name != nil {
			full = nameAfterLabel(lines, set.name, []*regexp.Regexp{set.surname, set.givenNames}, sets, 2)
		}
	}

	switch {
	case surname != "" && given != "":
		fields.Set(models.FieldLastName, surname, ConfidenceLabeled)
		fields.Set(models.FieldFirstName, given, ConfidenceLabeled)
		fields.Set(models.FieldFullName, given+" "+surname, ConfidenceSplitName)
	case full != "":
		fields.Set(models.FieldFullName, full, ConfidenceLabeled)
		tokens := strings.Fields(full)
		fields.Set(models.FieldFirstName, tokens[0], ConfidenceSplitName)
		fields.Set(models.FieldLastName, strings.Join(tokens[1:], " "), ConfidenceSplitName)
	case surname != "":
		fields.Set(models.FieldLastName, surname, ConfidenceLabeled)
	case given != "":
		fields.Set(models.FieldFirstName, given, ConfidenceLabeled)
	}
}

// nameAfterLabel returns the capitalized name following label, on the same
// line or the next one. Lines that also match one of exclude are skipped, so
// "Last name" is not read as a full-name label.
func nameAfterLabel(lines []*line, label *regexp.Regexp, exclude []*regexp.Regexp, sets []*keywordSet, minTokens int) string {
	for i, ln := range lines {
		loc := label.FindStringIndex(ln.folded)
		if loc == nil || matchesAny(ln.folded, exclude) {
			continue
		}
		candidates := []string{valueAfterLabel(ln, loc[1], sets)}
		if i+1 < len(lines) && !matchesAny(lines[i+1].folded, allLabels(sets)) {
			candidates = append(candidates, lines[i+1].text)
		}
		for _, c := range candidates {
			name := capitalizedNameRe.FindString(c)
			if name == "" {
				continue
			}
			if len(strings.Fields(name)) < minTokens {
				continue
			}
			return name
		}
	}
	return ""
}

func extractNationality(fields models.FieldMap, lines []*line, sets []*keywordSet) {
	for _, set := range sets {
		for i, ln := range lines {
			loc := set.nationality.FindStringIndex(ln.folded)
			if loc == nil {
				continue
			}
			value := valueAfterLabel(ln, loc[1], sets)
			if value == "" && i+1 < len(lines) {
				value = lines[i+1].text
			}
			if value == "" {
				continue
			}
			if name, ok := findCountry(value, fold(value)); ok {
				value = name
			}
			fields.Set(models.FieldNationality, value, ConfidenceLabeled)
			return
		}
	}

	for _, ln := range lines {
		if name, ok := findCountry(ln.text, ln.folded); ok {
			fields.Set(models.FieldNationality, name, ConfidenceUnlabeled)
			return
		}
	}
}

// valueAfterLabel returns the original text following a label that ends at
// byte offset end of the folded line. Separators and further labels (as in
// bilingual "Surname / Nom") are skipped.
func valueAfterLabel(ln *line, end int, sets []*keywordSet) string {
	folded := ln.folded[end:]
	for {
		trimmed := strings.TrimLeft(folded, labelSeparators)
		stripped := false
		for _, re := range allLabels(sets) {
			if loc := re.FindStringIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] > 0 {
				trimmed = trimmed[loc[1]:]
				stripped = true
				break
			}
		}
		folded = trimmed
		if !stripped {
			break
		}
	}
	start := originalOffset(ln.text, ln.folded, len(ln.folded)-len(folded))
	return strings.TrimSpace(ln.text[start:])
}

func allLabels(sets []*keywordSet) []*regexp.Regexp {
	var labels []*regexp.Regexp
	for _, s := range sets {
		labels = append(labels, s.surname, s.givenNames, s.fullName, s.nationality, s.expiry, s.issue, s.birth)
		if s.name != nil {
			labels = append(labels, s.name)
		}
	}
	return labels
}

func matchesAny(s string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

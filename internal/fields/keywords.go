package fields

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLanguage is used when the caller's language is empty or unsupported.
const DefaultLanguage = "en"

// keywordSet holds the label patterns of one language. Patterns match the
// folded (lower-case, diacritic-free) form of a line.
type keywordSet struct {
	expiry      *regexp.Regexp
	issue       *regexp.Regexp
	birth       *regexp.Regexp
	surname     *regexp.Regexp
	givenNames  *regexp.Regexp
	fullName    *regexp.Regexp
	name        *regexp.Regexp // bare "name" label, nil where it means surname
	nationality *regexp.Regexp
}

var keywordSets = map[string]*keywordSet{
	"en": {
		expiry:      regexp.MustCompile(`expir|\bexp\b|valid (?:until|thru|through|to)\b|good thru`),
		issue:       regexp.MustCompile(`date of issue|issue date|\bissued\b|\bissue\b|\biss\b`),
		birth:       regexp.MustCompile(`birth|\bdob\b|\bborn\b`),
		surname:     regexp.MustCompile(`surname|last name|family name`),
		givenNames:  regexp.MustCompile(`given names?|first names?|forenames?`),
		fullName:    regexp.MustCompile(`full name`),
		name:        regexp.MustCompile(`\bname\b`),
		nationality: regexp.MustCompile(`nationality|citizenship`),
	},
	"es": {
		expiry:      regexp.MustCompile(`caducidad|vencimiento|valido hasta|expiracion|\bvence\b`),
		issue:       regexp.MustCompile(`expedicion|emision|\bexpedido\b`),
		birth:       regexp.MustCompile(`nacimiento`),
		surname:     regexp.MustCompile(`apellidos?`),
		givenNames:  regexp.MustCompile(`\bnombres?\b`),
		fullName:    regexp.MustCompile(`nombre completo|nombre y apellidos`),
		nationality: regexp.MustCompile(`nacionalidad`),
	},
	"fr": {
		expiry:      regexp.MustCompile(`expiration|valable jusqu|fin de validite|date d'expiration`),
		issue:       regexp.MustCompile(`delivrance|\bdelivre\b|emission`),
		birth:       regexp.MustCompile(`naissance|\bnee? le\b`),
		surname:     regexp.MustCompile(`nom de famille|\bnom\b`),
		givenNames:  regexp.MustCompile(`prenoms?`),
		fullName:    regexp.MustCompile(`nom complet|nom et prenoms?`),
		nationality: regexp.MustCompile(`nationalite`),
	},
	"de": {
		expiry:      regexp.MustCompile(`gultig bis|ablaufdatum|\bablauf\b`),
		issue:       regexp.MustCompile(`ausstellungsdatum|ausgestellt|\bausstellung\b`),
		birth:       regexp.MustCompile(`geburtsdatum|geboren|geburtstag`),
		surname:     regexp.MustCompile(`familienname|nachname|\bname\b`),
		givenNames:  regexp.MustCompile(`vornamen?`),
		fullName:    regexp.MustCompile(`vollstandiger name`),
		nationality: regexp.MustCompile(`staatsangehorigkeit|nationalitat`),
	},
	"it": {
		expiry:      regexp.MustCompile(`scadenza|valido fino|valida fino`),
		issue:       regexp.MustCompile(`rilascio|emissione|\brilasciat[oa]\b`),
		birth:       regexp.MustCompile(`nascita|\bnat[oa] il\b`),
		surname:     regexp.MustCompile(`cognome`),
		givenNames:  regexp.MustCompile(`\bnomi?\b`),
		fullName:    regexp.MustCompile(`nome e cognome|nome completo`),
		nationality: regexp.MustCompile(`nazionalita|cittadinanza`),
	},
	"pt": {
		expiry:      regexp.MustCompile(`validade|valido ate|expiracao|\bvence\b`),
		issue:       regexp.MustCompile(`emissao|expedicao|\bemitido\b`),
		birth:       regexp.MustCompile(`nascimento`),
		surname:     regexp.MustCompile(`apelidos?|sobrenomes?`),
		givenNames:  regexp.MustCompile(`\bnomes?\b|prenomes?`),
		fullName:    regexp.MustCompile(`nome completo`),
		nationality: regexp.MustCompile(`nacionalidade`),
	},
}

// SupportedLanguages lists the languages with dedicated keyword sets, sorted.
func SupportedLanguages() []string {
	return slices.Sorted(maps.Keys(keywordSets))
}

// BaseLanguage reduces a BCP 47 tag such as "pt-BR" to its supported base
// language, falling back to DefaultLanguage.
func BaseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return DefaultLanguage
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return DefaultLanguage
	}
	base, _ := parsed.Base()
	if _, ok := keywordSets[base.String()]; !ok {
		return DefaultLanguage
	}
	return base.String()
}

// setsFor returns the caller's keyword set followed by English.
func setsFor(lang string) []*keywordSet {
	base := BaseLanguage(lang)
	if base == DefaultLanguage {
		return []*keywordSet{keywordSets[DefaultLanguage]}
	}
	return []*keywordSet{keywordSets[base], keywordSets[DefaultLanguage]}
}

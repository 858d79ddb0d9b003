package fields

import (
	"regexp"
	"sort"
	"strings"
)

// country is one entry of the nationality lookup table.
type country struct {
	name  string
	code  string
	alias []string // folded local names and demonyms
}

var countries = []country{
	{"United States", "USA", []string{"united states of america", "united states", "estados unidos", "etats-unis", "vereinigte staaten", "stati uniti", "american"}},
	{"United Kingdom", "GBR", []string{"united kingdom", "great britain", "reino unido", "royaume-uni", "vereinigtes konigreich", "regno unito", "british"}},
	{"Canada", "CAN", []string{"canada", "kanada", "canadian", "canadienne", "canadien"}},
	{"Mexico", "MEX", []string{"mexico", "mexique", "mexiko", "messico", "mexican", "mexicana", "mexicano"}},
	{"Spain", "ESP", []string{"spain", "espana", "espagne", "spanien", "spagna", "espanha", "spanish", "espanola", "espanol"}},
	{"France", "FRA", []string{"france", "francia", "frankreich", "franca", "french", "francaise", "francais"}},
	{"Germany", "DEU", []string{"germany", "alemania", "allemagne", "deutschland", "germania", "alemanha", "german", "deutsch"}},
	{"Italy", "ITA", []string{"italy", "italia", "italie", "italien", "italian", "italiana", "italiano"}},
	{"Portugal", "PRT", []string{"portugal", "portogallo", "portuguese", "portuguesa", "portugues"}},
	{"Brazil", "BRA", []string{"brazil", "brasil", "bresil", "brasilien", "brasile", "brazilian", "brasileira", "brasileiro"}},
	{"Argentina", "ARG", []string{"argentina", "argentine", "argentinien", "argentinian"}},
	{"Colombia", "COL", []string{"colombia", "colombie", "kolumbien", "colombian", "colombiana", "colombiano"}},
	{"Chile", "CHL", []string{"chile", "chili", "chilean", "chilena", "chileno"}},
	{"Peru", "PER", []string{"peru", "perou", "peruvian", "peruana", "peruano"}},
	{"Netherlands", "NLD", []string{"netherlands", "nederland", "paises bajos", "pays-bas", "niederlande", "paesi bassi", "dutch"}},
	{"Belgium", "BEL", []string{"belgium", "belgique", "belgien", "belgica", "belgio", "belgian"}},
	{"Switzerland", "CHE", []string{"switzerland", "suiza", "suisse", "schweiz", "svizzera", "suica", "swiss"}},
	{"Austria", "AUT", []string{"austria", "autriche", "osterreich", "austrian"}},
	{"Ireland", "IRL", []string{"ireland", "irlanda", "irlande", "irland", "irish"}},
	{"Poland", "POL", []string{"poland", "polonia", "pologne", "polen", "polish"}},
	{"Sweden", "SWE", []string{"sweden", "suecia", "suede", "schweden", "svezia", "swedish"}},
	{"Norway", "NOR", []string{"norway", "noruega", "norvege", "norwegen", "norvegia", "norwegian"}},
	{"Denmark", "DNK", []string{"denmark", "dinamarca", "danemark", "danimarca", "danish"}},
	{"Finland", "FIN", []string{"finland", "finlandia", "finlande", "finnland", "finnish"}},
	{"Greece", "GRC", []string{"greece", "grecia", "grece", "griechenland", "greek"}},
	{"Australia", "AUS", []string{"australia", "australie", "australien", "australian"}},
	{"New Zealand", "NZL", []string{"new zealand", "nueva zelanda", "nouvelle-zelande", "neuseeland"}},
	{"Japan", "JPN", []string{"japan", "japon", "giappone", "japao", "japanese"}},
	{"China", "CHN", []string{"china", "chine", "cina", "chinese"}},
	{"India", "IND", []string{"republic of india", "indian"}},
	{"Philippines", "PHL", []string{"philippines", "filipinas", "philippinen", "filippine", "filipino"}},
	{"Ukraine", "UKR", []string{"ukraine", "ucrania", "ucraina", "ukrainian"}},
	{"Romania", "ROU", []string{"romania", "roumanie", "rumanien", "romenia", "romanian"}},
	// "MAR" is left out: it collides with the March abbreviation in dates.
	{"Morocco", "", []string{"morocco", "marruecos", "maroc", "marokko", "marocco", "moroccan"}},
	{"Venezuela", "VEN", []string{"venezuela", "venezuelan", "venezolana", "venezolano"}},
	{"Cuba", "CUB", []string{"cuba", "cuban", "cubana", "cubano"}},
	{"Ecuador", "ECU", []string{"ecuador", "equateur", "ecuadorian", "ecuatoriana", "ecuatoriano"}},
	{"Dominican Republic", "DOM", []string{"dominican republic", "republica dominicana", "dominicana", "dominicano"}},
}

var (
	countryByAlias = map[string]*country{}
	countryByCode  = map[string]*country{}

	countryNameRe *regexp.Regexp
	countryCodeRe *regexp.Regexp
)

func init() {
	var aliases, codes []string
	for i := range countries {
		c := &countries[i]
		if c.code != "" {
			countryByCode[c.code] = c
			codes = append(codes, c.code)
		}
		for _, a := range c.alias {
			countryByAlias[a] = c
			aliases = append(aliases, regexp.QuoteMeta(a))
		}
	}
	sort.Slice(aliases, func(i, j int) bool { return len(aliases[i]) > len(aliases[j]) })

	countryNameRe = regexp.MustCompile(`\b(?:` + strings.Join(aliases, "|") + `)\b`)
	// codes are matched case-sensitively on the original text, e.g. "P<USA"
	countryCodeRe = regexp.MustCompile(`\b(?:` + strings.Join(codes, "|") + `)\b`)
}

// findCountry looks for a country name (in folded text) and then an ISO 3166
// alpha-3 code (in the original text). It returns the English country name.
func findCountry(orig, folded string) (string, bool) {
	if m := countryNameRe.FindString(folded); m != "" {
		return countryByAlias[m].name, true
	}
	if m := countryCodeRe.FindString(orig); m != "" {
		return countryByCode[m].name, true
	}
	return "", false
}

package fields

import (
	"regexp"
	"strings"

	"docscan/pkg/models"
)

// ConfidenceDocumentType is attached to keyword-based classifications.
const ConfidenceDocumentType = 70

// documentTypeRules are checked in order. Passports come first because their
// visa pages mention "visa"; residence permits before ID cards because many
// permits are card-shaped and say "card".
var documentTypeRules = []struct {
	docType models.DocumentType
	pattern *regexp.Regexp
}{
	{models.DocumentTypePassport, regexp.MustCompile(`passport|pasaporte|passeport|reisepass|passaporto|passaporte|(?m:^p<[a-z<])`)},
	{models.DocumentTypeResidencePermit, regexp.MustCompile(`residence permit|permiso de residencia|titre de sejour|aufenthaltstitel|permesso di soggiorno|autorizacao de residencia|permanent resident`)},
	{models.DocumentTypeDriversLicense, regexp.MustCompile(`driver'?s? licen[cs]e|driving licen[cs]e|permis de conduire|fuhrerschein|licencia de conduc|permiso de conduc|patente di guida|carta de conducao|carteira de motorista`)},
	{models.DocumentTypeNationalID, regexp.MustCompile(`identity card|national id|\bid card\b|documento nacional de identidad|\bdni\b|carte nationale d'identite|personalausweis|carta d'identita|cartao de cidadao|bilhete de identidade`)},
	{models.DocumentTypeVisa, regexp.MustCompile(`\bvisa\b|\bvisado\b|\bvisto\b`)},
	{models.DocumentTypeInsuranceCard, regexp.MustCompile(`insurance|health card|tarjeta sanitaria|assurance maladie|carte vitale|krankenversicherung|versichertenkarte|tessera sanitaria|cartao de saude`)},
}

// DetectDocumentType classifies recognized text by keywords in any supported
// language. It returns nil when nothing matches.
func DetectDocumentType(text string) *models.DetectedType {
	folded := fold(strings.TrimSpace(text))
	if folded == "" {
		return nil
	}
	for _, rule := range documentTypeRules {
		if rule.pattern.MatchString(folded) {
			return &models.DetectedType{Type: rule.docType, Confidence: ConfidenceDocumentType}
		}
	}
	return nil
}

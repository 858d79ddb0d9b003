package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldMapMeanConfidence(t *testing.T) {
	m := FieldMap{}
	assert.Equal(t, 0, m.MeanConfidence())

	m.Set(FieldDocumentNumber, "P1234567", 85)
	m.Set(FieldExpirationDate, "2030-12-31", 75)
	m.Set(FieldFullName, "John Smith", 86)
	assert.Equal(t, 82, m.MeanConfidence())
}

func TestFieldMapSetClamps(t *testing.T) {
	m := FieldMap{}
	m.Set(FieldNationality, "USA", 140)
	m.Set(FieldIssueDate, "2020-01-01", -3)

	assert.Equal(t, 100, m[FieldNationality].Confidence)
	assert.Equal(t, 0, m[FieldIssueDate].Confidence)
	assert.True(t, m.Has(FieldIssueDate))
	assert.False(t, m.Has(FieldDateOfBirth))
}

func TestDocumentTypeIsIdentity(t *testing.T) {
	assert.True(t, DocumentTypePassport.IsIdentity())
	assert.True(t, DocumentTypeDriversLicense.IsIdentity())
	assert.True(t, DocumentTypeNationalID.IsIdentity())
	assert.False(t, DocumentTypeInsuranceCard.IsIdentity())
	assert.False(t, DocumentTypeUnknown.IsIdentity())
}

func TestParseService(t *testing.T) {
	s, ok := ParseService("")
	assert.True(t, ok)
	assert.Equal(t, ServiceAuto, s)

	s, ok = ParseService("tesseract")
	assert.True(t, ok)
	assert.Equal(t, ServiceTesseract, s)

	_, ok = ParseService("azure")
	assert.False(t, ok)
}

func TestParseDocumentType(t *testing.T) {
	assert.Equal(t, DocumentTypeDriversLicense, ParseDocumentType("license"))
	assert.Equal(t, DocumentTypeUnknown, ParseDocumentType(""))
	assert.Equal(t, DocumentTypeOther, ParseDocumentType("library_card"))
}

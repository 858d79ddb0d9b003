package fields_test

import (
	"fmt"

	"docscan/internal/fields"
	"docscan/pkg/models"
)

// ExampleNormalizeDate shows how recognized dates are brought into the
// canonical YYYY-MM-DD form.
func ExampleNormalizeDate() {
	fmt.Println(fields.NormalizeDate("12/31/2030")) // month-first
	fmt.Println(fields.NormalizeDate("31.12.2030")) // day-first, first part > 12
	fmt.Println(fields.NormalizeDate("03/04/2030")) // ambiguous, resolved month-first
	fmt.Println(fields.NormalizeDate("12 de marzo de 2030"))
	fmt.Println(fields.NormalizeDate("31/13/2030")) // out of range, kept verbatim
	// Output:
	// 2030-12-31
	// 2030-12-31
	// 2030-03-04
	// 2030-03-12
	// 31/13/2030
}

// ExampleExtractor_Extract demonstrates extracting fields from passport text.
func ExampleExtractor_Extract() {
	text := "Passport No: P1234567\nName: John Smith\nDate of Expiry: 12/31/2030"

	extracted := fields.New().Extract(text, "en")

	for _, name := range []string{
		models.FieldDocumentNumber,
		models.FieldFullName,
		models.FieldExpirationDate,
	} {
		f := extracted[name]
		fmt.Printf("%s: %s (%d)\n", name, f.Value, f.Confidence)
	}
	// Output:
	// documentNumber: P1234567 (85)
	// fullName: John Smith (85)
	// expirationDate: 2030-12-31 (85)
}

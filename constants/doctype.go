package constants

import "strings"

// DocumentType tags the kind of financial document being extracted.
type DocumentType string

const (
	DocumentTypeInvoice       DocumentType = "invoice"
	DocumentTypeReceipt       DocumentType = "receipt"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
	DocumentTypeBill          DocumentType = "bill"
	DocumentTypeAuto          DocumentType = "auto"

	// DocumentTypeCustom is reported in metadata when custom fields drove the extraction.
	DocumentTypeCustom DocumentType = "custom"
)

// DefaultDocumentType is used at the HTTP boundary when the caller sends no type.
const DefaultDocumentType = DocumentTypeInvoice

// ParseDocumentType lowercases and trims a caller-supplied tag. Unknown tags are
// kept as-is; the schema builder decides how to treat them.
func ParseDocumentType(s string) DocumentType {
	return DocumentType(strings.ToLower(strings.TrimSpace(s)))
}

// IsAuto reports whether the model should detect the type itself.
func (t DocumentType) IsAuto() bool {
	return t == "" || t == DocumentTypeAuto
}

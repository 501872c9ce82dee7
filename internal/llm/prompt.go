package llm

import (
	"strings"

	"github.com/joseph-ayodele/docparse/constants"
)

const (
	autoInstruction = "Analyze this document and determine its type (invoice, receipt, purchase order, bill, etc).\n" +
		"Extract ALL relevant financial information you can find in the document.\n" +
		"Include fields like: document number, dates, vendor/merchant info, customer info, items, amounts, taxes, totals, payment details, etc."
	genericInstruction = "Extract all relevant financial information from this document."
	customInstruction  = "Extract the following custom fields from this document:"

	// ProbePrompt is sent by the connectivity probe instead of an extraction prompt.
	ProbePrompt = "Describe this image in one sentence."
)

var typeInstructions = map[constants.DocumentType]string{
	constants.DocumentTypeInvoice:       "This is an INVOICE. Extract invoice-specific details.",
	constants.DocumentTypeReceipt:       "This is a RECEIPT. Extract payment and transaction details.",
	constants.DocumentTypePurchaseOrder: "This is a PURCHASE ORDER. Extract order details and terms.",
	constants.DocumentTypeBill:          "This is a BILL. Extract billing charges and payment information.",
}

// Instruction returns the opening paragraph for spec.
func Instruction(spec ExtractionSpec) string {
	switch {
	case spec.IsCustom():
		return customInstruction
	case spec.docType.IsAuto():
		return autoInstruction
	}
	if s, ok := typeInstructions[spec.docType]; ok {
		return s
	}
	return genericInstruction
}

// ComposePrompt builds the full extraction prompt. It is a pure function of
// its inputs.
func ComposePrompt(spec ExtractionSpec, schema Template) string {
	var b strings.Builder
	b.WriteString(Instruction(spec))
	b.WriteString("\n\nExtract data and return as JSON.\n\nJSON format:\n")
	b.WriteString(schema.Indented())
	b.WriteString("\n\nReturn only valid JSON, no explanation, no markdown.")

	if spec.IsCustom() {
		b.WriteString("\n\nIMPORTANT - Extract exactly these fields:")
		for _, f := range spec.fields {
			b.WriteString("\n- ")
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
	}
	return b.String()
}

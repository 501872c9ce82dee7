package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joseph-ayodele/docparse/constants"
)

func TestComposePromptByType(t *testing.T) {
	cases := map[constants.DocumentType]string{
		"invoice":        "This is an INVOICE.",
		"receipt":        "This is a RECEIPT.",
		"purchase_order": "This is a PURCHASE ORDER.",
		"bill":           "This is a BILL.",
		"auto":           "Analyze this document and determine its type",
		"statement":      "Extract all relevant financial information from this document.",
	}
	for tag, want := range cases {
		spec := ForDocumentType(tag)
		p := ComposePrompt(spec, BuildSchema(spec))
		assert.True(t, strings.HasPrefix(p, want), "%s: %q", tag, p[:40])
		assert.Contains(t, p, "Extract data and return as JSON.")
		assert.True(t, strings.HasSuffix(p, "Return only valid JSON, no explanation, no markdown."))
		assert.NotContains(t, p, "IMPORTANT")
	}
}

func TestComposePromptEmbedsTemplate(t *testing.T) {
	spec := ForDocumentType(constants.DocumentTypeReceipt)
	tmpl := BuildSchema(spec)
	assert.Contains(t, ComposePrompt(spec, tmpl), "JSON format:\n"+tmpl.Indented()+"\n\n")
}

func TestComposePromptCustomFields(t *testing.T) {
	spec := mustCustom(t,
		CustomField{Name: "PO Number", Description: "purchase order id"},
		CustomField{Name: "Ship Date", Description: "when goods left the warehouse"},
	)
	p := ComposePrompt(spec, BuildSchema(spec))

	assert.True(t, strings.HasPrefix(p, "Extract the following custom fields from this document:"))
	assert.Contains(t, p, `"po_number": "string or null - purchase order id"`)
	assert.True(t, strings.HasSuffix(p, "IMPORTANT - Extract exactly these fields:\n"+
		"- PO Number: purchase order id\n"+
		"- Ship Date: when goods left the warehouse"))
}

func TestComposePromptDeterministic(t *testing.T) {
	spec := ForDocumentType(constants.DocumentTypeInvoice)
	assert.Equal(t, ComposePrompt(spec, BuildSchema(spec)), ComposePrompt(spec, BuildSchema(spec)))
}

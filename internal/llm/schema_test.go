package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
)

func mustCustom(t *testing.T, fields ...CustomField) ExtractionSpec {
	t.Helper()
	spec, err := ForCustomFields(fields)
	require.NoError(t, err)
	return spec
}

func TestBuildSchemaCustomFields(t *testing.T) {
	spec := mustCustom(t, CustomField{Name: "PO Number", Description: "purchase order id"})

	tmpl := BuildSchema(spec)
	require.Equal(t, []string{"po_number"}, tmpl.Keys())
	f, ok := tmpl.Field("po_number")
	require.True(t, ok)
	assert.Contains(t, f.Hint, "purchase order id")

	for _, k := range invoiceTemplate.Keys() {
		_, ok := tmpl.Field(k)
		assert.False(t, ok, "custom template must not contain %q", k)
	}
}

func TestBuildSchemaCustomFieldsDuplicateKeys(t *testing.T) {
	spec := mustCustom(t,
		CustomField{Name: "Ship To", Description: "first"},
		CustomField{Name: "Total"},
		CustomField{Name: "ship to", Description: "second"},
	)
	tmpl := BuildSchema(spec)
	assert.Equal(t, []string{"ship_to", "total"}, tmpl.Keys())
	f, _ := tmpl.Field("ship_to")
	assert.Equal(t, "string or null - second", f.Hint)
}

func TestBuildSchemaReceiptVsInvoice(t *testing.T) {
	receipt := BuildSchema(ForDocumentType(constants.DocumentTypeReceipt))
	invoice := BuildSchema(ForDocumentType(constants.DocumentTypeInvoice))

	for _, k := range []string{"tip", "card_last_4"} {
		_, ok := receipt.Field(k)
		assert.True(t, ok, "receipt should have %q", k)
		_, ok = invoice.Field(k)
		assert.False(t, ok, "invoice should not have %q", k)
	}
}

func TestBuildSchemaTypeTable(t *testing.T) {
	invoiceKeys := invoiceTemplate.Keys()
	for _, tag := range []constants.DocumentType{"purchase_order", "bill", "credit_note"} {
		assert.Equal(t, invoiceKeys, BuildSchema(ForDocumentType(tag)).Keys(), tag)
	}

	for _, tag := range []constants.DocumentType{"", "auto"} {
		tmpl := BuildSchema(ForDocumentType(tag))
		assert.Equal(t, "document_type", tmpl.Keys()[0])
		_, ok := tmpl.Field("additional_fields")
		assert.True(t, ok)
	}
}

func TestBuildSchemaDoesNotShareTables(t *testing.T) {
	tmpl := BuildSchema(ForDocumentType(constants.DocumentTypeInvoice))
	tmpl.Fields[0].Hint = "changed"
	assert.Equal(t, "string or null", invoiceTemplate.Fields[0].Hint)
}

func TestBuildSchemaDoesNotShareLineItems(t *testing.T) {
	for _, dt := range []constants.DocumentType{constants.DocumentTypeInvoice, constants.DocumentTypeReceipt} {
		tmpl := BuildSchema(ForDocumentType(dt))
		items, ok := tmpl.Field("items")
		require.True(t, ok, dt)
		items.Items[0].Name = "mutated"
	}

	again, _ := BuildSchema(ForDocumentType(constants.DocumentTypeInvoice)).Field("items")
	assert.Equal(t, "description", again.Items[0].Name)
	assert.Equal(t, "description", lineItem[0].Name)
}

func TestTemplateMarshalKeepsOrder(t *testing.T) {
	out := BuildSchema(ForDocumentType(constants.DocumentTypeInvoice)).Indented()

	assert.True(t, json.Valid([]byte(out)))
	assert.Less(t, strings.Index(out, `"invoice_number"`), strings.Index(out, `"due_date"`))
	assert.Less(t, strings.Index(out, `"items"`), strings.Index(out, `"subtotal"`))
	assert.Contains(t, out, `"items": [
    {
      "description": "string",
      "quantity": "number",
      "unit_price": "number",
      "total": "number"
    }
  ]`)
}

func TestForCustomFieldsRejectsBlankNames(t *testing.T) {
	_, err := ForCustomFields([]CustomField{{Name: "  ", Description: "x"}})
	require.Error(t, err)

	_, err = ForCustomFields(nil)
	require.Error(t, err)
}

func TestSpecLabel(t *testing.T) {
	assert.Equal(t, "invoice", ForDocumentType("invoice").Label())
	assert.Equal(t, "auto", ForDocumentType("").Label())
	assert.Equal(t, "custom", mustCustom(t, CustomField{Name: "x"}).Label())
}

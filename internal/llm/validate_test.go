package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
)

func TestParseCustomFields(t *testing.T) {
	fields, err := ParseCustomFields(`[{"field":"PO Number","description":"purchase order id"},{"field":"Buyer"}]`)
	require.NoError(t, err)
	assert.Equal(t, []CustomField{
		{Name: "PO Number", Description: "purchase order id"},
		{Name: "Buyer"},
	}, fields)

	for _, empty := range []string{"", "  ", "[]"} {
		fields, err := ParseCustomFields(empty)
		require.NoError(t, err)
		assert.Nil(t, fields)
	}
}

func TestParseCustomFieldsInvalid(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"field":"x"}`,
		`[{"description":"no name"}]`,
		`[{"field":""}]`,
		`[{"field":7}]`,
	} {
		_, err := ParseCustomFields(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, common.ErrInvalidInput, in)
	}
}

func TestCheckRecord(t *testing.T) {
	tmpl := BuildSchema(ForDocumentType(constants.DocumentTypeInvoice))

	ok := Recover(`{"invoice_number":"INV-1","total":5,"items":[{"description":"x","quantity":1,"unit_price":"5.00","total":5}],"extra":true,"_metadata":{"size":1}}`)
	require.True(t, ok.Parsed())
	problems, err := CheckRecord(tmpl, ok.Record)
	require.NoError(t, err)
	assert.Empty(t, problems)

	bad := Recover(`{"invoice_number":{"nested":1},"items":"none","total":true}`)
	require.True(t, bad.Parsed())
	problems, err = CheckRecord(tmpl, bad.Record)
	require.NoError(t, err)
	assert.NotEmpty(t, problems)
	joined, _ := json.Marshal(problems)
	assert.Contains(t, string(joined), "/invoice_number")
	assert.Contains(t, string(joined), "/total")
}

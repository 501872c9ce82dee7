package llm

import (
	"bytes"
	"encoding/json"

	"github.com/joseph-ayodele/docparse/constants"
)

// Kind is the value type a template field expects. It drives the JSON Schema
// used to check parsed records; the model only ever sees Hint.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindObject
	KindItems
)

// Field is one key of a JSON-shape template.
type Field struct {
	Name  string
	Hint  string
	Kind  Kind
	Items []Field // line item shape when Kind == KindItems
}

// Template is an ordered JSON-shape template shown to the model.
type Template struct {
	Fields []Field
}

func str(name, hint string) Field { return Field{Name: name, Hint: hint, Kind: KindString} }

func num(name, hint string) Field { return Field{Name: name, Hint: hint, Kind: KindNumber} }

func object(name, hint string) Field { return Field{Name: name, Hint: hint, Kind: KindObject} }

func items() Field { return Field{Name: "items", Kind: KindItems, Items: lineItem} }

var lineItem = []Field{
	str("description", "string"),
	num("quantity", "number"),
	num("unit_price", "number"),
	num("total", "number"),
}

var invoiceTemplate = Template{Fields: []Field{
	str("invoice_number", "string or null"),
	str("invoice_date", "YYYY-MM-DD or null"),
	str("due_date", "YYYY-MM-DD or null"),
	str("vendor_name", "string or null"),
	str("vendor_address", "string or null"),
	str("customer_name", "string or null"),
	str("customer_address", "string or null"),
	items(),
	num("subtotal", "number"),
	num("tax", "number"),
	num("total", "number"),
	str("currency", "string"),
}}

var receiptTemplate = Template{Fields: []Field{
	str("receipt_number", "string or null"),
	str("transaction_date", "YYYY-MM-DD or null"),
	str("transaction_time", "HH:MM:SS or null"),
	str("merchant_name", "string or null"),
	str("merchant_address", "string or null"),
	str("payment_method", "string or null (cash, card, etc)"),
	str("card_last_4", "string or null"),
	items(),
	num("subtotal", "number"),
	num("tax", "number"),
	num("tip", "number or null"),
	num("total", "number"),
	str("currency", "string"),
}}

var autoTemplate = Template{Fields: []Field{
	str("document_type", "string - detected type (invoice, receipt, etc)"),
	str("document_number", "string or null"),
	str("date", "YYYY-MM-DD or null"),
	str("vendor_or_merchant", "string or null"),
	str("customer", "string or null"),
	items(),
	num("subtotal", "number or null"),
	num("tax", "number or null"),
	num("total", "number"),
	str("currency", "string or null"),
	object("additional_fields", "object - any other relevant information found"),
}}

// typeTemplates maps document types to their base template. Types not listed
// here use the invoice template.
var typeTemplates = map[constants.DocumentType]Template{
	constants.DocumentTypeInvoice:       invoiceTemplate,
	constants.DocumentTypePurchaseOrder: invoiceTemplate,
	constants.DocumentTypeBill:          invoiceTemplate,
	constants.DocumentTypeReceipt:       receiptTemplate,
}

// BuildSchema returns the JSON-shape template for spec. Custom fields replace
// the type templates entirely.
func BuildSchema(spec ExtractionSpec) Template {
	if spec.IsCustom() {
		return customTemplate(spec.fields)
	}
	if spec.docType.IsAuto() {
		return autoTemplate.clone()
	}
	if t, ok := typeTemplates[spec.docType]; ok {
		return t.clone()
	}
	return invoiceTemplate.clone()
}

// customTemplate keeps the first position of a repeated key and the last description.
func customTemplate(fields []CustomField) Template {
	var t Template
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		key := f.Key()
		field := str(key, "string or null - "+f.Description)
		if i, ok := index[key]; ok {
			t.Fields[i] = field
			continue
		}
		index[key] = len(t.Fields)
		t.Fields = append(t.Fields, field)
	}
	return t
}

func (t Template) clone() Template {
	return Template{Fields: cloneFields(t.Fields)}
}

// cloneFields copies fields and every nested Items slice.
func cloneFields(fields []Field) []Field {
	if fields == nil {
		return nil
	}
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f
		out[i].Items = cloneFields(f.Items)
	}
	return out
}

// Keys lists the top-level field names in template order.
func (t Template) Keys() []string {
	keys := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		keys[i] = f.Name
	}
	return keys
}

// Field looks up a top-level field by name.
func (t Template) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// MarshalJSON writes the template as an object of type hints, keeping field order.
func (t Template) MarshalJSON() ([]byte, error) {
	return marshalFields(t.Fields)
}

func marshalFields(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		if f.Kind == KindItems {
			inner, err := marshalFields(f.Items)
			if err != nil {
				return nil, err
			}
			buf.WriteByte('[')
			buf.Write(inner)
			buf.WriteByte(']')
			continue
		}
		v, err := json.Marshal(f.Hint)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Indented renders the template the way it appears in prompts.
func (t Template) Indented() string {
	raw, err := t.MarshalJSON()
	if err != nil {
		return "{}"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

// JSONSchema derives a lenient JSON Schema from the template: no key is
// required and extra keys are allowed, but present values must have a
// compatible type. Strings also accept numbers since models often return
// numeric ids unquoted.
func (t Template) JSONSchema() map[string]any {
	return objectSchema(t.Fields)
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func fieldSchema(f Field) map[string]any {
	var types []string
	switch f.Kind {
	case KindNumber:
		// amounts sometimes come back as "12.50"
		types = []string{"number", "string"}
	case KindObject:
		types = []string{"object"}
	case KindItems:
		return map[string]any{
			"type":  []string{"array", "null"},
			"items": objectSchema(f.Items),
		}
	default:
		types = []string{"string", "number"}
	}
	// a missing value is always reported as null
	types = append(types, "null")
	return map[string]any{"type": types}
}

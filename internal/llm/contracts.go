package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
)

// CustomField is one caller-defined field to extract instead of a type template.
type CustomField struct {
	Name        string `json:"field"`
	Description string `json:"description"`
}

// Key is the template key the model is asked to fill for this field.
func (f CustomField) Key() string {
	return NormalizeFieldName(f.Name)
}

// NormalizeFieldName lower-cases a field name and replaces spaces with underscores.
func NormalizeFieldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Mode says which branch of an ExtractionSpec is set.
type Mode int

const (
	ModeDocumentType Mode = iota
	ModeCustomFields
)

// ExtractionSpec is either a document type tag or a list of custom fields,
// never both. Build one with ForDocumentType or ForCustomFields.
type ExtractionSpec struct {
	mode    Mode
	docType constants.DocumentType
	fields  []CustomField
}

// ForDocumentType extracts using the template for t. An empty tag means auto-detect.
func ForDocumentType(t constants.DocumentType) ExtractionSpec {
	return ExtractionSpec{mode: ModeDocumentType, docType: t}
}

// ForCustomFields extracts only the given fields. Every field needs a name.
func ForCustomFields(fields []CustomField) (ExtractionSpec, error) {
	if len(fields) == 0 {
		return ExtractionSpec{}, common.NewAppError("INVALID_INPUT", "custom fields list is empty", common.ErrInvalidInput)
	}
	v := common.NewValidator()
	for i, f := range fields {
		v.Field(fmt.Sprintf("custom_fields[%d].field", i), f.Key(), common.Required, common.MaxLength(128))
		v.Field(fmt.Sprintf("custom_fields[%d].description", i), f.Description, common.MaxLength(1000))
	}
	if err := v.Err(); err != nil {
		return ExtractionSpec{}, err
	}
	return ExtractionSpec{mode: ModeCustomFields, fields: append([]CustomField(nil), fields...)}, nil
}

func (s ExtractionSpec) Mode() Mode { return s.mode }

func (s ExtractionSpec) IsCustom() bool { return s.mode == ModeCustomFields }

// DocumentType is the requested tag; empty in custom mode.
func (s ExtractionSpec) DocumentType() constants.DocumentType { return s.docType }

func (s ExtractionSpec) CustomFields() []CustomField {
	return append([]CustomField(nil), s.fields...)
}

// Label is what gets reported as the document type of a result.
func (s ExtractionSpec) Label() string {
	switch {
	case s.IsCustom():
		return string(constants.DocumentTypeCustom)
	case s.docType.IsAuto():
		return string(constants.DocumentTypeAuto)
	default:
		return string(s.docType)
	}
}

// Invoker sends one image plus prompt to a vision model and returns its raw text.
type Invoker interface {
	Generate(ctx context.Context, imageB64, prompt string) (string, error)
	Model() string
}

// ModelLister is implemented by backends that can report their installed models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/imaging"
	"github.com/joseph-ayodele/docparse/internal/llm"
)

// DocumentInput is one uploaded document. Filename is only reported back.
type DocumentInput struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Metadata is attached to every result under the _metadata key.
type Metadata struct {
	Filename          string   `json:"filename"`
	Size              int      `json:"size"`
	ContentType       string   `json:"content_type"`
	Model             string   `json:"model"`
	DocumentType      string   `json:"document_type"`
	CustomFieldsCount int      `json:"custom_fields_count"`
	ImageWidth        int      `json:"image_width"`
	ImageHeight       int      `json:"image_height"`
	SchemaValid       *bool    `json:"schema_valid,omitempty"`
	SchemaErrors      []string `json:"schema_errors,omitempty"`
	ProcessingMS      int64    `json:"processing_ms"`
}

// Result is a parsed record or a fallback record, both carrying metadata.
type Result struct {
	Outcome  constants.Outcome
	Record   map[string]any
	Metadata Metadata
	Raw      string
}

// Parsed reports whether the model reply was recovered as a JSON object.
func (r *Result) Parsed() bool { return r.Outcome == constants.OutcomeParsed }

// Processor runs the extraction pipeline: normalize, build schema and prompt,
// invoke the model once, recover JSON. It keeps no per-request state.
type Processor struct {
	logger      *slog.Logger
	normalizer  *imaging.Normalizer
	invoker     llm.Invoker
	checkSchema bool
}

type Option func(*Processor)

// WithSchemaCheck toggles validation of parsed records against the template.
func WithSchemaCheck(on bool) Option {
	return func(p *Processor) { p.checkSchema = on }
}

func NewProcessor(logger *slog.Logger, normalizer *imaging.Normalizer, invoker llm.Invoker, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{logger: logger, normalizer: normalizer, invoker: invoker, checkSchema: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model is the identifier of the model behind the invoker.
func (p *Processor) Model() string { return p.invoker.Model() }

// Run extracts a record from in according to spec. Format, decode and backend
// failures abort with a typed error; an unparseable model reply does not.
func (p *Processor) Run(ctx context.Context, in DocumentInput, spec llm.ExtractionSpec) (*Result, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, p.logger).With("filename", in.Filename, "document_type", spec.Label())

	if !p.normalizer.Allowed(in.ContentType) {
		log.Warn("pipeline.run.unsupported", "content_type", in.ContentType)
		return nil, common.KindError("UNSUPPORTED_FORMAT", common.ErrUnsupportedFormat,
			fmt.Sprintf("invalid file type: %s", in.ContentType), nil)
	}

	img, err := p.normalizer.Normalize(in.Data, in.ContentType)
	if err != nil {
		log.Error("pipeline.normalize.failed", "error", err)
		return nil, err
	}
	log.Debug("pipeline.normalize.ok", "w", img.Width, "h", img.Height, "format", img.Format)

	schema := llm.BuildSchema(spec)
	prompt := llm.ComposePrompt(spec, schema)

	raw, err := p.invoker.Generate(ctx, img.Base64, prompt)
	if err != nil {
		log.Error("pipeline.invoke.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	rec := llm.Recover(raw)
	meta := Metadata{
		Filename:          in.Filename,
		Size:              len(in.Data),
		ContentType:       constants.NormalizeContentType(in.ContentType),
		Model:             p.invoker.Model(),
		DocumentType:      spec.Label(),
		CustomFieldsCount: len(spec.CustomFields()),
		ImageWidth:        img.Width,
		ImageHeight:       img.Height,
	}

	if rec.Parsed() && p.checkSchema {
		problems, err := llm.CheckRecord(schema, rec.Record)
		if err != nil {
			log.Warn("pipeline.schema_check.error", "error", err)
		} else {
			valid := len(problems) == 0
			meta.SchemaValid = &valid
			meta.SchemaErrors = problems
		}
	}
	if !rec.Parsed() {
		log.Warn("pipeline.recover.fallback", "parse_error", rec.ParseError, "raw_chars", len(raw))
	}

	meta.ProcessingMS = time.Since(start).Milliseconds()
	rec.Record[llm.MetadataKey] = meta

	log.Info("pipeline.run.ok",
		"outcome", rec.Outcome,
		"size", meta.Size,
		"custom_fields", meta.CustomFieldsCount,
		"elapsed_ms", meta.ProcessingMS,
	)
	return &Result{Outcome: rec.Outcome, Record: rec.Record, Metadata: meta, Raw: raw}, nil
}

// Probe sends the document with a one-sentence description prompt and returns
// the raw reply. It checks the backend can see images at all.
func (p *Processor) Probe(ctx context.Context, in DocumentInput) (string, error) {
	img, err := p.normalizer.Normalize(in.Data, in.ContentType)
	if err != nil {
		return "", err
	}
	return p.invoker.Generate(ctx, img.Base64, llm.ProbePrompt)
}

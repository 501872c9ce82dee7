package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/joseph-ayodele/docparse/constants"
	"github.com/joseph-ayodele/docparse/internal/common"
)

// Encoding selects how the normalized raster is serialized.
type Encoding string

const (
	EncodingPNG  Encoding = "png"
	EncodingJPEG Encoding = "jpeg"
)

var (
	pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSOI  = []byte{0xFF, 0xD8}
)

// Config controls normalization. Zero values fall back to the defaults.
type Config struct {
	MaxDimension int
	DPI          int
	Encoding     Encoding
	JPEGQuality  int
	AllowedTypes []string
}

// NormalizedImage is an opaque RGB raster ready to be sent to a vision model.
type NormalizedImage struct {
	Image    *image.RGBA
	Width    int
	Height   int
	Format   Encoding
	MIMEType string
	Encoded  []byte
	Base64   string
}

// Normalizer turns uploaded document bytes into a bounded, opaque, encoded raster.
// It holds no per-request state and is safe for concurrent use.
type Normalizer struct {
	cfg     Config
	allowed map[string]struct{}
	pdf     PDFRenderer
	logger  *slog.Logger

	// encodePNG is swapped in tests to exercise the JPEG fallback.
	encodePNG func(*bytes.Buffer, image.Image) error
}

type Option func(*Normalizer)

// WithPDFRenderer overrides the default MuPDF renderer.
func WithPDFRenderer(r PDFRenderer) Option {
	return func(n *Normalizer) { n.pdf = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

func NewNormalizer(cfg Config, opts ...Option) *Normalizer {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 768
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingPNG
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 85
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = constants.AllowedContentTypes
	}

	n := &Normalizer{
		cfg:     cfg,
		allowed: make(map[string]struct{}, len(cfg.AllowedTypes)),
		pdf:     FitzRenderer{},
		logger:  slog.Default(),
		encodePNG: func(buf *bytes.Buffer, img image.Image) error {
			return png.Encode(buf, img)
		},
	}
	for _, ct := range cfg.AllowedTypes {
		n.allowed[constants.NormalizeContentType(ct)] = struct{}{}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Allowed reports whether contentType is on the allow-list.
func (n *Normalizer) Allowed(contentType string) bool {
	_, ok := n.allowed[constants.NormalizeContentType(contentType)]
	return ok
}

// MaxDimension is the longest edge a normalized image may have.
func (n *Normalizer) MaxDimension() int { return n.cfg.MaxDimension }

// Normalize decodes data as contentType, flattens it onto white, bounds its
// longest edge and encodes it.
func (n *Normalizer) Normalize(data []byte, contentType string) (*NormalizedImage, error) {
	start := time.Now()
	ct := constants.NormalizeContentType(contentType)
	if !n.Allowed(ct) {
		return nil, common.KindError("UNSUPPORTED_FORMAT", common.ErrUnsupportedFormat,
			fmt.Sprintf("content type %q is not accepted", contentType), nil)
	}
	if len(data) == 0 {
		return nil, common.KindError("DECODE_ERROR", common.ErrDecode, "empty document", nil)
	}

	src, err := n.decode(data, ct)
	if err != nil {
		return nil, err
	}

	flat := flatten(src)
	srcW, srcH := flat.Bounds().Dx(), flat.Bounds().Dy()
	out := n.resize(flat)

	encoded, format, err := n.encode(out)
	if err != nil {
		return nil, err
	}

	img := &NormalizedImage{
		Image:    out,
		Width:    out.Bounds().Dx(),
		Height:   out.Bounds().Dy(),
		Format:   format,
		MIMEType: "image/" + string(format),
		Encoded:  encoded,
		Base64:   base64.StdEncoding.EncodeToString(encoded),
	}
	n.logger.Debug("imaging.normalize.ok",
		"content_type", ct,
		"src_w", srcW, "src_h", srcH,
		"w", img.Width, "h", img.Height,
		"format", format,
		"bytes", len(encoded),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return img, nil
}

func (n *Normalizer) decode(data []byte, ct string) (image.Image, error) {
	switch {
	case ct == constants.ContentTypePDF:
		return n.pdf.RenderFirstPage(data, n.cfg.DPI)
	case constants.IsJPEG(ct):
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, common.KindError("DECODE_ERROR", common.ErrDecode, "decode jpeg", err)
		}
		return img, nil
	case ct == constants.ContentTypePNG:
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, common.KindError("DECODE_ERROR", common.ErrDecode, "decode png", err)
		}
		return img, nil
	default:
		// allow-listed by config but we have no decoder for it
		return nil, common.KindError("UNSUPPORTED_FORMAT", common.ErrUnsupportedFormat,
			fmt.Sprintf("no decoder for %q", ct), nil)
	}
}

// flatten composites src over opaque white. Images without alpha pass through
// unchanged apart from the color model conversion.
func flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// targetSize bounds the longest edge to max, keeping aspect ratio. Never
// upscales. The short edge is truncated, with a floor of one pixel.
func targetSize(w, h, max int) (int, int) {
	switch {
	case w <= max && h <= max:
		return w, h
	case w >= h:
		return max, atLeastOne(h * max / w)
	default:
		return atLeastOne(w * max / h), max
	}
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func (n *Normalizer) resize(src *image.RGBA) *image.RGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	tw, th := targetSize(w, h, n.cfg.MaxDimension)
	if tw == w && th == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func (n *Normalizer) encode(img *image.RGBA) ([]byte, Encoding, error) {
	if n.cfg.Encoding == EncodingPNG {
		var buf bytes.Buffer
		err := n.encodePNG(&buf, img)
		if err == nil && bytes.HasPrefix(buf.Bytes(), pngMagic) {
			return buf.Bytes(), EncodingPNG, nil
		}
		n.logger.Warn("imaging.encode.png_fallback", "error", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.cfg.JPEGQuality}); err != nil {
		return nil, "", common.KindError("CONVERSION_FAILURE", common.ErrConversion, "encode jpeg", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), jpegSOI) {
		return nil, "", common.KindError("CONVERSION_FAILURE", common.ErrConversion, "encoded jpeg has no SOI marker", nil)
	}
	return buf.Bytes(), EncodingJPEG, nil
}

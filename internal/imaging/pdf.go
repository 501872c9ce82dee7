package imaging

import (
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/joseph-ayodele/docparse/internal/common"
)

// PDFRenderer rasterizes the first page of a PDF.
type PDFRenderer interface {
	RenderFirstPage(data []byte, dpi int) (image.Image, error)
}

// FitzRenderer renders with MuPDF through go-fitz.
type FitzRenderer struct{}

func (FitzRenderer) RenderFirstPage(data []byte, dpi int) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, common.KindError("DECODE_ERROR", common.ErrDecode, "open pdf", err)
	}
	defer doc.Close()
	return renderFirst(doc, dpi)
}

// pageSource is the part of *fitz.Document we use.
type pageSource interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
}

func renderFirst(doc pageSource, dpi int) (image.Image, error) {
	if doc.NumPage() == 0 {
		return nil, common.KindError("CONVERSION_FAILURE", common.ErrConversion, "pdf has no pages", nil)
	}
	img, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		return nil, common.KindError("CONVERSION_FAILURE", common.ErrConversion, "render page 1", err)
	}
	return img, nil
}

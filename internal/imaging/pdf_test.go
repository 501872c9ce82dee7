package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/internal/common"
)

// minimalPDF builds a one-page US Letter PDF with a filled rectangle and a
// correct xref table.
func minimalPDF(t *testing.T) []byte {
	t.Helper()
	content := "0 0 1 rg 72 72 200 200 re f"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestNormalizeRendersPDFWithMuPDF(t *testing.T) {
	n := NewNormalizer(Config{})

	out, err := n.Normalize(minimalPDF(t), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, EncodingPNG, out.Format)
	assert.Equal(t, pngMagic, decodedPrefix(t, out.Base64, len(pngMagic)))
	assert.Equal(t, 768, out.Height)
	assert.Equal(t, 593, out.Width)
	assert.LessOrEqual(t, max(out.Width, out.Height), 768)
}

func TestFitzRendererRejectsGarbage(t *testing.T) {
	_, err := FitzRenderer{}.RenderFirstPage([]byte("definitely not a pdf"), 150)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDecode))

	_, err = NewNormalizer(Config{}).Normalize([]byte("definitely not a pdf"), "application/pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDecode))
}

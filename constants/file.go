package constants

import (
	"mime"
	"strings"
)

// Content types accepted for extraction. "image/jpg" is a non-standard alias
// some clients still send for JPEG.
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypeJPG  = "image/jpg"
	ContentTypePNG  = "image/png"
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AllowedContentTypes is the default upload allow-list.
var AllowedContentTypes = []string{ContentTypeJPEG, ContentTypePNG, ContentTypeJPG, ContentTypePDF}

// AllowedExtensions holds the file extensions picked up by directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

var extContentTypes = map[string]string{
	"pdf":  ContentTypePDF,
	"jpg":  ContentTypeJPEG,
	"jpeg": ContentTypeJPEG,
	"png":  ContentTypePNG,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForExt maps a file extension to the content type we decode it as.
// Returns "" for extensions we don't handle.
func ContentTypeForExt(ext string) string {
	return extContentTypes[NormalizeExt(ext)]
}

// NormalizeContentType lowercases a content type and drops media-type
// parameters ("image/png; charset=binary" -> "image/png").
func NormalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return strings.ToLower(mt)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsJPEG reports whether ct names JPEG, including the image/jpg alias.
func IsJPEG(ct string) bool {
	ct = NormalizeContentType(ct)
	return ct == ContentTypeJPEG || ct == ContentTypeJPG
}

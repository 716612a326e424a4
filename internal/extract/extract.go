// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

const (
	TypePDF      = "application/pdf"
	TypePlain    = "text/plain"
	TypeRTF      = "application/rtf"
	TypeMarkdown = "text/markdown"
)

var aliases = map[string]string{
	"text/rtf":          TypeRTF,
	"text/x-markdown":   TypeMarkdown,
	"application/x-pdf": TypePDF,
}

var extensions = map[string]string{
	".pdf":      TypePDF,
	".txt":      TypePlain,
	".text":     TypePlain,
	".rtf":      TypeRTF,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
}

type Func func(data []byte) (string, error)

// Extractor dispatches on the normalized content type.
type Extractor struct {
	funcs map[string]Func
}

// New returns an extractor for the supported allow-list: pdf, plain text,
// rtf and markdown.
func New() *Extractor {
	return &Extractor{funcs: map[string]Func{
		TypePDF:      extractPDF,
		TypePlain:    extractPlain,
		TypeRTF:      extractRTF,
		TypeMarkdown: extractMarkdown,
	}}
}

// Extract returns the document text. Unsupported types and documents
// without any text are input errors.
func (e *Extractor) Extract(data []byte, contentType string) (string, error) {
	ct := NormalizeContentType(contentType)
	fn, ok := e.funcs[ct]
	if !ok {
		return "", fmt.Errorf("%w: %q", appErr.ErrUnsupportedType, contentType)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", appErr.ErrInvalid, ct, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", appErr.ErrEmptyDocument
	}
	return text, nil
}

func (e *Extractor) Supported(contentType string) bool {
	_, ok := e.funcs[NormalizeContentType(contentType)]
	return ok
}

// NormalizeContentType lowercases, drops parameters such as charset and
// resolves aliases.
func NormalizeContentType(contentType string) string {
	ct := strings.TrimSpace(contentType)
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mediaType
	} else if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	if alias, ok := aliases[ct]; ok {
		return alias
	}
	return ct
}

// DetectContentType prefers a declared type and falls back to the file
// extension when the client sent none or a generic one.
func DetectContentType(filename, declared string) string {
	ct := NormalizeContentType(declared)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	return ct
}

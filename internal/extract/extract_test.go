package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/policyrag/internal/pkg/errors"
)

func TestNormalizeContentType(t *testing.T) {
	tests := map[string]string{
		"text/plain; charset=utf-8":   TypePlain,
		" Application/PDF ":           TypePDF,
		"text/rtf":                    TypeRTF,
		"text/x-markdown":             TypeMarkdown,
		"text/markdown;charset=UTF-8": TypeMarkdown,
		"":                            "",
	}
	for in, want := range tests {
		require.Equal(t, want, NormalizeContentType(in), in)
	}
}

func TestDetectContentType(t *testing.T) {
	require.Equal(t, TypePDF, DetectContentType("leave.PDF", "application/octet-stream"))
	require.Equal(t, TypeMarkdown, DetectContentType("handbook.md", ""))
	require.Equal(t, TypePlain, DetectContentType("handbook.md", "text/plain; charset=utf-8"))
	require.Equal(t, "application/zip", DetectContentType("x.zip", "application/zip"))
}

func TestExtractRejectsUnsupportedType(t *testing.T) {
	_, err := New().Extract([]byte("PK.."), "application/zip")
	require.ErrorIs(t, err, appErr.ErrUnsupportedType)
	require.True(t, appErr.IsInput(err))
	require.False(t, New().Supported("image/png"))
	require.True(t, New().Supported("text/rtf"))
}

func TestExtractRejectsEmptyText(t *testing.T) {
	_, err := New().Extract([]byte("  \n\t "), "text/plain")
	require.ErrorIs(t, err, appErr.ErrEmptyDocument)
	require.True(t, appErr.IsInput(err))
}

func TestExtractPlain(t *testing.T) {
	text, err := New().Extract(append([]byte{0xEF, 0xBB, 0xBF}, []byte("line one\r\nline two")...), "text/plain; charset=utf-8")
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", text)
}

func TestExtractRTF(t *testing.T) {
	doc := `{\rtf1\ansi\deff0{\fonttbl{\f0 Times New Roman;}}{\colortbl;\red0\green0\blue0;}
{\*\generator Writer;}\f0\fs24 Annual leave\par
Employees get 20 days \'96 see HR\par
Caf\'e9 \'80 budget \{fixed\}\par}`
	text, err := New().Extract([]byte(doc), "application/rtf")
	require.NoError(t, err)
	require.Equal(t, "Annual leave\nEmployees get 20 days – see HR\nCafé € budget {fixed}\n", text)
}

func TestExtractRTFRejectsGarbage(t *testing.T) {
	_, err := New().Extract([]byte("not rtf"), "text/rtf")
	require.True(t, appErr.IsInput(err))
}

func TestExtractMarkdown(t *testing.T) {
	md := "# Leave Policy\n\nStaff accrue **20 days** per\nyear.\n\n- Ask your manager\n- Use the portal\n\n```\napprove(request)\n```\n\n<div>ignored</div>\n"
	text, err := New().Extract([]byte(md), "text/markdown")
	require.NoError(t, err)
	require.Equal(t, "Leave Policy\n\nStaff accrue 20 days per\nyear.\n\nAsk your manager\nUse the portal\n\napprove(request)", text)
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	_, err := New().Extract([]byte("%PDF-1.4 truncated"), "application/pdf")
	require.Error(t, err)
	require.True(t, appErr.IsInput(err))
}

package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"
)

// Renderer turns a completed job artifact into a downloadable document.
// The HTTP layer only depends on this interface; the concrete format is a
// collaborator detail.
type Renderer interface {
	Render(title, body string) ([]byte, string, string, error)
}

// PDFRenderer renders markdown-ish note text into a PDF. It understands the
// subset the models actually produce: #/##/### headings, - and * bullets,
// and plain paragraphs; everything else is printed as-is.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(title, body string) ([]byte, string, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Lectary", false)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 10, tr(title), "", "L", false)
	pdf.Ln(4)

	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimRight(line, " \t")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			pdf.Ln(3)
		case strings.HasPrefix(trimmed, "### "):
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 7, tr(strings.TrimPrefix(trimmed, "### ")), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
		case strings.HasPrefix(trimmed, "## "):
			pdf.SetFont("Helvetica", "B", 14)
			pdf.MultiCell(0, 8, tr(strings.TrimPrefix(trimmed, "## ")), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
		case strings.HasPrefix(trimmed, "# "):
			pdf.SetFont("Helvetica", "B", 16)
			pdf.MultiCell(0, 9, tr(strings.TrimPrefix(trimmed, "# ")), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, tr("  • "+stripInlineMarkup(trimmed[2:])), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, tr(stripInlineMarkup(trimmed)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", "", fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), "application/pdf", "pdf", nil
}

// stripInlineMarkup drops the inline markers a plain-text render cannot
// express.
func stripInlineMarkup(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "`", "")
	return s
}

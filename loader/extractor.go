package loader

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractionError marks a single uploaded file that could not be processed.
// The upload batch continues with the remaining files.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Filename, e.Err)
}

func (e ExtractionError) Unwrap() error { return e.Err }

// Extractor converts an uploaded file into plain text.
type Extractor interface {
	Extract(path string) (string, error)
}

// PDFExtractor extracts page text from a PDF file, concatenated in page
// order. The file is validated with pdfcpu first so corrupt uploads fail
// with a clear error instead of a half-parsed result.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Extract(path string) (string, error) {
	name := filepath.Base(path)

	if err := pdfapi.ValidateFile(path, pdfapi.LoadConfiguration()); err != nil {
		return "", ExtractionError{Filename: name, Err: fmt.Errorf("not a valid PDF: %w", err)}
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", ExtractionError{Filename: name, Err: err}
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("[EXTRACT] error extracting page %d of %s: %v", i, name, err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", ExtractionError{Filename: name, Err: fmt.Errorf("no text extracted")}
	}

	return sb.String(), nil
}

// PaperName derives a readable paper name from an uploaded filename.
func PaperName(filename string) string {
	name := filepath.Base(filename)
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = name[:len(name)-4]
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

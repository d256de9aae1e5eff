package reader

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ReadPDF concatenates the text of every page, separated by blank lines.
// Pages whose content stream cannot be decoded contribute nothing.
func ReadPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ParseError{Kind: "PdfReadError", Err: fmt.Errorf("%v", r)}
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", &ParseError{Kind: "PdfReadError", Err: err}
	}
	defer func() { _ = f.Close() }()

	var parts []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		if t := strings.TrimSpace(pageText(page)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func pageText(p pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	t, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return t
}

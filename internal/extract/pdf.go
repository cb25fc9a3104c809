package extract

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageSeparator joins PDF pages.
const PageSeparator = "\n\n"

func readPDF(path string) (map[string]any, string, error) {
	f, r, err := openPDF(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, pageText(r, i, path))
	}
	return nil, strings.Join(pages, PageSeparator), nil
}

// openPDF guards against the parser panicking on malformed input.
func openPDF(path string) (f *os.File, r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return file, reader, nil
}

// pageText extracts one page. A page that fails or panics yields "".
func pageText(r *pdf.Reader, i int, path string) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("pdf_page_unreadable", slog.String("path", path), slog.Int("page", i), slog.Any("panic", rec))
			text = ""
		}
	}()

	p := r.Page(i)
	if p.V.IsNull() {
		return ""
	}
	out, err := p.GetPlainText(nil)
	if err != nil {
		slog.Warn("pdf_page_unreadable", slog.String("path", path), slog.Int("page", i), slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(out)
}

package extract

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/academykb/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.rtf", "{\\rtf1}")

	_, err := New().Extract(path)

	require.Error(t, err)
	assert.Equal(t, kberrors.KindUnsupportedFormat, kberrors.GetKind(err))
	assert.False(t, Supported(path))
}

func TestExtract_MissingFileIsIOFailure(t *testing.T) {
	_, err := New().Extract(filepath.Join(t.TempDir(), "gone.md"))

	require.Error(t, err)
	assert.Equal(t, kberrors.KindIOFailure, kberrors.GetKind(err))
}

func TestExtract_MarkdownWithFrontMatter(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Post.MD", "\ufeff---\r\ntitle: Light\r\n---\r\nBody text\r\n")

	res, err := New().Extract(path)

	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, res.Format)
	assert.Equal(t, "Light", res.Meta["title"])
	assert.Equal(t, "Body text\n", res.Body)
}

func TestExtract_CSVQuestionAnswer(t *testing.T) {
	// Given: a CSV with question/answer headers
	path := writeFile(t, t.TempDir(), "faq.csv", "question,answer\n\"What is ISO?\",\"Sensor sensitivity.\"\n")

	// When: extracting
	res, err := New().Extract(path)

	// Then: the body is a Q/A block
	require.NoError(t, err)
	assert.Contains(t, res.Body, "### Q: What is ISO?\nA: Sensor sensitivity.")
	assert.Nil(t, res.Meta)
}

func TestCSVToText_QAHeaderCaseInsensitiveAndBlankRows(t *testing.T) {
	out, err := CSVToText(" Question , ANSWER \nq1,a1\n,\nq2,\n")

	require.NoError(t, err)
	assert.Equal(t, "### Q: q1\nA: a1\n\n### Q: q2\nA: \n", out)
}

func TestCSVToText_Table(t *testing.T) {
	out, err := CSVToText("lens,focal length\n50mm prime, 50 \nzoom,24-70\n")

	require.NoError(t, err)
	assert.Equal(t, "|lens|focal length|\n| --- | --- |\n|50mm prime|50|\n|zoom|24-70|", out)
}

func TestCSVToText_ThreeColumnsWithQuestionIsTable(t *testing.T) {
	out, err := CSVToText("question,answer,source\nq,a,s\n")

	require.NoError(t, err)
	assert.Contains(t, out, "|question|answer|source|")
	assert.NotContains(t, out, "### Q:")
}

func TestCSVToText_Empty(t *testing.T) {
	out, err := CSVToText("")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestExtract_HTML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "page.html",
		"<html><head><title>x</title></head><body><h1>Composition</h1><p>Rule of <b>thirds</b></p></body></html>")

	res, err := New().Extract(path)

	require.NoError(t, err)
	assert.Equal(t, FormatHTML, res.Format)
	assert.Contains(t, res.Body, "Composition")
	assert.Contains(t, res.Body, "thirds")
	assert.NotContains(t, res.Body, "<p>")
}

func TestHTMLToText_FallsBackToStripping(t *testing.T) {
	// Given: a converter that fails
	orig := htmlConverter
	t.Cleanup(func() { htmlConverter = orig })
	htmlConverter = func(string) (string, error) { return "", errors.New("converter broke") }

	// When: converting
	out := HTMLToText("<div><script>alert(1)</script><p>Fill &amp; flash</p><p>Bounce</p></div>")

	// Then: tag-stripped text is used
	assert.Equal(t, "Fill & flash\nBounce", out)
}

func TestHTMLToText_RecoversFromPanic(t *testing.T) {
	orig := htmlConverter
	t.Cleanup(func() { htmlConverter = orig })
	htmlConverter = func(string) (string, error) { panic("boom") }

	assert.Equal(t, "ok", HTMLToText("<p>ok</p>"))
}

func TestExtract_DOCX(t *testing.T) {
	// Given: a minimal docx archive with two paragraphs
	path := filepath.Join(t.TempDir(), "notes.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>White </w:t></w:r><w:r><w:t>balance</w:t></w:r></w:p>
<w:p><w:r><w:t>Kelvin scale</w:t></w:r></w:p>
</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	// When: extracting
	res, err := New().Extract(path)

	// Then: paragraphs are joined with blank lines
	require.NoError(t, err)
	assert.Equal(t, "White balance\n\nKelvin scale", res.Body)
}

func TestExtract_CorruptDOCXIsIOFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.docx", "not a zip")

	_, err := New().Extract(path)

	assert.Equal(t, kberrors.KindIOFailure, kberrors.GetKind(err))
}

func TestExtract_CorruptPDFIsIOFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.pdf", "%PDF-1.4\nthis is not really a pdf")

	_, err := New().Extract(path)

	require.Error(t, err)
	assert.Equal(t, kberrors.KindIOFailure, kberrors.GetKind(err))
}

func TestExtract_WithReaderOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.txt", "ignored")
	e := New(WithReader(FormatText, ReaderFunc(func(string) (map[string]any, string, error) {
		return map[string]any{"k": "v"}, "stubbed", nil
	})))

	res, err := e.Extract(path)

	require.NoError(t, err)
	assert.Equal(t, "stubbed", res.Body)
}

func TestExtensions(t *testing.T) {
	exts := Extensions()

	assert.Contains(t, exts, ".md")
	assert.Contains(t, exts, ".htm")
	assert.Contains(t, exts, ".csv")
	assert.IsNonDecreasing(t, exts)
}

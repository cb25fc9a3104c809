package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParagraphSeparator joins DOCX paragraphs.
const ParagraphSeparator = "\n\n"

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []struct {
		Content string `xml:",chardata"`
	} `xml:"t"`
	Tabs []struct{} `xml:"tab"`
}

func readDOCX(path string) (map[string]any, string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", err
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, "", err
		}
		body, err := docxParagraphs(data)
		return nil, body, err
	}
	return nil, "", fmt.Errorf("word/document.xml not found")
}

// docxParagraphs concatenates the text of every body paragraph.
func docxParagraphs(data []byte) (string, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	paras := make([]string, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		var sb strings.Builder
		for _, r := range p.Runs {
			if len(r.Tabs) > 0 {
				sb.WriteString("\t")
			}
			for _, t := range r.Text {
				sb.WriteString(t.Content)
			}
		}
		paras = append(paras, sb.String())
	}
	return strings.Join(paras, ParagraphSeparator), nil
}

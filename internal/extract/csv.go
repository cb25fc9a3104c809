package extract

import (
	"encoding/csv"
	"strings"
)

func readCSV(path string) (map[string]any, string, error) {
	text, err := readFile(path)
	if err != nil {
		return nil, "", err
	}
	body, err := CSVToText(text)
	return nil, body, err
}

// CSVToText renders CSV as Q/A blocks when the header is exactly
// question,answer (case-insensitive) and as a Markdown table otherwise.
func CSVToText(text string) (string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	if isQAHeader(headers) {
		return renderQA(rows[1:]), nil
	}
	return renderTable(headers, rows[1:]), nil
}

func isQAHeader(headers []string) bool {
	return len(headers) == 2 &&
		strings.EqualFold(headers[0], "question") &&
		strings.EqualFold(headers[1], "answer")
}

func renderQA(rows [][]string) string {
	blocks := make([]string, 0, len(rows))
	for _, row := range rows {
		q, a := cell(row, 0), cell(row, 1)
		if q == "" && a == "" {
			continue
		}
		blocks = append(blocks, "### Q: "+q+"\nA: "+a+"\n")
	}
	return strings.Join(blocks, "\n")
}

func renderTable(headers []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString("|" + strings.Join(headers, "|") + "|\n")

	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = " --- "
	}
	sb.WriteString("|" + strings.Join(sep, "|") + "|\n")

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i := range row {
			cells[i] = cell(row, i)
		}
		lines = append(lines, "|"+strings.Join(cells, "|")+"|")
	}
	sb.WriteString(strings.Join(lines, "\n"))
	return sb.String()
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

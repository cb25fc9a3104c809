package extract

import (
	"bufio"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// readFile reads a UTF-8 text file, dropping a BOM and normalizing line endings.
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	s := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}

func readFrontMatterText(path string) (map[string]any, string, error) {
	text, err := readFile(path)
	if err != nil {
		return nil, "", err
	}
	meta, body := ParseFrontMatter(text)
	return meta, body, nil
}

// ParseFrontMatter splits a leading front-matter block from text.
// A "---" block is YAML, with a permissive key: value fallback when the YAML
// is malformed; a "+++" block is TOML. Text without a complete block is
// returned unchanged with nil metadata.
func ParseFrontMatter(text string) (map[string]any, string) {
	switch {
	case strings.HasPrefix(text, "---\n"):
		raw, body, ok := splitBlock(text, "---")
		if !ok {
			return nil, text
		}
		return parseYAMLBlock(raw), body
	case strings.HasPrefix(text, "+++\n"):
		raw, body, ok := splitBlock(text, "+++")
		if !ok {
			return nil, text
		}
		meta := map[string]any{}
		if err := toml.Unmarshal([]byte(raw), &meta); err != nil {
			return map[string]any{}, body
		}
		return meta, body
	default:
		return nil, text
	}
}

// splitBlock finds the closing delimiter line after the opening one.
func splitBlock(text, delim string) (raw, body string, ok bool) {
	rest := text[len(delim)+1:]
	if strings.HasPrefix(rest, delim+"\n") || rest == delim {
		return "", strings.TrimPrefix(rest[len(delim):], "\n"), true
	}
	marker := "\n" + delim
	from := 0
	for {
		i := strings.Index(rest[from:], marker)
		if i < 0 {
			return "", "", false
		}
		end := from + i + len(marker)
		if end == len(rest) {
			return rest[:from+i], "", true
		}
		if rest[end] == '\n' {
			return rest[:from+i], rest[end+1:], true
		}
		from = end
	}
}

func parseYAMLBlock(raw string) map[string]any {
	var meta map[string]any
	if err := yaml.Unmarshal([]byte(raw), &meta); err == nil {
		if meta == nil {
			meta = map[string]any{}
		}
		return meta
	}
	return parsePermissive(raw)
}

// parsePermissive reads "key: value" lines, "[a, b]" bracketed lists and
// "- item" continuation lines. Lines it cannot read are skipped.
func parsePermissive(raw string) map[string]any {
	meta := map[string]any{}
	var listKey string

	sc := bufio.NewScanner(strings.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasPrefix(trimmed, "- ") || trimmed == "-" {
			if listKey != "" {
				item := unquote(strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
				list, _ := meta[listKey].([]any)
				meta[listKey] = append(list, item)
			}
			continue
		}

		key, value, found := strings.Cut(trimmed, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			listKey = ""
			continue
		}
		value = strings.TrimSpace(value)

		switch {
		case value == "":
			meta[key] = []any{}
			listKey = key
		case strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]"):
			meta[key] = parseInlineList(value[1 : len(value)-1])
			listKey = ""
		default:
			meta[key] = unquote(value)
			listKey = ""
		}
	}

	for k, v := range meta {
		if list, ok := v.([]any); ok && len(list) == 0 {
			meta[k] = nil
		}
	}
	return meta
}

func parseInlineList(s string) []any {
	out := []any{}
	for _, part := range strings.Split(s, ",") {
		if part = unquote(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

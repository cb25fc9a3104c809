package extract

import (
	"html"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockClose    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	blockOpen     = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	lineBreaks    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// htmlConverter converts HTML to Markdown. It is a variable so tests can
// force the fallback path.
var htmlConverter = func(src string) (string, error) {
	return md.NewConverter("", true, nil).ConvertString(src)
}

func readHTML(path string) (map[string]any, string, error) {
	text, err := readFile(path)
	if err != nil {
		return nil, "", err
	}
	meta, body := ParseFrontMatter(text)
	return meta, HTMLToText(body), nil
}

// HTMLToText converts HTML to Markdown, falling back to tag stripping when
// the converter fails or panics.
func HTMLToText(src string) (out string) {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			out = StripTags(src)
		}
	}()

	converted, err := htmlConverter(src)
	if err != nil {
		return StripTags(src)
	}
	return strings.TrimSpace(converted)
}

// StripTags removes markup and collapses whitespace, keeping block breaks.
func StripTags(src string) string {
	s := scriptTag.ReplaceAllString(src, "")
	s = styleTag.ReplaceAllString(s, "")
	s = noscriptTag.ReplaceAllString(s, "")
	s = headTag.ReplaceAllString(s, "")
	s = htmlComments.ReplaceAllString(s, "")
	s = blockOpen.ReplaceAllString(s, "\n")
	s = blockClose.ReplaceAllString(s, "\n")
	s = lineBreaks.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = multiSpaces.ReplaceAllString(s, " ")
	s = multiNewlines.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

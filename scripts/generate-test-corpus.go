//go:build ignore

// Package main generates a synthetic lesson tree for benchmarking rebuilds.
// Usage: go run scripts/generate-test-corpus.go -files 500 -output testdata/bench/raw
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 500, "Number of files to generate")
	outputDir = flag.String("output", "testdata/bench/raw", "Output directory (the raw content root)")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	paras     = flag.Int("paragraphs", 12, "Paragraphs per lesson")
)

var lessonTemplate = `---
title: %s
source: lesson
url: https://academy.example.com/lessons/%s
tags: [%s, %s]
categories: [%s]
last_updated: 2024-%02d-%02d
---
# %s

%s
`

var transcriptTemplate = `Video transcript: %s

%s
`

var htmlTemplate = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<nav>Academy home</nav>
<article>
<h1>%s</h1>
%s
</article>
<footer>Copyright Academy</footer>
</body>
</html>
`

var (
	topics = []string{
		"aperture", "shutter speed", "ISO", "white balance", "metering",
		"composition", "depth of field", "focal length", "flash", "exposure",
		"histogram", "autofocus", "bracketing", "long exposure", "noise",
	}
	genres = []string{
		"portrait", "landscape", "street", "wildlife", "macro",
		"astrophotography", "product", "wedding", "sports", "architecture",
	}
	gear = []string{
		"50mm prime", "70-200mm zoom", "tripod", "softbox", "reflector",
		"ND filter", "polarizer", "speedlight", "wide-angle lens", "macro lens",
	}
	// Every template takes a topic then a piece of gear.
	advice = []string{
		"Start with %s on a %s, then adjust in one-stop increments while checking the histogram.",
		"When %s is the problem, a %s often solves it without raising ISO.",
		"Most beginners underestimate how %s changes what a %s can do.",
		"Review your %s shots from the %s at 100%% before leaving the location.",
		"Pair %s with a %s when the light is flat and directional contrast is missing.",
		"Practice %s with the %s until the settings become muscle memory.",
	}
)

func main() {
	flag.Parse()
	rand.Seed(*seed)

	subdirs := []string{"lessons", "transcripts", "articles", "qa"}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(filepath.Join(*outputDir, subdir), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating subdirectory %s: %v\n", subdir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d files in %s...\n", *numFiles, *outputDir)

	mdFiles := *numFiles * 50 / 100   // 50% Markdown lessons
	txtFiles := *numFiles * 25 / 100  // 25% transcripts
	htmlFiles := *numFiles * 20 / 100 // 20% HTML articles
	csvFiles := *numFiles - mdFiles - txtFiles - htmlFiles

	generated := 0
	for _, gen := range []struct {
		n  int
		fn func(int) error
	}{
		{mdFiles, generateLesson},
		{txtFiles, generateTranscript},
		{htmlFiles, generateArticle},
		{csvFiles, generateQA},
	} {
		for i := 0; i < gen.n; i++ {
			if err := gen.fn(i); err != nil {
				fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
				continue
			}
			generated++
		}
	}

	fmt.Printf("Generated %d files successfully.\n", generated)
}

func randomWord(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

func paragraph() string {
	var sentences []string
	for i := 0; i < 3+rand.Intn(4); i++ {
		tmpl := randomWord(advice)
		sentences = append(sentences, fmt.Sprintf(tmpl, randomWord(topics), randomWord(gear)))
	}
	return strings.Join(sentences, " ")
}

func body(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = paragraph()
	}
	return out
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

func generateLesson(index int) error {
	topic := randomWord(topics)
	genre := randomWord(genres)
	title := fmt.Sprintf("%s for %s photography", strings.Title(topic), genre)
	s := fmt.Sprintf("%s-%d", slug(title), index)

	content := fmt.Sprintf(lessonTemplate,
		title, s, slug(topic), slug(genre), genre,
		1+rand.Intn(12), 1+rand.Intn(28),
		title, strings.Join(body(*paras), "\n\n"))

	filename := filepath.Join(*outputDir, "lessons", s+".md")
	return os.WriteFile(filename, []byte(content), 0644)
}

func generateTranscript(index int) error {
	topic := randomWord(topics)
	title := fmt.Sprintf("Live session on %s", topic)

	content := fmt.Sprintf(transcriptTemplate, title, strings.Join(body(*paras*2), "\n"))
	filename := filepath.Join(*outputDir, "transcripts", fmt.Sprintf("%s-%d.txt", slug(topic), index))
	return os.WriteFile(filename, []byte(content), 0644)
}

func generateArticle(index int) error {
	genre := randomWord(genres)
	title := fmt.Sprintf("Field notes: %s", genre)

	var html strings.Builder
	for _, p := range body(*paras) {
		html.WriteString("<p>" + p + "</p>\n")
	}
	content := fmt.Sprintf(htmlTemplate, title, title, html.String())
	filename := filepath.Join(*outputDir, "articles", fmt.Sprintf("%s-%d.html", slug(genre), index))
	return os.WriteFile(filename, []byte(content), 0644)
}

func generateQA(index int) error {
	filename := filepath.Join(*outputDir, "qa", fmt.Sprintf("faq-%d.csv", index))
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"question", "answer"})
	for i := 0; i < 10+rand.Intn(20); i++ {
		q := fmt.Sprintf("How do I use %s for %s?", randomWord(topics), randomWord(genres))
		_ = w.Write([]string{q, paragraph()})
	}
	w.Flush()
	return w.Error()
}

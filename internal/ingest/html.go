package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/personaforge/personaforge/internal/model"
)

// LoadSource reads one file into an input source. HTML exports (survey
// tools tend to produce them) are reduced to their text; everything else
// is taken as plain text.
func LoadSource(path string, meta model.StatementMeta) (*model.InputSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = ExtractHTMLText(text)
		if err != nil {
			return nil, fmt.Errorf("parse html %s: %w", path, err)
		}
	}

	return &model.InputSource{
		ID:        filepath.Base(path),
		Type:      "interview",
		Text:      text,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}, nil
}

// LoadSources loads every regular file in the given paths. A directory is
// expanded one level deep; dotfiles are skipped.
func LoadSources(paths []string, meta model.StatementMeta) ([]model.InputSource, error) {
	var sources []model.InputSource
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			src, err := LoadSource(path, meta)
			if err != nil {
				return nil, err
			}
			sources = append(sources, *src)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", path, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			src, err := LoadSource(filepath.Join(path, entry.Name()), meta)
			if err != nil {
				return nil, err
			}
			sources = append(sources, *src)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no input sources found")
	}
	return sources, nil
}

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"head":     true,
	"noscript": true,
}

// blockElements get a newline after their content so statement splitting
// sees paragraph boundaries.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "section": true, "article": true,
}

// ExtractHTMLText strips markup and returns the text content with block
// boundaries preserved as newlines.
func ExtractHTMLText(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n")
		}
	}
	walk(doc)

	// Collapse runs of blank lines left by nested blocks.
	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if s := strings.TrimSpace(line); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

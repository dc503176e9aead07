package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Chunk is one semantic unit of a markdown document together with the
// header hierarchy it appeared under.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

// ChunkMarkdown splits markdown content at H1, H2, and H3 headers.
// Header-based splitting keeps related prose together, which retrieves
// better than fixed-size windows. Each chunk records its source file and
// the headers in effect where it started.
func ChunkMarkdown(content, sourceFile string) []Chunk {
	var chunks []Chunk

	var h1, h2, h3 string
	var current []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(current, "\n"))
		if text != "" {
			chunks = append(chunks, Chunk{
				Text: text,
				Metadata: map[string]string{
					"source": sourceFile,
					"h1":     h1,
					"h2":     h2,
					"h3":     h3,
				},
			})
		}
		current = nil
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "# ") && len(line) > 2:
			flush()
			h1, h2, h3 = strings.TrimPrefix(line, "# "), "", ""
		case strings.HasPrefix(line, "## ") && len(line) > 3:
			flush()
			h2, h3 = strings.TrimPrefix(line, "## "), ""
		case strings.HasPrefix(line, "### ") && len(line) > 4:
			flush()
			h3 = strings.TrimPrefix(line, "### ")
		}
		current = append(current, line)
	}
	flush()

	return chunks
}

// ChunkMarkdownDir chunks every .md file directly under dir.
func ChunkMarkdownDir(dir string) ([]Chunk, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob markdown files: %w", err)
	}

	var all []Chunk
	for _, path := range files {
		content, err := os.ReadFile(path) // #nosec G304 -- paths come from the configured docs dir
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		all = append(all, ChunkMarkdown(string(content), filepath.Base(path))...)
	}
	return all, nil
}

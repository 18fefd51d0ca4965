// Package ingestion turns a project tree into embeddable chunks. The Loader
// walks the tree and reads matching text files, the Splitter cuts each file
// into overlapping chunks, and the Pipeline embeds and stores them.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/rag"
)

// DefaultGlobs is the file set indexed when none is configured.
var DefaultGlobs = []string{"**/*.md", "**/*.rs", "**/*.py", "**/*.toml"}

// LoadStats summarises one Load call.
type LoadStats struct {
	// Files is the number of files loaded.
	Files int
	// Skipped is the number of matching files that could not be read.
	Skipped int
}

// Loader reads every file under a root whose name matches one of its globs.
type Loader struct {
	globs []string
}

// NewLoader returns a Loader for globs. An empty list selects DefaultGlobs.
// A leading "**/" means "at any depth"; patterns with no remaining slash match
// the base name, others match the slash-separated path relative to the root.
func NewLoader(globs []string) (*Loader, error) {
	if len(globs) == 0 {
		globs = DefaultGlobs
	}
	clean := make([]string, 0, len(globs))
	for _, g := range globs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		p := strings.TrimPrefix(g, "**/")
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("ingestion: bad glob %q: %w", g, err)
		}
		clean = append(clean, p)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("ingestion: no usable globs in %v", globs)
	}
	return &Loader{globs: clean}, nil
}

// Match reports whether rel, a slash-separated path relative to the root,
// is selected by the loader's globs.
func (l *Loader) Match(rel string) bool {
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	for _, g := range l.globs {
		target := base
		if strings.Contains(g, "/") {
			target = rel
		}
		if ok, _ := filepath.Match(g, target); ok {
			return true
		}
	}
	return false
}

// Load walks root and returns one document per readable matching file, in
// lexical path order. Hidden directories are not descended. A file that
// cannot be read, or is not valid UTF-8 text, is logged and skipped.
func (l *Loader) Load(ctx context.Context, root string) ([]rag.Document, LoadStats, error) {
	log := logging.FromContext(ctx)
	var stats LoadStats

	info, err := os.Stat(root)
	if err != nil {
		return nil, stats, fmt.Errorf("ingestion: project root: %w", err)
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("ingestion: project root %s is not a directory", root)
	}

	var docs []rag.Document
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if d != nil && d.IsDir() && path != root {
				log.Warn("ingestion: skipping unreadable directory", slog.String("path", path), slog.String("error", walkErr.Error()))
				return filepath.SkipDir
			}
			if path == root {
				return walkErr
			}
			log.Warn("ingestion: skipping unreadable file", slog.String("path", path), slog.String("error", walkErr.Error()))
			stats.Skipped++
			return nil
		}

		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !l.Match(filepath.ToSlash(rel)) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("ingestion: skipping unreadable file", slog.String("path", path), slog.String("error", err.Error()))
			stats.Skipped++
			return nil
		}
		if !utf8.Valid(data) {
			log.Warn("ingestion: skipping non-text file", slog.String("path", path))
			stats.Skipped++
			return nil
		}

		meta := InferMetadata(path)
		docs = append(docs, rag.Document{
			Content: string(data),
			Source:  path,
			Metadata: map[string]string{
				rag.MetaSource: path,
				MetaLanguage:   meta.Language,
				MetaDocType:    meta.DocType,
			},
		})
		stats.Files++
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("ingestion: walk %s: %w", root, err)
	}

	log.Debug("ingestion: loaded project",
		slog.String("root", root),
		slog.Int("files", stats.Files),
		slog.Int("skipped", stats.Skipped),
	)
	return docs, stats, nil
}

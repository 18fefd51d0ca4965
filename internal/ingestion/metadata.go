package ingestion

import (
	"path/filepath"
	"strings"
)

// Metadata keys added by the loader.
const (
	MetaLanguage = "language"
	MetaDocType  = "doc_type"
)

// InferredMetadata holds the language and document kind inferred from a
// file path. Unknown extensions fall back to "text" and "docs".
type InferredMetadata struct {
	// Language is the source language or markup (rust, python, markdown, ...).
	Language string
	// DocType classifies the file as code, docs, or config.
	DocType string
}

// extensionTable maps a lower-cased extension to its language and kind.
var extensionTable = map[string]InferredMetadata{
	".rs":   {"rust", "code"},
	".py":   {"python", "code"},
	".pyi":  {"python", "code"},
	".go":   {"go", "code"},
	".js":   {"javascript", "code"},
	".ts":   {"typescript", "code"},
	".java": {"java", "code"},
	".c":    {"c", "code"},
	".h":    {"c", "code"},
	".cpp":  {"cpp", "code"},
	".sh":   {"shell", "code"},
	".md":   {"markdown", "docs"},
	".rst":  {"restructuredtext", "docs"},
	".txt":  {"text", "docs"},
	".toml": {"toml", "config"},
	".yaml": {"yaml", "config"},
	".yml":  {"yaml", "config"},
	".json": {"json", "config"},
	".ini":  {"ini", "config"},
}

// wellKnownFiles covers extensionless or conventionally named files.
var wellKnownFiles = map[string]InferredMetadata{
	"dockerfile": {"dockerfile", "config"},
	"makefile":   {"make", "config"},
	"license":    {"text", "docs"},
}

// InferMetadata returns best-effort metadata for path based on its name.
func InferMetadata(path string) InferredMetadata {
	base := strings.ToLower(filepath.Base(path))
	if m, ok := wellKnownFiles[base]; ok {
		return m
	}
	if m, ok := extensionTable[filepath.Ext(base)]; ok {
		return m
	}
	return InferredMetadata{Language: "text", DocType: "docs"}
}

package ingestion

import "testing"

func TestInferMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		language string
		docType  string
	}{
		// ── Code ────────────────────────────────────────────────────────
		{name: "rust source", path: "src/lib.rs", language: "rust", docType: "code"},
		{name: "python source", path: "/abs/pkg/main.py", language: "python", docType: "code"},
		{name: "python stub", path: "pkg/types.pyi", language: "python", docType: "code"},
		{name: "go source", path: "cmd/x/main.go", language: "go", docType: "code"},
		{name: "upper-case extension", path: "LIB.RS", language: "rust", docType: "code"},
		// ── Docs ────────────────────────────────────────────────────────
		{name: "markdown", path: "README.md", language: "markdown", docType: "docs"},
		{name: "license", path: "LICENSE", language: "text", docType: "docs"},
		// ── Config ──────────────────────────────────────────────────────
		{name: "cargo manifest", path: "Cargo.toml", language: "toml", docType: "config"},
		{name: "yaml", path: "flows/release.yml", language: "yaml", docType: "config"},
		{name: "dockerfile", path: "build/Dockerfile", language: "dockerfile", docType: "config"},
		// ── Fallback ────────────────────────────────────────────────────
		{name: "unknown extension", path: "notes.xyz", language: "text", docType: "docs"},
		{name: "empty string", path: "", language: "text", docType: "docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferMetadata(tt.path)

			if got.Language != tt.language {
				t.Errorf("Language: got %q, want %q", got.Language, tt.language)
			}
			if got.DocType != tt.docType {
				t.Errorf("DocType: got %q, want %q", got.DocType, tt.docType)
			}
		})
	}
}

package rag

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sparkai/pkg/domain"
)

func TestExtractTextPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("  hello\n\nworld \x00 again  "), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	text, err := ExtractText(path, "notes.txt")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "hello world again" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractTextUnsupportedExtension(t *testing.T) {
	_, err := ExtractText("/nonexistent/image.png", "image.png")
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got: %v", err)
	}
}

func TestExtractTextEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("   \n\t "), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := ExtractText(path, "empty.txt")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got: %v", err)
	}
}

func TestExtractTextDocx(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.docx")
	writeTestDocx(t, path, `<?xml version="1.0"?>
		<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
			<w:body>
				<w:p><w:r><w:t>first paragraph</w:t></w:r></w:p>
				<w:p><w:r><w:t>second</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph</w:t></w:r></w:p>
			</w:body>
		</w:document>`)

	text, err := ExtractText(path, "report.docx")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "first paragraph second paragraph" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractTextDocxCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	if err := os.WriteFile(path, []byte("not a zip archive"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	_, err := ExtractText(path, "broken.docx")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got: %v", err)
	}
}

func TestExtractTextPDFMissingFile(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "missing.pdf"), "missing.pdf")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got: %v", err)
	}
}

func writeTestDocx(t *testing.T, path, documentXML string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := w.Write([]byte(strings.TrimSpace(documentXML))); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}

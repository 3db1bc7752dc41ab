package rag

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"sparkai/pkg/domain"
)

// ExtractText pulls plain text out of an uploaded file. The format is decided
// by the original filename's extension, not the stored path.
func ExtractText(path, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return extractPDF(path)
	case ".txt":
		return extractPlain(path)
	case ".docx", ".doc":
		return extractDocx(path)
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, ext)
	}
}

func extractPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", domain.ErrExtraction, err)
	}
	defer file.Close()
	var buf strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	text := normalizeText(buf.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text extracted from pdf", domain.ErrExtraction)
	}
	return text, nil
}

func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read file: %v", domain.ErrExtraction, err)
	}
	text := normalizeText(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: file contains no text", domain.ErrExtraction)
	}
	return text, nil
}

// extractDocx reads word/document.xml out of the OOXML zip container and
// collects the text runs, inserting a break per paragraph.
func extractDocx(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open document: %v", domain.ErrExtraction, err)
	}
	defer reader.Close()

	var docFile *zip.File
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			docFile = file
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", domain.ErrExtraction)
	}
	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("%w: read document.xml: %v", domain.ErrExtraction, err)
	}
	defer rc.Close()

	text, err := scanDocumentXML(rc)
	if err != nil {
		return "", fmt.Errorf("%w: parse document.xml: %v", domain.ErrExtraction, err)
	}
	text = normalizeText(text)
	if text == "" {
		return "", fmt.Errorf("%w: document contains no text", domain.ErrExtraction)
	}
	return text, nil
}

func scanDocumentXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var buf strings.Builder
	var inText bool
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				buf.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
	return buf.String(), nil
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

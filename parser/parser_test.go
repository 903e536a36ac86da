package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestRegistryRouting(t *testing.T) {
	r := Default()

	for _, name := range []string{"notes.txt", "notes.md", "doc.docx", "paper.PDF", "sheet.xlsx"} {
		if !r.Supported(name) {
			t.Errorf("Supported(%q) = false, want true", name)
		}
	}
	if r.Supported("image.png") {
		t.Error("Supported(image.png) = true, want false")
	}

	_, err := r.Parse("image.png", []byte("data"))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Parse(png) error = %v, want ErrUnsupported", err)
	}
}

func TestTextParser(t *testing.T) {
	r := Default()
	got, err := r.Parse("notes.txt", []byte("  First idea.\n\nSecond idea.  \n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got != "First idea.\n\nSecond idea." {
		t.Errorf("Parse() = %q", got)
	}
}

// buildDOCX assembles a minimal .docx archive with the given paragraphs.
func buildDOCX(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(body.String())); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDOCXParser(t *testing.T) {
	data := buildDOCX(t, []string{"First paragraph here.", "Second paragraph here."})

	got, err := Default().Parse("doc.docx", data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := "First paragraph here.\n\nSecond paragraph here."
	if got != want {
		t.Errorf("Parse() = %q, want %q", got, want)
	}
}

func TestDOCXParserMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("other.xml")
	f.Write([]byte("<x/>"))
	zw.Close()

	if _, err := Default().Parse("doc.docx", buf.Bytes()); err == nil {
		t.Error("expected error for archive without word/document.xml")
	}
}

func TestDOCXParserNotAZip(t *testing.T) {
	if _, err := Default().Parse("doc.docx", []byte("plain text")); err == nil {
		t.Error("expected error for non-zip input")
	}
}

func TestXLSXParser(t *testing.T) {
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "metric")
	f.SetCellValue("Sheet1", "B1", "value")
	f.SetCellValue("Sheet1", "A2", "retention")
	f.SetCellValue("Sheet1", "B2", "42")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Default().Parse("sheet.xlsx", buf.Bytes())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !strings.Contains(got, "| metric | value |") {
		t.Errorf("Parse() = %q, want pipe-separated rows", got)
	}
	if !strings.Contains(got, "| retention | 42 |") {
		t.Errorf("Parse() = %q, missing data row", got)
	}
}

func TestPDFParserRejectsGarbage(t *testing.T) {
	if _, err := Default().Parse("paper.pdf", []byte("not a pdf")); err == nil {
		t.Error("expected error for invalid PDF bytes")
	}
}

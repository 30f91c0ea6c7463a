package ingest

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestExtract_PlainText(t *testing.T) {
	pages, err := extract([]byte("hello plain text world"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pages) != 1 || pages[0].Text != "hello plain text world" {
		t.Fatalf("unexpected pages: %+v", pages)
	}
}

func TestExtract_UnsupportedType(t *testing.T) {
	// A handful of NUL/control bytes is not recognized as any supported
	// document type by magic-byte sniffing.
	_, err := extract([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05})
	if err == nil {
		t.Fatal("expected an error for an unsupported binary blob")
	}
}

func TestExtract_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	xmlDoc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t> docx</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`
	if _, err := w.Write([]byte(xmlDoc)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}

	pages, err := extract(buf.Bytes())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected a single page, got %d", len(pages))
	}
	if got := pages[0].Text; got == "" {
		t.Fatal("expected non-empty extracted text")
	}
}

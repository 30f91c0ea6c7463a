package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"rsc.io/pdf"

	"github.com/lumenforge/tutorcore/internal/errkind"
)

// extract detects data's type by magic bytes and decodes it to plain text,
// preserving page boundaries where the format has them. Unreadable input
// fails the task with [errkind.InvalidInput].
func extract(data []byte) ([]extractedPage, error) {
	mtype := mimetype.Detect(data)

	switch {
	case mtype.Is("text/plain"):
		return []extractedPage{{Page: 1, Text: string(data)}}, nil
	case mtype.Is("application/pdf"):
		return extractPDF(data)
	case mtype.Is("application/zip"):
		// DOCX is a zip archive; anything else zip-shaped is not a document
		// this pipeline understands.
		pages, err := extractDOCX(data)
		if err != nil {
			return nil, errkind.Wrap(errkind.InvalidInput, "extract docx", err)
		}
		return pages, nil
	default:
		return nil, errkind.New(errkind.InvalidInput, fmt.Sprintf("unsupported document type: %s", mtype.String()))
	}
}

func extractPDF(data []byte) ([]extractedPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidInput, "open pdf", err)
	}

	pages := make([]extractedPage, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		var sb strings.Builder
		for _, text := range page.Content().Text {
			sb.WriteString(text.S)
		}
		if sb.Len() == 0 {
			continue
		}
		pages = append(pages, extractedPage{Page: i, Text: sb.String()})
	}
	if len(pages) == 0 {
		return nil, errkind.New(errkind.InvalidInput, "pdf contains no extractable text")
	}
	return pages, nil
}

// extractDOCX walks word/document.xml and concatenates every <w:t> run's
// character data, treating the entire document as a single page since OOXML
// does not expose fixed page boundaries without a rendering layout pass.
func extractDOCX(data []byte) ([]extractedPage, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}

	var docXML *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML = f
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docXML.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(rc)
	inTextRun := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inTextRun = true
			}
			if t.Name.Local == "p" && sb.Len() > 0 {
				sb.WriteString("\n")
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inTextRun = false
			}
		case xml.CharData:
			if inTextRun {
				sb.Write(t)
			}
		}
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("docx contains no extractable text")
	}
	return []extractedPage{{Page: 1, Text: sb.String()}}, nil
}

package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

type fileKind int

const (
	kindUnknown fileKind = iota
	kindPDF
	kindDOCX
	kindPPTX
)

// TextExtractor pulls plain text out of uploaded PDF and DOCX files.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the text of data. Unsupported types and files without any
// text are rejected before anything else happens.
func (e *TextExtractor) Extract(fileName, mimeType string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch detectKind(fileName, mimeType, data) {
	case kindPDF:
		text, err = extractPDFText(data)
	case kindDOCX:
		text, err = extractDOCXText(data)
	case kindPPTX:
		return "", newError(CodeUnsupportedFile, ErrUnsupportedFileType,
			"PPTX processing is complex and not fully supported for direct text extraction yet. Please try PDF, DOCX, or copy-paste text.")
	default:
		return "", newError(CodeUnsupportedFile, ErrUnsupportedFileType,
			"Unsupported file type: %s. Please use PDF or DOCX.", describeType(fileName, mimeType))
	}
	if err != nil {
		return "", newError(CodeInvalidInput, err, "Error: %s", err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return "", newError(CodeEmptyExtraction, ErrEmptyExtraction,
			"Could not extract any text from %s. The file might be empty, image-based, or corrupted.", fileName)
	}
	return text, nil
}

func detectKind(fileName, mimeType string, data []byte) fileKind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case mimePDF:
		return kindPDF
	case mimeDOCX:
		return kindDOCX
	case mimePPTX:
		return kindPPTX
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return kindPDF
	case ".docx":
		return kindDOCX
	case ".pptx":
		return kindPPTX
	}

	// Browsers often send application/octet-stream, so sniff the bytes.
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return kindPDF
	}
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return detectOpenXMLKind(data)
	}
	return kindUnknown
}

func detectOpenXMLKind(data []byte) fileKind {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return kindUnknown
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			return kindDOCX
		case strings.HasPrefix(f.Name, "ppt/"):
			return kindPPTX
		}
	}
	return kindUnknown
}

func describeType(fileName, mimeType string) string {
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	if ext := strings.TrimPrefix(filepath.Ext(fileName), "."); ext != "" {
		return ext
	}
	if mimeType != "" {
		return mimeType
	}
	return "unknown"
}

func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plain text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(b), nil
}

func extractDOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	body, err := readZipFile(zr.File, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("read docx body: %w", err)
	}
	paragraphs, err := docxParagraphs(body)
	if err != nil {
		return "", fmt.Errorf("parse docx body: %w", err)
	}
	return strings.Join(paragraphs, "\n"), nil
}

func readZipFile(files []*zip.File, target string) ([]byte, error) {
	for _, f := range files {
		if f.Name != target {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, errors.New("missing " + target)
}

// docxParagraphs collects the <w:t> runs of each <w:p>. Tabs and breaks
// inside a paragraph become whitespace.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		inText bool
		text   strings.Builder
		out    []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				text.Reset()
			case "t":
				inText = true
			case "tab":
				text.WriteByte('\t')
			case "br", "cr":
				text.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out = append(out, text.String())
				text.Reset()
			}
		}
	}
	return out, nil
}

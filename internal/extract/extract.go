// Package extract converts uploaded documents into plain text for prompt
// building. Dispatch is by filename extension first, then content sniffing.
// Everything operates on in-memory byte slices; uploads never touch disk.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// Format identifies the detected document format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXML      Format = "xml"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatXLSX     Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("extract: unsupported document format")
	ErrMalformedDocument = errors.New("extract: malformed document")
	ErrEmptyDocument     = errors.New("extract: document contains no text")
)

// Result carries the extracted text plus what was detected along the way.
type Result struct {
	Text      string `json:"text"`
	Format    Format `json:"format"`
	Truncated bool   `json:"truncated"`
}

// Extractor dispatches uploads to per-format converters and applies the
// configured rune budget to the output.
type Extractor struct {
	runeLimit int
}

func New(runeLimit int) *Extractor {
	if runeLimit <= 0 {
		runeLimit = 65536
	}
	return &Extractor{runeLimit: runeLimit}
}

// Extract converts data into plain text. The filename is a hint only; when
// its extension is missing or unknown the content is sniffed instead.
func (e *Extractor) Extract(filename string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	format, ok := detectFormat(filename, data)
	if !ok {
		return nil, ErrUnsupportedFormat
	}

	text, err := convert(format, data)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyDocument
	}

	text, truncated := truncateRunes(text, e.runeLimit)

	return &Result{Text: text, Format: format, Truncated: truncated}, nil
}

func convert(format Format, data []byte) (string, error) {
	switch format {
	case FormatText, FormatMarkdown:
		text, err := decodeText(data)
		if err != nil {
			return "", malformed(err)
		}
		return text, nil
	case FormatCSV:
		return extractCSV(data)
	case FormatJSON:
		return extractJSON(data)
	case FormatXML:
		return extractXML(data)
	case FormatHTML:
		return extractHTML(data)
	case FormatPDF:
		return extractPDF(data)
	case FormatDOCX:
		return extractDOCX(data)
	case FormatXLSX:
		return extractXLSX(data)
	default:
		return "", ErrUnsupportedFormat
	}
}

var extensionFormats = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".log":      FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".csv":      FormatCSV,
	".json":     FormatJSON,
	".xml":      FormatXML,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".xlsx":     FormatXLSX,
}

func detectFormat(filename string, data []byte) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if format, ok := extensionFormats[ext]; ok {
		return format, true
	}
	return sniffFormat(data)
}

func sniffFormat(data []byte) (Format, bool) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF, true
	}

	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return sniffZip(data)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(data) {
		return FormatJSON, true
	}

	contentType := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(contentType, "text/html"):
		return FormatHTML, true
	case strings.HasPrefix(contentType, "text/xml"):
		return FormatXML, true
	case strings.HasPrefix(contentType, "text/"):
		return FormatText, true
	}

	return "", false
}

// sniffZip distinguishes OOXML containers by their well-known members.
func sniffZip(data []byte) (Format, bool) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false
	}

	for _, file := range reader.File {
		switch {
		case file.Name == "word/document.xml":
			return FormatDOCX, true
		case file.Name == "xl/workbook.xml":
			return FormatXLSX, true
		}
	}

	return "", false
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
}

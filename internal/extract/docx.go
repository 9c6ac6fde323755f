package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// extractDOCX pulls text runs out of word/document.xml. Paragraphs become
// newlines, explicit tabs and breaks are preserved.
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", malformed(err)
	}

	var document *zip.File
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			document = file
			break
		}
	}
	if document == nil {
		return "", malformed(errors.New("word/document.xml missing"))
	}

	rc, err := document.Open()
	if err != nil {
		return "", malformed(err)
	}
	defer rc.Close()

	return wordprocessingText(rc)
}

func wordprocessingText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var builder strings.Builder
	inRun := false
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", malformed(err)
		}

		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inRun = true
			case "tab":
				builder.WriteString("\t")
			case "br", "cr":
				builder.WriteString("\n")
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inRun = false
			case "p":
				builder.WriteString("\n")
			}
		case xml.CharData:
			if inRun {
				builder.Write(tok)
			}
		}
	}

	return builder.String(), nil
}

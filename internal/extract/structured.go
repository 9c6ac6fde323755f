package extract

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// extractCSV renders rows as tab-joined lines. Ragged rows are tolerated.
func extractCSV(data []byte) (string, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return "", malformed(err)
	}

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var builder strings.Builder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", malformed(err)
		}
		builder.WriteString(strings.Join(record, "\t"))
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// extractJSON validates the document and passes the text through unchanged.
func extractJSON(data []byte) (string, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return "", malformed(err)
	}

	if !json.Valid([]byte(decoded)) {
		return "", malformed(errors.New("invalid json"))
	}

	return decoded, nil
}

// extractXML strips markup and keeps character data, one chunk per element.
func extractXML(data []byte) (string, error) {
	decoded, err := decodeText(data)
	if err != nil {
		return "", malformed(err)
	}

	decoder := xml.NewDecoder(strings.NewReader(decoded))

	var builder strings.Builder
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", malformed(err)
		}

		if chars, ok := token.(xml.CharData); ok {
			text := strings.TrimSpace(string(chars))
			if text != "" {
				builder.WriteString(text)
				builder.WriteString("\n")
			}
		}
	}

	return builder.String(), nil
}

package extract

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF concatenates the plain text of every page. The parser panics on
// some malformed inputs, so the whole pass runs under a recover.
func extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = malformed(errors.New("pdf parser aborted"))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", malformed(err)
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			// skip pages with unparseable content streams
			continue
		}

		builder.WriteString(content)
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

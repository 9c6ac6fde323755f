package extract

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// extractHTML renders the document's visible text. charset.NewReader honours
// meta charset declarations, so legacy encodings decode before parsing.
func extractHTML(data []byte) (string, error) {
	reader, err := charset.NewReader(bytes.NewReader(data), "")
	if err != nil {
		return "", malformed(err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return "", malformed(err)
	}

	doc.Find("script, style, noscript, template").Remove()

	body := doc.Find("body")
	text := body.Text()
	if body.Length() == 0 {
		text = doc.Text()
	}

	return collapseWhitespace(text), nil
}

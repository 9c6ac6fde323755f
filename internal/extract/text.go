package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var errUnknownEncoding = errors.New("extract: could not determine text encoding")

// chardet reports IANA-ish names that x/net's lookup table does not always
// recognise verbatim.
var charsetAliases = map[string]string{
	"GB-18030": "gb18030",
	"UTF-16LE": "utf-16le",
	"UTF-16BE": "utf-16be",
}

// decodeText turns arbitrary text bytes into a UTF-8 string. BOMs win, then
// valid UTF-8 passes through, then chardet picks the most likely charset.
func decodeText(data []byte) (string, error) {
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return string(data[3:]), nil
	}
	if bytes.HasPrefix(data, []byte{0xFF, 0xFE}) {
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder(), data)
	}
	if bytes.HasPrefix(data, []byte{0xFE, 0xFF}) {
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder(), data)
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnknownEncoding, err)
	}

	name := result.Charset
	if alias, ok := charsetAliases[name]; ok {
		name = alias
	}

	enc, _ := charset.Lookup(name)
	if enc == nil {
		return "", fmt.Errorf("%w: charset %q", errUnknownEncoding, result.Charset)
	}

	return decodeWith(enc.NewDecoder(), data)
}

func decodeWith(decoder transform.Transformer, data []byte) (string, error) {
	decoded, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errUnknownEncoding, err)
	}
	return string(decoded), nil
}

// collapseWhitespace squeezes runs of blank space into single separators
// while keeping paragraph breaks.
func collapseWhitespace(input string) string {
	lines := strings.Split(input, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

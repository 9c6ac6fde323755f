package extract

import (
	"strings"
	"unicode/utf8"
)

// truncateRunes cuts input to at most max runes, appending an ellipsis when
// anything was dropped. Cuts always land on rune boundaries.
func truncateRunes(input string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(input) <= max {
		return input, false
	}

	var builder strings.Builder
	count := 0
	for _, r := range input {
		if count >= max {
			break
		}
		builder.WriteRune(r)
		count++
	}
	builder.WriteRune('…')

	return builder.String(), true
}

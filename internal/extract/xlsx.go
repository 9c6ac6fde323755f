package extract

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXLSX renders every sheet as a labelled block of tab-joined rows.
func extractXLSX(data []byte) (string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", malformed(err)
	}
	defer workbook.Close()

	var builder strings.Builder
	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			return "", malformed(err)
		}

		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("# ")
		builder.WriteString(sheet)
		builder.WriteString("\n")

		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}

	return builder.String(), nil
}

package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXParser flattens each sheet into pipe-separated rows, one paragraph
// per sheet.
type XLSXParser struct{}

func (p *XLSXParser) SupportedExtensions() []string { return []string{"xlsx"} }

func (p *XLSXParser) Parse(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		var content strings.Builder
		content.WriteString(sheet + "\n")
		for _, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		sheets = append(sheets, strings.TrimSpace(content.String()))
	}

	if len(sheets) == 0 {
		return "", fmt.Errorf("no data found in XLSX")
	}
	return strings.Join(sheets, "\n\n"), nil
}

package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// extractXLSX reads .xlsx workbooks with tealeg/xlsx and falls back to
// excelize for workbooks tealeg cannot open.
func extractXLSX(ctx context.Context, e *Extractor, path string, out *unitList) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		log.Debug().Err(err).Str("file", path).Msg("xlsx reader failed, trying excelize")
		return extractWorkbook(ctx, e, path, out)
	}

	for _, sheet := range f.Sheets {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		addSheet(out, sheet.Name, rows)
	}
	return nil
}

// extractWorkbook handles macro-enabled and template workbooks via excelize.
func extractWorkbook(ctx context.Context, _ *Extractor, path string, out *unitList) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return fmt.Errorf("sheet %s: %w", name, err)
		}
		addSheet(out, name, rows)
	}
	return nil
}

// addSheet emits a sheet marker and the non-empty rows, cells joined by " | ".
func addSheet(out *unitList, name string, rows [][]string) {
	out.addText(fmt.Sprintf("--- Sheet: %s ---", name))

	var lines []string
	for _, row := range rows {
		empty := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if !empty {
			lines = append(lines, strings.Join(row, " | "))
		}
	}
	if len(lines) > 0 {
		out.addText(strings.Join(lines, "\n"))
	}
}

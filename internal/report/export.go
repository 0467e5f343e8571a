package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// BuildAccumulationXLSX renders an accumulation report as a spreadsheet
// with a daily and a weekly sheet, one (station, period, mm) row per
// bucket.
func BuildAccumulationXLSX(acc Accumulation) ([]byte, error) {
	f := excelize.NewFile()
	dailySheet := "daily"
	weeklySheet := "weekly"
	f.SetSheetName("Sheet1", dailySheet)
	if _, err := f.NewSheet(weeklySheet); err != nil {
		return nil, fmt.Errorf("create weekly sheet: %w", err)
	}

	if err := writeSheet(f, dailySheet, "Day", flatten(acc.ByDay)); err != nil {
		return nil, err
	}
	if err := writeSheet(f, weeklySheet, "ISO Week", flatten(acc.ByWeek)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet, periodHeader string, rows []row) error {
	headers := []string{"Station", periodHeader, "Rain (mm)"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header %s: %w", sheet, err)
		}
	}

	for i, r := range rows {
		line := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), r.Station)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), r.Period)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", line), r.RainMM)
	}
	return nil
}

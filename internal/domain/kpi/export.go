package kpi

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RenderTrendPDF renders a trend report as a single-page PDF: header,
// summary statistics and one row per period.
func RenderTrendPDF(report TrendReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "KPI Trend Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("KPI: %s", report.KPIName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period type: %s", report.Period))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Direction: %s", report.Direction))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Average: %.2f  Min: %.2f  Max: %.2f  Latest: %.2f",
		report.Stats.Average, report.Stats.Minimum, report.Stats.Maximum, report.Stats.Latest))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(70, 8, "Period", "1", 0, "L", false, 0, "")
	pdf.CellFormat(40, 8, "Value", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Change %", "1", 0, "R", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, point := range report.Points {
		value := fmt.Sprintf("%.2f", point.Value)
		if report.Unit != "" {
			value += " " + report.Unit
		}
		change := "n/a"
		if point.Change != nil {
			change = fmt.Sprintf("%+.2f", *point.Change)
		}
		pdf.CellFormat(70, 8, point.Label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, value, "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, change, "1", 0, "R", false, 0, "")
		pdf.Ln(8)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package invoice

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const invoiceSheet = "Invoice"

// RenderXLSX lays a finalized invoice out as a single-sheet workbook
func RenderXLSX(inv *Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating style: %w", err)
	}

	row := 1
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(invoiceSheet, cell, v)
	}
	label := func(text string) {
		write(1, text)
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellStyle(invoiceSheet, cell, cell, bold)
	}

	label("Invoice")
	write(2, inv.ID)
	row++
	label("Bill To")
	write(2, inv.Recipient)
	row++
	label("Date")
	write(2, inv.CreatedAt.Format("2006-01-02"))
	row++
	if inv.DueDate != nil {
		label("Due Date")
		write(2, inv.DueDate.Format("2006-01-02"))
		row++
	}
	label("Currency")
	write(2, inv.Currency)
	row += 2

	for i, h := range []string{"Description", "Quantity", "Unit Amount"} {
		write(i+1, h)
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(3, row)
	_ = f.SetCellStyle(invoiceSheet, first, last, bold)
	row++

	for _, item := range inv.LineItems {
		write(1, item.Label)
		if item.Quantity != nil {
			write(2, item.Quantity.String())
		}
		if item.UnitAmount != nil {
			write(3, item.UnitAmount.StringFixed(2))
		}
		row++
	}

	row++
	label("Total")
	write(2, FormatMoney(inv.Amount, inv.Currency))

	_ = f.SetColWidth(invoiceSheet, "A", "A", 36)
	_ = f.SetColWidth(invoiceSheet, "B", "C", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

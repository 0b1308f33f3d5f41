package export

import (
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tonefinance/sectorvault/internal/domain"
)

const (
	depositorsSheet = "Depositors"
	depositsSheet   = "Deposits"
)

// WriteXLSX writes the report as a workbook with a Depositors and a Deposits sheet.
func (r DepositorReport) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", depositorsSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(depositsSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9EAD3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	depositors := [][]any{{"N", "Address", "Requests", "Total"}}
	for i, d := range r.Depositors {
		depositors = append(depositors, []any{i + 1, strings.ToLower(d.User.Hex()), d.Requests, unitsFloat(d.Total, r.QuoteDecimals)})
	}
	if err := writeRows(f, depositorsSheet, depositors, headerStyle); err != nil {
		return err
	}

	deposits := [][]any{{"ID", "Address", "Amount", "Requested At", "Block", "Tx"}}
	for _, d := range r.Deposits {
		deposits = append(deposits, []any{
			d.ID.String(),
			strings.ToLower(d.User.Hex()),
			unitsFloat(d.QuoteAmount, r.QuoteDecimals),
			time.Unix(d.Timestamp, 0).UTC().Format(time.DateTime),
			d.Block,
			d.TxHash.Hex(),
		})
	}
	if err := writeRows(f, depositsSheet, deposits, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}

	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("styling %s header: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func unitsFloat(v *big.Int, decimals uint8) float64 {
	return toFloat(domain.ToDecimal(v, decimals))
}

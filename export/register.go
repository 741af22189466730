// Package export writes the 年次有給休暇管理簿 (annual paid-leave management
// register) as an XLSX workbook.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
	"github.com/xuri/excelize/v2"
)

const (
	PeriodsSheet = "管理簿"
	LotsSheet    = "付与ロット"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var periodHeadings = []string{"期間開始", "期間終了", "付与日数", "繰越日数", "合計", "取得日数", "残日数", "見込み"}

var lotHeadings = []string{"付与日", "付与日数", "残日数", "有効期限", "設定バージョン"}

// WriteRegister renders one row per period on the first sheet and one row per
// grant lot on the second, then writes the workbook to w.
func WriteRegister(w io.Writer, emp vacation.Employee, periods []vacation.PeriodSummary, lots []vacation.GrantLot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", PeriodsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(LotsSheet); err != nil {
		return err
	}

	f.SetCellValue(PeriodsSheet, "A1", "氏名")
	f.SetCellValue(PeriodsSheet, "B1", emp.Name)
	f.SetCellValue(PeriodsSheet, "C1", "入社日")
	f.SetCellValue(PeriodsSheet, "D1", dateCell(emp.JoinDate))

	if err := writeRow(f, PeriodsSheet, 3, toAny(periodHeadings)); err != nil {
		return err
	}
	for i, p := range periods {
		projected := ""
		if p.Projected {
			projected = "○"
		}
		row := []any{
			dateCell(p.Start), dateCell(p.End), num(p.NewGrant), num(p.CarryOver),
			num(p.TotalAvailable), num(p.Used), num(p.Remaining), projected,
		}
		if err := writeRow(f, PeriodsSheet, i+4, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, LotsSheet, 1, toAny(lotHeadings)); err != nil {
		return err
	}
	for i, l := range lots {
		row := []any{
			dateCell(l.GrantDate), num(l.DaysGranted), num(l.DaysRemaining),
			dateCell(l.ExpiryDate), l.ConfigVersion,
		}
		if err := writeRow(f, LotsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write register: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNo int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func dateCell(tp generic.TimePoint) string {
	if tp.IsZero() {
		return ""
	}
	return tp.String()
}

func num(d decimal.Decimal) float64 {
	return generic.ToFloat(d)
}

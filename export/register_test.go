package export_test

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/yukyu/export"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/vacation"
	"github.com/xuri/excelize/v2"
)

func tp(t *testing.T, s string) generic.TimePoint {
	t.Helper()
	d, err := generic.ParseTimePoint(s)
	require.NoError(t, err)
	return d
}

func TestWriteRegister(t *testing.T) {
	// GIVEN: one past and one projected period, two lots
	emp := vacation.Employee{ID: "e1", Name: "青木", JoinDate: tp(t, "2020-04-01")}
	periods := []vacation.PeriodSummary{
		{
			Start: tp(t, "2020-10-01"), End: tp(t, "2021-09-30"),
			NewGrant: decimal.NewFromInt(10), CarryOver: decimal.Zero, TotalAvailable: decimal.NewFromInt(10),
			Used: decimal.NewFromInt(3), Remaining: decimal.NewFromInt(7),
		},
		{
			Start: tp(t, "2021-10-01"), End: tp(t, "2022-09-30"),
			NewGrant: decimal.NewFromInt(11), CarryOver: decimal.NewFromInt(7), TotalAvailable: decimal.NewFromInt(18),
			Used: decimal.RequireFromString("0.5"), Remaining: decimal.RequireFromString("17.5"), Projected: true,
		},
	}
	lots := []vacation.GrantLot{
		{GrantDate: tp(t, "2020-10-01"), DaysGranted: decimal.NewFromInt(10), DaysRemaining: decimal.NewFromInt(7), ExpiryDate: tp(t, "2022-10-01"), ConfigVersion: "1.0.0"},
		{GrantDate: tp(t, "2021-10-01"), DaysGranted: decimal.NewFromInt(11), DaysRemaining: decimal.NewFromInt(11), ExpiryDate: tp(t, "2023-10-01"), ConfigVersion: "1.0.0"},
	}

	// WHEN
	var buf bytes.Buffer
	require.NoError(t, export.WriteRegister(&buf, emp, periods, lots))

	// THEN: the workbook reads back with both sheets filled
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.PeriodsSheet, export.LotsSheet}, f.GetSheetList())

	name, err := f.GetCellValue(export.PeriodsSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "青木", name)

	rows, err := f.GetRows(export.PeriodsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "期間開始", rows[2][0])
	assert.Equal(t, "2020-10-01", rows[3][0])
	assert.Equal(t, "7", rows[3][6])
	assert.Equal(t, "17.5", rows[4][6])
	assert.Equal(t, "○", rows[4][7])

	lotRows, err := f.GetRows(export.LotsSheet)
	require.NoError(t, err)
	require.Len(t, lotRows, 3)
	assert.Equal(t, "2021-10-01", lotRows[2][0])
	assert.Equal(t, "11", lotRows[2][1])
	assert.Equal(t, "2023-10-01", lotRows[2][3])
}

func TestWriteRegisterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteRegister(&buf, vacation.Employee{Name: "x"}, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.LotsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

package importfile

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

const header = "Warehouse,SKU,Batch Lot,Type,Cartons In,Cartons Out,Storage Cartons Per Pallet,Transaction Date,Notes\n"

func TestDecodeCSV(t *testing.T) {
	body := header +
		"W1,CS-007,B1,receive,25,,24,2024-01-02,first\n" +
		",,,,,,,,\n" +
		"W1,CS-007,B1,SHIP,,10,,2024-01-05T10:00:00Z,\n" +
		"W1,CS-007,B1,SHIP,,ten,,2024-01-06,\n" +
		"W1,CS-007,B1,RECEIVE,5,,0,2024-01-07,\n" +
		"W1,CS-007,B1,RECEIVE,5,,,07.01.2024,\n"

	res, err := Decode(strings.NewReader(body), FormatCSV, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	first := res.Rows[0]
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, "W1", first.Warehouse)
	assert.Equal(t, domain.TxReceive, first.Type)
	assert.Equal(t, int64(25), first.CartonsIn)
	require.NotNil(t, first.StorageCartonsPerPallet)
	assert.Equal(t, int64(24), *first.StorageCartonsPerPallet)
	assert.True(t, first.TransactionDate.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "first", first.Notes)

	second := res.Rows[1]
	assert.Equal(t, 4, second.Line)
	assert.Equal(t, int64(10), second.CartonsOut)
	assert.Nil(t, second.StorageCartonsPerPallet)

	require.Len(t, res.Rejected, 3)
	assert.Equal(t, 5, res.Rejected[0].Line)
	assert.Contains(t, res.Rejected[0].Message, "cartons_out")
	assert.Contains(t, res.Rejected[1].Message, "must be positive")
	assert.Contains(t, res.Rejected[2].Message, "is not a date")
}

func TestDecodeCSV_MissingColumns(t *testing.T) {
	_, err := Decode(strings.NewReader("warehouse,sku\nW1,CS-007\n"), FormatCSV, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Contains(t, err.Error(), "validation failed")
}

func TestDecodeCSV_Encodings(t *testing.T) {
	tests := []struct {
		label string
		note  string
		enc   transform.Transformer
	}{
		{"shift_jis", "倉庫メモ", japanese.ShiftJIS.NewEncoder()},
		{"windows-1252", "Café crème", charmap.Windows1252.NewEncoder()},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			text := header + "W1,CS-007,B1,RECEIVE,1,,,2024-01-02," + tt.note + "\n"
			encoded, _, err := transform.String(tt.enc, text)
			require.NoError(t, err)

			enc, err := Encoding(tt.label)
			require.NoError(t, err)
			res, err := Decode(strings.NewReader(encoded), FormatCSV, enc)
			require.NoError(t, err)
			require.Len(t, res.Rows, 1)
			assert.Equal(t, tt.note, res.Rows[0].Notes)
		})
	}

	t.Run("utf-8 with byte order mark", func(t *testing.T) {
		text := "\ufeff" + header + "W1,CS-007,B1,RECEIVE,1,,,2024-01-02,ok\n"
		res, err := Decode(strings.NewReader(text), FormatCSV, nil)
		require.NoError(t, err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "W1", res.Rows[0].Warehouse)
	})

	_, err := Encoding("klingon")
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDecodeXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"type", "warehouse_code", "sku_code", "lot", "cartons_in", "date"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"RECEIVE", "W1", "CS-007", "B1", 12, "2024-01-03"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"RECEIVE", "W1", "CS-007", "B2", 3, 45296}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := Decode(bytes.NewReader(buf.Bytes()), FormatXLSX, nil)
	require.NoError(t, err)
	require.Empty(t, res.Rejected)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, "B1", res.Rows[0].Batch)
	assert.Equal(t, int64(12), res.Rows[0].CartonsIn)
	assert.True(t, res.Rows[0].TransactionDate.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)))

	// 45296 is the Excel serial day of 2024-01-05
	assert.Equal(t, "2024-01-05", res.Rows[1].TransactionDate.Format("2006-01-02"))
}

func TestFormatFromName(t *testing.T) {
	f, err := FormatFromName("stock.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatFromName("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatFromName("stock.pdf")
	assert.Error(t, err)
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("cartons_in", "1,200")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), n)

	n, err = parseCount("cartons_in", "12.0")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = parseCount("cartons_in", "1.5")
	assert.Error(t, err)
	_, err = parseCount("cartons_in", "-3")
	assert.Error(t, err)
}

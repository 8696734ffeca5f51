// Package importfile turns uploaded CSV and XLSX spreadsheets into typed
// import rows. Columns are matched by header name, so their order does not
// matter and unknown columns are ignored.
package importfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/domain"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// Format is the container of an upload
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromName picks the format from a file name or content type
func FormatFromName(name string) (Format, error) {
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".csv"), strings.Contains(name, "text/csv"):
		return FormatCSV, nil
	case strings.HasSuffix(name, ".xlsx"), strings.Contains(name, "spreadsheetml"):
		return FormatXLSX, nil
	}
	return "", errors.Invalid("file", "unsupported file type, expected .csv or .xlsx")
}

// Encoding resolves a charset label such as "utf-8", "shift_jis" or
// "windows-1252". An empty label means UTF-8. A UTF-8 byte order mark is
// always dropped.
func Encoding(label string) (encoding.Encoding, error) {
	if strings.TrimSpace(label) == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, errors.Invalid("encoding", fmt.Sprintf("unknown character encoding %q", label))
	}
	return enc, nil
}

// Result holds the rows that parsed and the ones that did not
type Result struct {
	Rows     []domain.ImportRow
	Rejected []domain.RowError
}

// Decode reads every record of the upload. Parse problems on a single row
// are reported in Result.Rejected; a missing required column fails the
// whole file.
func Decode(r io.Reader, format Format, enc encoding.Encoding) (*Result, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(r, enc)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		return nil, errors.Invalid("file", fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, err
	}
	return mapRecords(records)
}

func readCSV(r io.Reader, enc encoding.Encoding) ([][]string, error) {
	if enc == nil {
		enc = unicode.UTF8
	}
	decoder := unicode.BOMOverride(enc.NewDecoder())

	cr := csv.NewReader(transform.NewReader(r, decoder))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Invalid("file", "malformed csv: "+err.Error())
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Invalid("file", "unreadable xlsx: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.Invalid("file", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Invalid("file", "unreadable sheet: "+err.Error())
	}
	return rows, nil
}

// column names and the header spellings accepted for them
const (
	colWarehouse       = "warehouse"
	colSKU             = "sku"
	colBatch           = "batch_lot"
	colType            = "transaction_type"
	colCartonsIn       = "cartons_in"
	colCartonsOut      = "cartons_out"
	colStoragePallets  = "storage_pallets_in"
	colShippingPallets = "shipping_pallets_out"
	colStorageFactor   = "storage_cartons_per_pallet"
	colShippingFactor  = "shipping_cartons_per_pallet"
	colTransactionDate = "transaction_date"
	colReferenceID     = "reference_id"
	colTrackingNumber  = "tracking_number"
	colNotes           = "notes"
)

var aliases = map[string]string{
	"warehouse":                   colWarehouse,
	"warehouse_code":              colWarehouse,
	"warehouse_id":                colWarehouse,
	"sku":                         colSKU,
	"sku_code":                    colSKU,
	"sku_id":                      colSKU,
	"batch":                       colBatch,
	"batch_lot":                   colBatch,
	"lot":                         colBatch,
	"type":                        colType,
	"transaction_type":            colType,
	"cartons_in":                  colCartonsIn,
	"cartons_out":                 colCartonsOut,
	"storage_pallets_in":          colStoragePallets,
	"pallets_in":                  colStoragePallets,
	"shipping_pallets_out":        colShippingPallets,
	"pallets_out":                 colShippingPallets,
	"storage_cartons_per_pallet":  colStorageFactor,
	"shipping_cartons_per_pallet": colShippingFactor,
	"transaction_date":            colTransactionDate,
	"date":                        colTransactionDate,
	"reference_id":                colReferenceID,
	"reference":                   colReferenceID,
	"tracking_number":             colTrackingNumber,
	"tracking":                    colTrackingNumber,
	"notes":                       colNotes,
}

var required = []string{colWarehouse, colSKU, colBatch, colType, colTransactionDate}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(h)
	return h
}

func mapRecords(records [][]string) (*Result, error) {
	res := &Result{Rows: []domain.ImportRow{}, Rejected: []domain.RowError{}}
	if len(records) == 0 {
		return res, nil
	}

	index := make(map[string]int)
	for i, h := range records[0] {
		if col, ok := aliases[normalizeHeader(h)]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Invalid("header", "missing required columns: "+strings.Join(missing, ", "))
	}

	for i, rec := range records[1:] {
		line := i + 2
		if blank(rec) {
			continue
		}
		row, err := mapRow(rec, index, line)
		if err != nil {
			res.Rejected = append(res.Rejected, domain.RowError{Line: line, Message: err.Error()})
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func mapRow(rec []string, index map[string]int, line int) (domain.ImportRow, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	row := domain.ImportRow{
		Line:           line,
		Warehouse:      get(colWarehouse),
		SKU:            get(colSKU),
		Batch:          get(colBatch),
		Type:           domain.TransactionType(strings.ToUpper(get(colType))),
		ReferenceID:    get(colReferenceID),
		TrackingNumber: get(colTrackingNumber),
		Notes:          get(colNotes),
	}

	var err error
	if row.CartonsIn, err = parseCount(colCartonsIn, get(colCartonsIn)); err != nil {
		return row, err
	}
	if row.CartonsOut, err = parseCount(colCartonsOut, get(colCartonsOut)); err != nil {
		return row, err
	}
	if row.StoragePalletsIn, err = parseCount(colStoragePallets, get(colStoragePallets)); err != nil {
		return row, err
	}
	if row.ShippingPalletsOut, err = parseCount(colShippingPallets, get(colShippingPallets)); err != nil {
		return row, err
	}
	if row.StorageCartonsPerPallet, err = parseFactor(colStorageFactor, get(colStorageFactor)); err != nil {
		return row, err
	}
	if row.ShippingCartonsPerPallet, err = parseFactor(colShippingFactor, get(colShippingFactor)); err != nil {
		return row, err
	}
	if row.TransactionDate, err = parseDate(get(colTransactionDate)); err != nil {
		return row, err
	}
	return row, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseCount reads a non-negative whole number. Spreadsheets sometimes
// write integers as "12.0" and use thousands separators.
func parseCount(col, v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	v = strings.ReplaceAll(v, ",", "")
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%s: %q is not a whole number", col, v)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", col)
	}
	return n, nil
}

func parseFactor(col, v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	n, err := parseCount(col, v)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: must be positive", col)
	}
	return &n, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
}

// parseDate accepts the common text layouts and Excel serial day numbers
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("%s: is required", colTransactionDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: %q is not a date", colTransactionDate, v)
}

package backup

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// headerAliases maps normalized header cells to record fields.
var headerAliases = map[string]string{
	"productname":     "productName",
	"product":         "productName",
	"barcode":         "barcode",
	"branchname":      "branchName",
	"branch":          "branchName",
	"currentquantity": "currentQuantity",
	"quantity":        "currentQuantity",
	"qty":             "currentQuantity",
	"unit":            "unit",
	"mfgdate":         "mfgDate",
	"expiredate":      "expireDate",
	"expirydate":      "expireDate",
	"expdate":         "expireDate",
	"id":              "id",
	"createdat":       "createdAt",
}

// ReadXLSX reads the worksheet named sheet, or the first one. The first row
// is the header; columns are matched by header name in any letter case.
// Fully empty rows are ignored.
func ReadXLSX(r io.Reader, sheet string) ([]restore.LegacyRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("backup: open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("backup: workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("backup: read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make(map[string]int)
	for i, cell := range rows[0] {
		if field, ok := headerAliases[normalizeHeader(cell)]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["productName"]; !ok {
		return nil, fmt.Errorf("backup: sheet %s has no product name column", sheet)
	}

	records := make([]restore.LegacyRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cell := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		rec := restore.LegacyRecord{
			ProductName: cell("productName"),
			Barcode:     cell("barcode"),
			BranchName:  cell("branchName"),
			Unit:        cell("unit"),
			MfgDate:     cellTime(cell("mfgDate")),
			ExpireDate:  cellTime(cell("expireDate")),
			CreatedAt:   cellTime(cell("createdAt")),
		}
		if q, err := strconv.ParseFloat(cell("currentQuantity"), 64); err == nil {
			rec.CurrentQuantity = q
		}
		if id, err := strconv.ParseInt(cell("id"), 10, 64); err == nil {
			rec.LegacyID = restore.LegacyID(id)
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cellTime accepts timestamp text or an Excel date serial.
func cellTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 2958466 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t
		}
	}
	t, _ := restore.ParseTimestamp(s)
	return t
}

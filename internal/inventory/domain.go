package inventory

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Field caps applied before a record is stored or compared.
const (
	MaxProductNameLen = 200
	MaxBarcodeLen     = 100
	MaxBranchNameLen  = 100
	MaxUnitLen        = 50
	MaxNotesLen       = 500
)

// DefaultUnit is used when a record carries no unit label.
const DefaultUnit = "unit"

// Record is a stored expiry-dated stock line.
type Record struct {
	ID          uuid.UUID `json:"id"`
	ProductName string    `json:"productName"`
	Barcode     *string   `json:"barcode"`
	Quantity    int64     `json:"quantity"`
	Unit        string    `json:"unit"`
	MfgDate     time.Time `json:"mfgDate"`
	ExpDate     time.Time `json:"expDate"`
	BranchName  string    `json:"branchName"`
	Status      Status    `json:"status"`
	Notes       *string   `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrRecordNotFound indicates a missing record.
var ErrRecordNotFound = errors.New("inventory: record not found")

// NormalizeDate truncates t to midnight UTC of its calendar day. Every stored
// or compared expiry date goes through it.
func NormalizeDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Clean trims s and caps it to max runes.
func Clean(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// CleanOptional is Clean returning nil for empty results.
func CleanOptional(s string, max int) *string {
	cleaned := Clean(s, max)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// CoerceQuantity floors q and clamps negative values to zero.
func CoerceQuantity(q float64) int64 {
	if q != q || q <= 0 {
		return 0
	}
	if q >= 9.2e18 {
		return 1<<63 - 1
	}
	return int64(q)
}

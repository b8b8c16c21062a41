package restore

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
)

// Rejection reasons returned by Parse. They are counted as skips, never
// returned from a batch.
var (
	ErrMalformedRecord = errors.New("restore: malformed record")
	ErrMissingProduct  = errors.New("restore: missing product name")
	ErrMissingBranch   = errors.New("restore: missing branch name")
	ErrInvalidExpiry   = errors.New("restore: missing or invalid expiry date")
)

// Candidate is a validated, normalized legacy record that has not been
// checked against the store yet.
type Candidate struct {
	ProductName string
	Barcode     *string
	Quantity    int64
	Unit        string
	MfgDate     time.Time
	ExpDate     time.Time
	BranchName  string
	CreatedAt   time.Time
	// Marker is the provenance note, empty when the source had no legacy id.
	Marker string
	Key    inventory.ContentKey
}

// Parse validates rec and normalizes its fields. A non-empty override
// replaces the record's own branch name.
func Parse(rec LegacyRecord, override string, now time.Time) (Candidate, error) {
	if rec.Malformed() {
		return Candidate{}, ErrMalformedRecord
	}
	product := inventory.Clean(rec.ProductName, inventory.MaxProductNameLen)
	if product == "" {
		return Candidate{}, ErrMissingProduct
	}
	branch := inventory.Clean(override, inventory.MaxBranchNameLen)
	if branch == "" {
		branch = inventory.Clean(rec.BranchName, inventory.MaxBranchNameLen)
	}
	if branch == "" {
		return Candidate{}, ErrMissingBranch
	}
	if rec.ExpireDate.IsZero() {
		return Candidate{}, ErrInvalidExpiry
	}

	unit := inventory.Clean(rec.Unit, inventory.MaxUnitLen)
	if unit == "" {
		unit = inventory.DefaultUnit
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}
	mfg := rec.MfgDate
	if mfg.IsZero() {
		mfg = created
	}

	c := Candidate{
		ProductName: product,
		Barcode:     inventory.CleanOptional(rec.Barcode, inventory.MaxBarcodeLen),
		Quantity:    inventory.CoerceQuantity(rec.CurrentQuantity),
		Unit:        unit,
		MfgDate:     mfg.UTC(),
		ExpDate:     inventory.NormalizeDate(rec.ExpireDate),
		BranchName:  branch,
		CreatedAt:   created.UTC(),
		Key:         inventory.NewContentKey(product, rec.Barcode, branch, rec.ExpireDate),
	}
	if rec.LegacyID != nil {
		c.Marker = inventory.LegacyMarker(*rec.LegacyID)
	}
	return c, nil
}

// Record materializes the candidate with a fresh id and a status derived
// at now.
func (c Candidate) Record(scheme inventory.StatusScheme, now time.Time) inventory.Record {
	rec := inventory.Record{
		ID:          uuid.New(),
		ProductName: c.ProductName,
		Barcode:     c.Barcode,
		Quantity:    c.Quantity,
		Unit:        c.Unit,
		MfgDate:     c.MfgDate,
		ExpDate:     c.ExpDate,
		BranchName:  c.BranchName,
		Status:      scheme.Derive(c.ExpDate, now),
		CreatedAt:   c.CreatedAt,
	}
	if c.Marker != "" {
		marker := c.Marker
		rec.Notes = &marker
	}
	return rec
}

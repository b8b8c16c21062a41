package inventory

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LegacyMarkerPrefix starts the provenance note of restored records. Existing
// data depends on the exact text.
const LegacyMarkerPrefix = "Imported from backup. Old ID: "

// LegacyMarker returns the provenance note for a legacy identifier.
func LegacyMarker(legacyID int64) string {
	return Clean(LegacyMarkerPrefix+strconv.FormatInt(legacyID, 10), MaxNotesLen)
}

// ContentKey is the natural identity of a record lacking a legacy marker.
type ContentKey struct {
	Product string
	Barcode string
	Branch  string
	Expiry  time.Time
}

const keySeparator = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

// NewContentKey normalizes the parts of a content key. Callers on both sides
// of a comparison must build keys through it.
func NewContentKey(product, barcode, branch string, expiry time.Time) ContentKey {
	return ContentKey{
		Product: Fold(Clean(product, MaxProductNameLen)),
		Barcode: Clean(barcode, MaxBarcodeLen),
		Branch:  Fold(Clean(branch, MaxBranchNameLen)),
		Expiry:  NormalizeDate(expiry),
	}
}

// KeyOf derives the content key of a stored record.
func KeyOf(r Record) ContentKey {
	barcode := ""
	if r.Barcode != nil {
		barcode = *r.Barcode
	}
	return NewContentKey(r.ProductName, barcode, r.BranchName, r.ExpDate)
}

// String joins the key parts into one composite string. Separators and
// backslashes inside a part are backslash-escaped so distinct keys never
// share a string.
func (k ContentKey) String() string {
	return strings.Join([]string{
		keyEscaper.Replace(k.Product),
		keyEscaper.Replace(k.Barcode),
		keyEscaper.Replace(k.Branch),
		k.Expiry.Format(time.DateOnly),
	}, keySeparator)
}

// Hash returns the hex BLAKE2b-256 digest of String.
func (k ContentKey) Hash() string {
	sum := blake2b.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Fold lower-cases s for case-insensitive comparisons.
func Fold(s string) string {
	return cases.Lower(language.Und).String(s)
}

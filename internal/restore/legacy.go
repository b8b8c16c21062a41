package restore

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// LegacyRecord is one row of a historical inventory backup. Decoding is
// lenient field by field: a field of the wrong type decodes as absent, and
// an element that is not an object decodes as a malformed record instead of
// failing the whole batch.
type LegacyRecord struct {
	ProductName     string
	Barcode         string
	BranchName      string
	CurrentQuantity float64
	Unit            string
	MfgDate         time.Time
	ExpireDate      time.Time
	LegacyID        *int64
	CreatedAt       time.Time

	malformed bool
}

// LegacyID returns a pointer suitable for LegacyRecord.LegacyID.
func LegacyID(id int64) *int64 {
	return &id
}

// Malformed reports whether the record could not be decoded as an object.
func (r LegacyRecord) Malformed() bool {
	return r.malformed
}

type legacyWire struct {
	ProductName     string  `json:"productName,omitempty"`
	Barcode         string  `json:"barcode,omitempty"`
	BranchName      string  `json:"branchName,omitempty"`
	CurrentQuantity float64 `json:"currentQuantity"`
	Unit            string  `json:"unit,omitempty"`
	MfgDate         *string `json:"mfgDate,omitempty"`
	ExpireDate      *string `json:"expireDate,omitempty"`
	ID              *int64  `json:"id,omitempty"`
	CreatedAt       *string `json:"createdAt,omitempty"`
}

// MarshalJSON writes the canonical backup shape, used when records travel
// through the job queue.
func (r LegacyRecord) MarshalJSON() ([]byte, error) {
	if r.malformed {
		return []byte("null"), nil
	}
	return json.Marshal(legacyWire{
		ProductName:     r.ProductName,
		Barcode:         r.Barcode,
		BranchName:      r.BranchName,
		CurrentQuantity: r.CurrentQuantity,
		Unit:            r.Unit,
		MfgDate:         formatTime(r.MfgDate),
		ExpireDate:      formatTime(r.ExpireDate),
		ID:              r.LegacyID,
		CreatedAt:       formatTime(r.CreatedAt),
	})
}

// UnmarshalJSON never fails; see LegacyRecord.
func (r *LegacyRecord) UnmarshalJSON(data []byte) error {
	*r = LegacyRecord{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		r.malformed = true
		return nil
	}
	r.ProductName = looseString(fields["productName"])
	r.Barcode = looseString(fields["barcode"])
	r.BranchName = looseString(fields["branchName"])
	r.Unit = looseString(fields["unit"])
	if q, ok := looseNumber(fields["currentQuantity"]); ok {
		r.CurrentQuantity = q
	}
	r.MfgDate = looseTime(fields["mfgDate"])
	r.ExpireDate = looseTime(fields["expireDate"])
	r.CreatedAt = looseTime(fields["createdAt"])
	if id, ok := looseNumber(fields["id"]); ok && id == math.Trunc(id) && math.Abs(id) < 1<<53 {
		r.LegacyID = LegacyID(int64(id))
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp accepts the timestamp spellings found in legacy backups.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// looseNumber accepts JSON numbers, numeric strings and extended-JSON
// wrappers such as {"$numberLong": "77"}.
func looseNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, !math.IsInf(f, 0) && !math.IsNaN(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		for _, key := range []string{"$numberLong", "$numberInt", "$numberDouble", "$numberDecimal"} {
			if inner, ok := wrapped[key]; ok {
				return looseNumber(inner)
			}
		}
	}
	return 0, false
}

// looseTime accepts timestamp strings, epoch milliseconds and the
// extended-JSON {"$date": ...} wrapper. Anything else is the zero time.
func looseTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, _ := ParseTimestamp(s)
		return t
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return time.UnixMilli(int64(ms)).UTC()
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		if inner, ok := wrapped["$date"]; ok {
			if ms, ok := looseNumber(inner); ok {
				return time.UnixMilli(int64(ms)).UTC()
			}
			return looseTime(inner)
		}
	}
	return time.Time{}
}

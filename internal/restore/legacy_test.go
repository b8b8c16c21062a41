package restore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLegacyRecordDecodesLeniently(t *testing.T) {
	payload := `[
		{"productName": "Milk", "barcode": 8991234, "branchName": "East", "currentQuantity": "12.7",
		 "unit": "box", "mfgDate": "2024-01-02", "expireDate": "2024-03-04T15:04:05.123Z", "id": "77",
		 "createdAt": 1704153600000},
		{"productName": ["not", "a", "string"], "currentQuantity": {"x": 1}, "expireDate": "soon", "id": 1.5},
		"garbage",
		null,
		{"productName": "Tea", "expireDate": {"$date": "2024-05-01T00:00:00Z"}, "id": {"$numberLong": "9"}}
	]`

	var records []LegacyRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &records))
	require.Len(t, records, 5)

	milk := records[0]
	require.False(t, milk.Malformed())
	require.Equal(t, "Milk", milk.ProductName)
	require.Equal(t, "8991234", milk.Barcode)
	require.Equal(t, 12.7, milk.CurrentQuantity)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), milk.MfgDate)
	require.Equal(t, time.Date(2024, 3, 4, 15, 4, 5, 123000000, time.UTC), milk.ExpireDate)
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), milk.CreatedAt)
	require.NotNil(t, milk.LegacyID)
	require.Equal(t, int64(77), *milk.LegacyID)

	wrong := records[1]
	require.False(t, wrong.Malformed())
	require.Empty(t, wrong.ProductName)
	require.Zero(t, wrong.CurrentQuantity)
	require.True(t, wrong.ExpireDate.IsZero())
	require.Nil(t, wrong.LegacyID)

	require.True(t, records[2].Malformed())
	require.True(t, records[3].Malformed())

	tea := records[4]
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), tea.ExpireDate)
	require.Equal(t, int64(9), *tea.LegacyID)
}

func TestLegacyRecordMarshalsForQueue(t *testing.T) {
	in := LegacyRecord{
		ProductName:     "Milk",
		BranchName:      "East",
		CurrentQuantity: 3,
		ExpireDate:      time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		LegacyID:        LegacyID(12),
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"productName":"Milk","branchName":"East","currentQuantity":3,"expireDate":"2024-03-04T00:00:00Z","id":12}`, string(raw))

	var out LegacyRecord
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-04":                time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		"2024-03-04 10:11:12":       time.Date(2024, 3, 4, 10, 11, 12, 0, time.UTC),
		"2024-03-04T10:11:12+07:00": time.Date(2024, 3, 4, 3, 11, 12, 0, time.UTC),
		"1709510400000":             time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, in)
		require.True(t, want.Equal(got), "%s: got %s", in, got)
	}
	_, ok := ParseTimestamp("next tuesday")
	require.False(t, ok)
}

func TestParseRejections(t *testing.T) {
	expiry := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)

	_, err := Parse(LegacyRecord{malformed: true}, "", t0)
	require.ErrorIs(t, err, ErrMalformedRecord)
	_, err = Parse(LegacyRecord{BranchName: "East", ExpireDate: expiry}, "", t0)
	require.ErrorIs(t, err, ErrMissingProduct)
	_, err = Parse(LegacyRecord{ProductName: "Milk", ExpireDate: expiry}, "", t0)
	require.ErrorIs(t, err, ErrMissingBranch)
	_, err = Parse(LegacyRecord{ProductName: "Milk", BranchName: "East"}, "", t0)
	require.ErrorIs(t, err, ErrInvalidExpiry)

	c, err := Parse(LegacyRecord{ProductName: "Milk", ExpireDate: expiry, CurrentQuantity: -3}, "Central", t0)
	require.NoError(t, err)
	require.Equal(t, "Central", c.BranchName)
	require.Zero(t, c.Quantity)
	require.Nil(t, c.Barcode)
	require.Empty(t, c.Marker)
	require.Equal(t, t0, c.MfgDate)
	require.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), c.ExpDate)
}

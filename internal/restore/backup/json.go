package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// ReadJSON accepts a top-level array of records or an object holding them
// under "records".
func ReadJSON(r io.Reader) ([]restore.LegacyRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("backup: read json: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("backup: empty json document")
	}

	var records []restore.LegacyRecord
	if data[0] == '{' {
		var envelope struct {
			Records []restore.LegacyRecord `json:"records"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("backup: decode json: %w", err)
		}
		return envelope.Records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("backup: decode json: %w", err)
	}
	return records, nil
}

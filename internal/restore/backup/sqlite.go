package backup

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// DefaultTable is the table legacy SQLite exports keep stock lines in.
const DefaultTable = "inventory"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type sqliteRow struct {
	ID              sql.NullInt64   `db:"id"`
	ProductName     sql.NullString  `db:"product_name"`
	Barcode         sql.NullString  `db:"barcode"`
	BranchName      sql.NullString  `db:"branch_name"`
	CurrentQuantity sql.NullFloat64 `db:"current_quantity"`
	Unit            sql.NullString  `db:"unit"`
	MfgDate         sql.NullString  `db:"mfg_date"`
	ExpireDate      sql.NullString  `db:"expire_date"`
	CreatedAt       sql.NullString  `db:"created_at"`
}

// ReadSQLite reads every row of table from the SQLite file at path, in
// rowid order. The file is opened read-only.
func ReadSQLite(ctx context.Context, path, table string) ([]restore.LegacyRecord, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("backup: invalid table name %q", table)
	}

	conn, err := sqlx.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("backup: open sqlite: %w", err)
	}
	defer conn.Close()

	var rows []sqliteRow
	query := fmt.Sprintf(`SELECT id, product_name, barcode, branch_name, current_quantity, unit, mfg_date, expire_date, created_at
FROM %s ORDER BY rowid`, table)
	if err := conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("backup: read table %s: %w", table, err)
	}

	records := make([]restore.LegacyRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

func (r sqliteRow) record() restore.LegacyRecord {
	rec := restore.LegacyRecord{
		ProductName:     r.ProductName.String,
		Barcode:         r.Barcode.String,
		BranchName:      r.BranchName.String,
		CurrentQuantity: r.CurrentQuantity.Float64,
		Unit:            r.Unit.String,
	}
	rec.MfgDate, _ = restore.ParseTimestamp(r.MfgDate.String)
	rec.ExpireDate, _ = restore.ParseTimestamp(r.ExpireDate.String)
	rec.CreatedAt, _ = restore.ParseTimestamp(strings.TrimSpace(r.CreatedAt.String))
	if r.ID.Valid {
		rec.LegacyID = restore.LegacyID(r.ID.Int64)
	}
	return rec
}

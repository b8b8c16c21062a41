package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
)

// ErrQuantityOutOfRange indicates a quantity the quantity column cannot hold.
var ErrQuantityOutOfRange = errors.New("inventory: quantity out of range")

var recordColumns = []string{"id", "product_name", "barcode", "quantity", "unit", "mfg_date", "exp_date", "branch_name", "status", "notes", "created_at"}

// Repository persists inventory records in PostgreSQL.
type Repository struct {
	conn        db.Conn
	bulkTimeout time.Duration
}

// NewRepository constructs Repository. bulkTimeout bounds one bulk insert;
// zero leaves it unbounded.
func NewRepository(conn db.Conn, bulkTimeout time.Duration) *Repository {
	return &Repository{conn: conn, bulkTimeout: bulkTimeout}
}

// FindMatches returns stored records whose content key equals any of keys or
// whose notes equal any of markers, in a single round trip. Keys arrive folded
// by Fold and are compared with PostgreSQL lower(), so non-ASCII names only
// match when the database collation folds Unicode (see FoldsUnicode). Misses
// fall through to the unique indexes and the sequential commit.
func (r *Repository) FindMatches(ctx context.Context, keys []ContentKey, markers []string) ([]Record, error) {
	if len(keys) == 0 && len(markers) == 0 {
		return nil, nil
	}
	products := make([]string, len(keys))
	barcodes := make([]string, len(keys))
	branches := make([]string, len(keys))
	expiries := make([]time.Time, len(keys))
	for i, k := range keys {
		products[i] = k.Product
		barcodes[i] = k.Barcode
		branches[i] = k.Branch
		expiries[i] = k.Expiry
	}
	if markers == nil {
		markers = []string{}
	}

	rows, err := r.conn.Query(ctx, `SELECT r.id, r.product_name, r.barcode, r.quantity, r.unit, r.mfg_date, r.exp_date, r.branch_name, r.status, r.notes, r.created_at
FROM inventory_records r
WHERE EXISTS (
	SELECT 1 FROM unnest($1::text[], $2::text[], $3::text[], $4::timestamptz[]) AS k(product, barcode, branch, expiry)
	WHERE lower(btrim(r.product_name)) = k.product
	  AND COALESCE(r.barcode, '') = k.barcode
	  AND lower(btrim(r.branch_name)) = k.branch
	  AND r.exp_date = k.expiry
) OR r.notes = ANY($5::text[])`, products, barcodes, branches, expiries, markers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// InsertMany writes all records with one COPY. Either every row is written
// or none is.
func (r *Repository) InsertMany(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if err := checkRange(rec); err != nil {
			return err
		}
		rows = append(rows, recordValues(rec))
	}
	err := db.WithTx(ctx, r.conn, r.bulkTimeout, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"inventory_records"}, recordColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("inventory: copied %d of %d rows", n, len(rows))
		}
		return nil
	})
	if db.IsRowRejection(err) {
		return db.Permanent(err)
	}
	return err
}

// Insert writes a single record.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	if err := checkRange(rec); err != nil {
		return err
	}
	_, err := r.conn.Exec(ctx, `INSERT INTO inventory_records (id, product_name, barcode, quantity, unit, mfg_date, exp_date, branch_name, status, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, recordValues(rec)...)
	if db.IsRowRejection(err) {
		return db.Permanent(err)
	}
	return err
}

// unicodeFoldSample is folded by Fold to its lower-case form.
const unicodeFoldSample = "ÄÉÎ"

// FoldsUnicode reports whether lower() in the database folds non-ASCII
// letters the way Fold does. A "C" or "POSIX" collation folds ASCII only.
func (r *Repository) FoldsUnicode(ctx context.Context) (bool, error) {
	var folded bool
	err := r.conn.QueryRow(ctx, `SELECT lower($1::text) = $2::text`, unicodeFoldSample, Fold(unicodeFoldSample)).Scan(&folded)
	if err != nil {
		return false, fmt.Errorf("inventory: check case folding: %w", err)
	}
	return folded, nil
}

// DistinctBranchNames lists the trimmed, non-empty branch names referenced by records.
func (r *Repository) DistinctBranchNames(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT btrim(branch_name) FROM inventory_records WHERE btrim(branch_name) <> '' ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func checkRange(rec Record) error {
	if rec.Quantity < 0 || rec.Quantity > math.MaxInt32 {
		return db.Permanent(fmt.Errorf("%w: %d", ErrQuantityOutOfRange, rec.Quantity))
	}
	return nil
}

func recordValues(rec Record) []any {
	return []any{
		pgtype.UUID{Bytes: rec.ID, Valid: true},
		rec.ProductName,
		rec.Barcode,
		int32(rec.Quantity),
		rec.Unit,
		rec.MfgDate,
		rec.ExpDate,
		rec.BranchName,
		string(rec.Status),
		rec.Notes,
		rec.CreatedAt,
	}
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		id     pgtype.UUID
		qty    int32
		status string
	)
	if err := row.Scan(&id, &rec.ProductName, &rec.Barcode, &qty, &rec.Unit, &rec.MfgDate, &rec.ExpDate, &rec.BranchName, &status, &rec.Notes, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.ID = uuid.UUID(id.Bytes)
	rec.Quantity = int64(qty)
	rec.Status = Status(status)
	return rec, nil
}

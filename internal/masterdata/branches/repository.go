package branches

import (
	"context"

	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
)

type Repository interface {
	ListNames(ctx context.Context) ([]string, error)
	CreateSkipExisting(ctx context.Context, branches []Branch) ([]string, error)
}

type repository struct {
	db db.Conn
}

func NewRepository(conn db.Conn) Repository {
	return &repository{db: conn}
}

func (r *repository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM branches ORDER BY name`)
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

// CreateSkipExisting inserts every branch whose name does not exist yet,
// compared case-insensitively, and returns the names actually created.
// Concurrent or repeated calls never error on existing names.
func (r *repository) CreateSkipExisting(ctx context.Context, branches []Branch) ([]string, error) {
	if len(branches) == 0 {
		return nil, nil
	}
	names := make([]string, len(branches))
	statuses := make([]string, len(branches))
	managers := make([]string, len(branches))
	addresses := make([]string, len(branches))
	for i, b := range branches {
		names[i] = b.Name
		statuses[i] = b.Status
		managers[i] = b.Manager
		addresses[i] = b.Address
	}

	query := `INSERT INTO branches (name, status, manager, address, created_at, updated_at)
SELECT c.name, c.status, c.manager, c.address, NOW(), NOW()
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[]) AS c(name, status, manager, address)
WHERE NOT EXISTS (SELECT 1 FROM branches b WHERE lower(b.name) = lower(c.name))
ON CONFLICT (name) DO NOTHING
RETURNING name`
	rows, err := r.db.Query(ctx, query, names, statuses, managers, addresses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var created []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		created = append(created, name)
	}
	return created, rows.Err()
}

package restore

import (
	"context"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
	"github.com/odyssey-erp/odyssey-restore/internal/masterdata/branches"
)

// InventoryStore is the part of the inventory repository the restore path uses.
type InventoryStore interface {
	FindMatches(ctx context.Context, keys []inventory.ContentKey, markers []string) ([]inventory.Record, error)
	InsertMany(ctx context.Context, records []inventory.Record) error
	Insert(ctx context.Context, rec inventory.Record) error
	DistinctBranchNames(ctx context.Context) ([]string, error)
}

// BranchStore is satisfied by branches.Repository.
type BranchStore interface {
	ListNames(ctx context.Context) ([]string, error)
	CreateSkipExisting(ctx context.Context, branches []branches.Branch) ([]string, error)
}

// Runner executes one store operation with retries. db.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, op func(context.Context) error) error
}

// Locker serializes restore batches across callers.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

var (
	_ InventoryStore = (*inventory.Repository)(nil)
	_ BranchStore    = (branches.Repository)(nil)
)

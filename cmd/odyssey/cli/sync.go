package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/odyssey-erp/odyssey-restore/internal/restore"
)

// BranchSyncer creates branches referenced only by inventory rows.
type BranchSyncer interface {
	SyncBranches(ctx context.Context) (restore.SyncResult, error)
}

// SyncBranches runs a synchronization and prints the outcome.
func SyncBranches(ctx context.Context, syncer BranchSyncer, w io.Writer, asJSON bool) (restore.SyncResult, error) {
	result, err := syncer.SyncBranches(ctx)
	if err != nil {
		return result, fmt.Errorf("sync cli: %w", err)
	}
	if w == nil {
		return result, nil
	}
	if asJSON {
		return result, json.NewEncoder(w).Encode(result)
	}
	if result.Created == 0 {
		_, err = fmt.Fprintln(w, "branches already in sync")
		return result, err
	}
	_, err = fmt.Fprintf(w, "created %d branches: %s\n", result.Created, strings.Join(result.Names, ", "))
	return result, err
}

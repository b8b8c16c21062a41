package restore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
)

type failingCommitter struct{ calls int }

func (c *failingCommitter) Commit(context.Context, []inventory.Record) (CommitResult, error) {
	c.calls++
	return CommitResult{}, errors.New("copy aborted")
}

func records(quantities ...int64) []inventory.Record {
	out := make([]inventory.Record, len(quantities))
	for i, q := range quantities {
		out[i] = inventory.Record{ProductName: "Item", BranchName: "East", Quantity: q}
	}
	return out
}

func TestBulkCommitterIsAllOrNothing(t *testing.T) {
	store := &memInventory{}
	bulk := NewBulkCommitter(store, newTestRunner())

	result, err := bulk.Commit(context.Background(), records(1, 2, 3))
	require.NoError(t, err)
	require.Equal(t, CommitResult{Imported: 3}, result)

	_, err = bulk.Commit(context.Background(), records(1, 1<<40))
	require.ErrorIs(t, err, inventory.ErrQuantityOutOfRange)
	require.Len(t, store.all(), 3)
}

func TestSequentialCommitterCountsFailures(t *testing.T) {
	store := &memInventory{}
	seq := NewSequentialCommitter(store, newTestRunner(), nil)

	result, err := seq.Commit(context.Background(), records(1, 1<<40, 3, 1<<41))
	require.NoError(t, err)
	require.Equal(t, CommitResult{Imported: 2, Failed: 2}, result)
	require.Equal(t, 4, store.insertCalls)
}

func TestFallbackCommitterDowngrades(t *testing.T) {
	store := &memInventory{}
	primary := &failingCommitter{}
	fallbacks := 0
	committer := &FallbackCommitter{
		Primary:    primary,
		Fallback:   NewSequentialCommitter(store, newTestRunner(), nil),
		OnFallback: func() { fallbacks++ },
	}

	result, err := committer.Commit(context.Background(), records(1, 2))
	require.NoError(t, err)
	require.Equal(t, CommitResult{Imported: 2}, result)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, fallbacks)
}

func TestFallbackCommitterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &memInventory{}
	committer := &FallbackCommitter{
		Primary:  &failingCommitter{},
		Fallback: NewSequentialCommitter(store, newTestRunner(), nil),
	}

	result, err := committer.Commit(ctx, records(1, 2))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, result.Failed)
	require.Zero(t, store.insertCalls)
}

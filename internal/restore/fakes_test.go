package restore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
	"github.com/odyssey-erp/odyssey-restore/internal/masterdata/branches"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
)

// memInventory mimics the PostgreSQL repository: quantities beyond int32 are
// rejected permanently and InsertMany is all-or-nothing.
type memInventory struct {
	mu          sync.Mutex
	records     []inventory.Record
	findErr     error
	findCalls   int
	bulkCalls   int
	insertCalls int
}

func (m *memInventory) FindMatches(_ context.Context, keys []inventory.ContentKey, markers []string) ([]inventory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	wantKeys := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wantKeys[k.Hash()] = struct{}{}
	}
	wantMarkers := make(map[string]struct{}, len(markers))
	for _, marker := range markers {
		wantMarkers[marker] = struct{}{}
	}
	var out []inventory.Record
	for _, rec := range m.records {
		_, keyHit := wantKeys[inventory.KeyOf(rec).Hash()]
		markerHit := false
		if rec.Notes != nil {
			_, markerHit = wantMarkers[*rec.Notes]
		}
		if keyHit || markerHit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memInventory) InsertMany(_ context.Context, records []inventory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls++
	for _, rec := range records {
		if err := checkQuantity(rec); err != nil {
			return err
		}
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memInventory) Insert(_ context.Context, rec inventory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if err := checkQuantity(rec); err != nil {
		return err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memInventory) DistinctBranchNames(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	var names []string
	for _, rec := range m.records {
		if _, ok := seen[rec.BranchName]; ok || rec.BranchName == "" {
			continue
		}
		seen[rec.BranchName] = struct{}{}
		names = append(names, rec.BranchName)
	}
	return names, nil
}

func (m *memInventory) all() []inventory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inventory.Record(nil), m.records...)
}

func checkQuantity(rec inventory.Record) error {
	if rec.Quantity > math.MaxInt32 {
		return db.Permanent(fmt.Errorf("%w: %d", inventory.ErrQuantityOutOfRange, rec.Quantity))
	}
	return nil
}

type memBranches struct {
	mu        sync.Mutex
	branches  []branches.Branch
	createErr error
}

func (m *memBranches) ListNames(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.branches))
	for _, b := range m.branches {
		names = append(names, b.Name)
	}
	return names, nil
}

func (m *memBranches) CreateSkipExisting(_ context.Context, candidates []branches.Branch) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	var created []string
	for _, c := range candidates {
		exists := false
		for _, b := range m.branches {
			if inventory.Fold(b.Name) == inventory.Fold(c.Name) {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		c.ID = int64(len(m.branches) + 1)
		m.branches = append(m.branches, c)
		created = append(created, c.Name)
	}
	return created, nil
}

func (m *memBranches) byName(name string) (branches.Branch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.branches {
		if b.Name == name {
			return b, true
		}
	}
	return branches.Branch{}, false
}

func (m *memBranches) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.branches)
}

type connectedStore struct{}

func (connectedStore) State() db.State                   { return db.StateConnected }
func (connectedStore) EnsureReady(context.Context) error { return nil }
func (connectedStore) MarkUnhealthy(error)               {}

func newTestRunner() *db.Executor {
	return db.NewExecutor(connectedStore{}, db.ExecutorConfig{MaxAttempts: 3}, nil, nil)
}

type failingLock struct{}

func (failingLock) Acquire(context.Context) (func(), error) {
	return nil, errors.New("lock held elsewhere")
}

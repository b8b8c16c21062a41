package restore

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
	"github.com/odyssey-erp/odyssey-restore/internal/masterdata/branches"
)

// Addresses stamped on branches created without an operator.
const (
	AddressRestored    = "Restored from Backup"
	AddressAutoCreated = "Auto-created from Inventory"
)

// Provisioner makes sure every branch a batch references exists before its
// records are written.
type Provisioner struct {
	branches BranchStore
	runner   Runner
	logger   *slog.Logger
}

// NewProvisioner constructs a Provisioner.
func NewProvisioner(store BranchStore, runner Runner, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{branches: store, runner: runner, logger: logger}
}

// BranchNames returns the branch names a batch needs: the override alone
// when one is given, otherwise the distinct trimmed non-empty names of the
// raw records in first-seen order.
func BranchNames(records []LegacyRecord, override string) []string {
	if name := inventory.Clean(override, inventory.MaxBranchNameLen); name != "" {
		return []string{name}
	}
	seen := make(map[string]struct{})
	var names []string
	for _, rec := range records {
		if rec.Malformed() {
			continue
		}
		name := inventory.Clean(rec.BranchName, inventory.MaxBranchNameLen)
		if name == "" {
			continue
		}
		folded := inventory.Fold(name)
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		names = append(names, name)
	}
	return names
}

// EnsureBranches creates the missing branches among names in one bulk
// statement and returns how many were created. Existing names, in any
// letter case, are left alone.
func (p *Provisioner) EnsureBranches(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	candidates := make([]branches.Branch, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, branches.NewDefault(name, AddressRestored))
	}
	var created []string
	err := p.runner.Run(ctx, "branches.create_skip_existing", func(ctx context.Context) error {
		var err error
		created, err = p.branches.CreateSkipExisting(ctx, candidates)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(created) > 0 {
		p.logger.Info("branches provisioned", slog.Int("count", len(created)), slog.Any("names", created))
	}
	return len(created), nil
}

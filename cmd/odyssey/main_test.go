package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-restore/internal/app"
	_ "github.com/odyssey-erp/odyssey-restore/testing"
)

func TestRootCommandLayout(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())

	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	require.ElementsMatch(t, []string{"serve", "restore", "sync-branches", "queue-stats"}, names)

	restoreCmd, _, err := root.Find([]string{"restore"})
	require.NoError(t, err)
	for _, flag := range []string{"file", "branch", "batch-size", "sheet", "table", "enqueue", "json"} {
		require.NotNil(t, restoreCmd.Flags().Lookup(flag), flag)
	}
}

func TestRestoreRequiresFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"restore"})
	root.SetOut(new(discard))
	root.SetErr(new(discard))
	err := root.Execute()
	require.ErrorContains(t, err, `required flag(s) "file" not set`)
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

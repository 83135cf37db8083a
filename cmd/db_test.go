package cmd

import (
	"bytes"
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/launchbot/config"
	"github.com/otherjamesbrown/launchbot/pkg/db"
)

// TestDbCommand tests the parent db command structure.
func TestDbCommand(t *testing.T) {
	cmd := NewDbCommand(DefaultDeps())

	assert.Equal(t, "db", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "status", "cleanup"}, names)
}

func TestDbMigrateCommand_Flags(t *testing.T) {
	cmd := NewDbCommand(DefaultDeps())

	migrateCmd, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)
	assert.NotEmpty(t, migrateCmd.Example)

	tests := []struct {
		name string
		typ  string
	}{
		{"dry-run", "bool"},
		{"target", "string"},
		{"yes", "bool"},
	}
	for _, tt := range tests {
		flag := migrateCmd.Flags().Lookup(tt.name)
		require.NotNil(t, flag, "--%s", tt.name)
		assert.Equal(t, tt.typ, flag.Value.Type())
		assert.NotEmpty(t, flag.Usage)
	}

	assert.NotNil(t, migrateCmd.InheritedFlags().Lookup("migrations"))
}

func TestDbStatusCommand_OutputFlag(t *testing.T) {
	cmd := NewDbCommand(DefaultDeps())

	statusCmd, _, err := cmd.Find([]string{"status"})
	require.NoError(t, err)
	require.NotNil(t, statusCmd.Flags().Lookup("output"))
	assert.NotEmpty(t, statusCmd.Example)
}

func TestDbCleanupCommand_RetentionFlag(t *testing.T) {
	cmd := NewDbCommand(DefaultDeps())

	cleanupCmd, _, err := cmd.Find([]string{"cleanup"})
	require.NoError(t, err)
	flag := cleanupCmd.Flags().Lookup("retention")
	require.NotNil(t, flag)
	assert.Equal(t, "duration", flag.Value.Type())
}

func TestDbCommands_RequireDatabase(t *testing.T) {
	deps := &Deps{
		LoadConfig: func(config.Options) (*config.Config, error) { return &config.Config{}, nil },
	}

	for _, sub := range []string{"migrate", "status", "cleanup"} {
		t.Run(sub, func(t *testing.T) {
			cmd := NewDbCommand(deps)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{sub})

			err := cmd.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "no database configured")
		})
	}
}

func TestDbFlags_Migrations(t *testing.T) {
	embedded := (&dbFlags{}).migrations()
	entries, err := fsEntries(embedded)
	require.NoError(t, err)
	assert.Contains(t, entries, "001_command_log.sql")

	dir := t.TempDir()
	fromDir := (&dbFlags{migrationDir: dir}).migrations()
	entries, err = fsEntries(fromDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func fsEntries(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Apply? "), "input %q", tt.input)
		assert.Equal(t, "Apply? ", out.String())
	}
}

func TestOutputMigrationStatusText(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	status := &db.MigrationStatus{
		Applied: []db.MigrationStatusEntry{{Version: "001", Name: "command_log", AppliedAt: &applied}},
		Pending: []db.MigrationStatusEntry{{Version: "002", Name: "launch_status_snapshots"}},
		Drift:   []db.MigrationStatusEntry{{Version: "000", Name: "legacy", AppliedAt: &applied}},
	}

	var out bytes.Buffer
	outputMigrationStatusText(&out, status)

	text := out.String()
	assert.Contains(t, text, "Applied Migrations (1):")
	assert.Contains(t, text, "2026-01-02 03:04:05")
	assert.Contains(t, text, "Pending Migrations (1):")
	assert.Contains(t, text, "launch_status_snapshots")
	assert.Contains(t, text, "Drift (1)")
	assert.Contains(t, text, "Summary: 1 applied, 1 pending")
	assert.Contains(t, text, "1 drift")
}

func TestOutputMigrationStatusText_Empty(t *testing.T) {
	var out bytes.Buffer
	outputMigrationStatusText(&out, &db.MigrationStatus{})
	assert.Equal(t, "No migrations found.\n", out.String())
}

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/launchbot/config"
	"github.com/otherjamesbrown/launchbot/pkg/buildinfo"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/warehouse"
)

// execute runs rootCmd with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		versionOutput = string(config.OutputFormatText)
		configOutput = string(config.OutputFormatText)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "status", "db", "auth", "config", "version"} {
		assert.Contains(t, names, want)
	}

	flag := rootCmd.PersistentFlags().Lookup("env-file")
	require.NotNil(t, flag)
	assert.Equal(t, config.DefaultEnvFile, flag.DefValue)
}

func TestVersionCommand_Text(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "launchbot version "+buildinfo.Version))
	assert.Contains(t, out, "commit:")
	assert.Contains(t, out, "built:")
	assert.Contains(t, out, "go:")
}

func TestVersionCommand_JSON(t *testing.T) {
	out, err := execute(t, "version", "--output", "json")
	require.NoError(t, err)

	var info buildinfo.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "launchbot", info.ServiceName)
	assert.Equal(t, buildinfo.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func withConfig(t *testing.T, load func(config.Options) (*config.Config, error)) {
	t.Helper()
	orig := deps.LoadConfig
	deps.LoadConfig = load
	t.Cleanup(func() { deps.LoadConfig = orig })
}

func TestConfigShow(t *testing.T) {
	tables := map[launch.DepartmentKey]string{}
	for _, key := range launch.AllDepartments() {
		tables[key] = "t_" + string(key)
	}
	tables[launch.DepartmentFourP] = "four_p"
	catalog, err := launch.NewCatalog("vehicle_programs", "launch", launch.DefaultDepartments(tables))
	require.NoError(t, err)

	var gotEnvFile string
	withConfig(t, func(opts config.Options) (*config.Config, error) {
		gotEnvFile = opts.EnvFile
		return &config.Config{
			Environment: "staging",
			Warehouse:   &warehouse.Config{Host: "adb-1.azuredatabricks.net", Token: "dapi0123456789abcdef"},
			Catalog:     catalog,
		}, nil
	})

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "--env-file", "staging.env", "config", "show")
		require.NoError(t, err)
		assert.Equal(t, "staging.env", gotEnvFile)
		assert.Contains(t, out, "staging")
		assert.Contains(t, out, "dapi************cdef")
		assert.NotContains(t, out, "dapi0123456789abcdef")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "config", "show", "--output", "json")
		require.NoError(t, err)

		var settings []config.Setting
		require.NoError(t, json.Unmarshal([]byte(out), &settings))
		values := map[string]string{}
		for _, s := range settings {
			values[s.Key] = s.Value
		}
		assert.Equal(t, "dapi************cdef", values["warehouse.token"])
	})
}

func TestConfigShow_Error(t *testing.T) {
	withConfig(t, func(config.Options) (*config.Config, error) {
		return nil, errors.New("missing DATABRICKS_HOST")
	})

	_, err := execute(t, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

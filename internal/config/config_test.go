package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/pathrules"
)

func lookupMap(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 16, cfg.MaxDepth)
	require.Equal(t, []string{".ytd"}, cfg.RawExtensions)
	require.Equal(t, 30*time.Minute, cfg.Serve.SessionIdle)

	opts := cfg.CodecOptions()
	require.Nil(t, opts.Compress)
	require.Nil(t, opts.Resources)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpftool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
max_depth: 4
passphrase: secret
codec:
  compress: ["*", "!*.rpf"]
  backup_keep: 2
serve:
  addr: ":9000"
  session_idle: 5m
`), 0o600))

	t.Chdir(dir)
	t.Setenv(EnvMaxDepth, "8")
	t.Setenv(EnvRawExtensions, ".ytd, .ydr,,")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, 8, cfg.MaxDepth)
	require.Equal(t, "secret", cfg.Passphrase)
	require.Equal(t, ":9000", cfg.Serve.Addr)
	require.Equal(t, 5*time.Minute, cfg.Serve.SessionIdle)
	require.Equal(t, time.Minute, cfg.Serve.JanitorInterval)
	require.Equal(t, []string{".ytd", ".ydr"}, cfg.RawExtensions)

	opts := cfg.CodecOptions()
	require.Equal(t, 2, opts.BackupKeep)
	require.Equal(t, []pathrules.Rule{
		{Action: pathrules.ActionInclude, Pattern: "*"},
		{Action: pathrules.ActionExclude, Pattern: "*.rpf"},
	}, opts.Compress)

	r := cfg.Resolver(nil)
	require.Equal(t, 8, r.MaxDepth)
	require.Equal(t, "secret", r.Options.Passphrase)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultDotEnv), []byte("RPF_WORKERS=3\n"), 0o600))

	t.Chdir(dir)
	t.Setenv(EnvWorkers, "")
	require.NoError(t, os.Unsetenv(EnvWorkers))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Workers)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("colour: red\n"), 0o600))
	_, err = Load(unknown)
	require.Error(t, err)

	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("max_depth: -1\n"), 0o600))
	_, err = Load(negative)
	require.ErrorIs(t, err, ErrInvalid)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	cfg, err := Load(empty)
	require.NoError(t, err)
	require.Equal(t, Default().Serve.Addr, cfg.Serve.Addr)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := ApplyEnv(&cfg, lookupMap(map[string]string{
		EnvLogLevel:       "warn",
		EnvTempDir:        "/tmp/rpf",
		EnvIndexCacheSize: "64",
		EnvSessionIdle:    "90s",
		EnvPassphrase:     "",
	}))
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "/tmp/rpf", cfg.TempDir)
	require.Equal(t, 64, cfg.Serve.IndexCacheSize)
	require.Equal(t, 90*time.Second, cfg.Serve.SessionIdle)
	require.Empty(t, cfg.Passphrase)

	err = ApplyEnv(&cfg, lookupMap(map[string]string{EnvWorkers: "many", EnvBackupKeep: "x"}))
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorContains(t, err, EnvWorkers)
	require.ErrorContains(t, err, EnvBackupKeep)

	err = ApplyEnv(&cfg, lookupMap(map[string]string{EnvSessionIdle: "soon"}))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestRules(t *testing.T) {
	t.Parallel()

	require.Nil(t, Rules(nil))
	require.Empty(t, Rules([]string{}))
	require.Equal(t, []pathrules.Rule{
		{Action: pathrules.ActionInclude, Pattern: "*.ytd"},
		{Action: pathrules.ActionExclude, Pattern: "big/*"},
	}, Rules([]string{" *.ytd ", "", "!big/*"}))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Workers = -1
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	require.ErrorContains(t, err, "workers")
	require.ErrorContains(t, err, "loud")
}

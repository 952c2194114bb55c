package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IMAP_HOST", "")
	t.Setenv("IMAP_USER", "")
	t.Setenv("IMAP_PASS", "")
	os.Unsetenv("IMAP_HOST")
	os.Unsetenv("IMAP_USER")
	os.Unsetenv("IMAP_PASS")
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
db_path: archive.db
folder_workers: 4
accounts:
  - host: mail.example.com
    username: alice@example.com
    password: hunter2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "archive.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.FolderWorkers)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "alice@example.com", cfg.Accounts[0].Username)
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAP_HOST", "mail.example.com")
	t.Setenv("IMAP_USER", "alice@example.com")
	t.Setenv("IMAP_PASS", "hunter2")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("data", "database", "messages.db"), cfg.DBPath)
	assert.Equal(t, 14, cfg.FolderWorkers)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestEnvOverridesAccounts(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAP_HOST", "imap.a.com, imap.b.com")
	t.Setenv("IMAP_USER", "a@a.com, b@b.com")
	t.Setenv("IMAP_PASS", "pass-a, pass-b")

	path := writeConfig(t, `
accounts:
  - host: ignored.example.com
    username: ignored@example.com
    password: ignored
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "imap.a.com", cfg.Accounts[0].Host)
	assert.Equal(t, "a@a.com", cfg.Accounts[0].Username)
	assert.Equal(t, "pass-b", cfg.Accounts[1].Password)
}

func TestEnvMismatchedCounts(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAP_HOST", "imap.a.com,imap.b.com")
	t.Setenv("IMAP_USER", "a@a.com")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvHostWithoutUser(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAP_HOST", "imap.a.com")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAP_USER")
}

func TestNoAccountsIsFatal(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no accounts configured")
}

func TestCredentialsUseConfiguredPassword(t *testing.T) {
	cfg := &Config{Accounts: []AccountConfig{
		{Host: "mail.example.com", Username: "alice@example.com", Password: "hunter2"},
	}}

	creds, err := cfg.Credentials()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "hunter2", creds[0].Password)
}

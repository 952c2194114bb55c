// Package config loads the archive configuration from an optional
// YAML file with environment overrides. Credentials arrive as
// comma-separated IMAP_HOST/IMAP_USER/IMAP_PASS triples, one entry
// per account; passwords left blank are resolved from the system
// keyring at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nhle/mail-archive/internal/credential"
	"github.com/nhle/mail-archive/internal/model"
)

// AccountConfig is one configured mailbox.
type AccountConfig struct {
	// Host is the IMAP server, with optional :port.
	Host string `mapstructure:"host" yaml:"host"`

	// Username is the mailbox login.
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the mailbox password. Leave empty to resolve it
	// from the system keyring under "imap-<username>".
	Password string `mapstructure:"password" yaml:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// FolderWorkers caps concurrent folder fetches per account.
	FolderWorkers int `mapstructure:"folder_workers" yaml:"folder_workers"`

	// LogLevel is the zap log level name.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// Accounts lists the mailboxes to archive.
	Accounts []AccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/mailarchive/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailarchive", "config.yaml")
}

// Load reads the configuration from path (or the default location
// when path is empty) and applies environment overrides. A missing
// file is fine; missing credentials are not — ingestion must fail
// before any remote work starts.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("db_path", filepath.Join("data", "database", "messages.db"))
	v.SetDefault("folder_workers", 14)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file falls back to defaults plus env.
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := applyEnvAccounts(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured: set IMAP_HOST, IMAP_USER, and IMAP_PASS or add accounts to %s", path)
	}

	return cfg, nil
}

// applyEnvAccounts replaces the account list with comma-separated
// IMAP_HOST/IMAP_USER/IMAP_PASS triples when set.
func applyEnvAccounts(cfg *Config) error {
	hosts, hostsSet := os.LookupEnv("IMAP_HOST")
	users, usersSet := os.LookupEnv("IMAP_USER")
	passwords := os.Getenv("IMAP_PASS")

	if !hostsSet && !usersSet {
		return nil
	}
	if !hostsSet {
		return fmt.Errorf("IMAP_HOST environment variable not set")
	}
	if !usersSet {
		return fmt.Errorf("IMAP_USER environment variable not set")
	}

	hostList := splitList(hosts)
	userList := splitList(users)
	passList := splitList(passwords)

	if len(userList) != len(hostList) {
		return fmt.Errorf("IMAP_USER lists %d entries, IMAP_HOST lists %d", len(userList), len(hostList))
	}
	if len(passList) > 0 && len(passList) != len(hostList) {
		return fmt.Errorf("IMAP_PASS lists %d entries, IMAP_HOST lists %d", len(passList), len(hostList))
	}

	cfg.Accounts = cfg.Accounts[:0]
	for i, host := range hostList {
		acct := AccountConfig{Host: host, Username: userList[i]}
		if len(passList) > 0 {
			acct.Password = passList[i]
		}
		cfg.Accounts = append(cfg.Accounts, acct)
	}

	return nil
}

// Credentials resolves the configured accounts into connection
// credentials, filling blank passwords from the system keyring.
// Failing to resolve any password is a configuration error.
func (c *Config) Credentials() ([]model.Credentials, error) {
	creds := make([]model.Credentials, 0, len(c.Accounts))
	for _, acct := range c.Accounts {
		password := acct.Password
		if password == "" {
			stored, err := credential.Get("imap-" + acct.Username)
			if err != nil {
				return nil, fmt.Errorf("no password for account %q: %w", acct.Username, err)
			}
			password = stored
		}
		creds = append(creds, model.Credentials{
			Host:     acct.Host,
			Username: acct.Username,
			Password: password,
		})
	}
	return creds, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SendFailAction selects the default fallback when a send fails while
// connected: upload a draft copy or queue the message to the outbox.
type SendFailAction string

const (
	SendFailDraft  SendFailAction = "draft"
	SendFailOutbox SendFailAction = "outbox"
)

// Account holds IMAP/SMTP endpoint settings.
type Account struct {
	Name     string `toml:"name"`
	Address  string `toml:"address"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	ImapHost string `toml:"imap_host"`
	ImapPort int    `toml:"imap_port"`
	SmtpHost string `toml:"smtp_host"`
	SmtpPort int    `toml:"smtp_port"`
}

// Folders names the special-purpose folders on the server.
type Folders struct {
	Inbox  string `toml:"inbox"`
	Drafts string `toml:"drafts"`
	Sent   string `toml:"sent"`
	Trash  string `toml:"trash"`
	// Exclude lists folders hidden from the folder list and search.
	Exclude []string `toml:"exclude"`
}

// Sync controls fetch eagerness and cache behavior.
type Sync struct {
	// PrefetchLevel: 0 = none, 1 = current message, 2 = current view,
	// 3 = full mailbox sync.
	PrefetchLevel      int  `toml:"prefetch_level"`
	PrefetchAllHeaders bool `toml:"prefetch_all_headers"`
	// IdleRefreshSec forces a folder refresh after this many seconds of
	// inactivity in the consumer loop.
	IdleRefreshSec int  `toml:"idle_refresh_sec"`
	NewMailBell    bool `toml:"new_mail_bell"`
}

// Compose controls outgoing message handling.
type Compose struct {
	// BackupIntervalSec is the compose-backup snapshot interval; 0 disables.
	BackupIntervalSec int            `toml:"backup_interval_sec"`
	OnSendFail        SendFailAction `toml:"on_send_fail"`
	ClientStoreSent   bool           `toml:"client_store_sent"`
	// ReplyPrefixes lists localized Re/Fwd subject prefixes stripped during
	// subject normalization, e.g. "re", "sv", "aw", "fwd", "vs".
	ReplyPrefixes []string `toml:"reply_prefixes"`
}

// Config represents ~/.tern/config.toml.
type Config struct {
	Account Account `toml:"account"`
	Folders Folders `toml:"folders"`
	Sync    Sync    `toml:"sync"`
	Compose Compose `toml:"compose"`

	QueuePath string `toml:"queue_path"`
	LogPath   string `toml:"log_path"`
}

// DefaultDir returns the per-user data directory, honoring TERN_DIR.
func DefaultDir() string {
	if dir := os.Getenv("TERN_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tern"
	}
	return filepath.Join(home, ".tern")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

// Default returns a config with reasonable defaults applied. Paths are
// resolved under dir.
func Default(dir string) *Config {
	return &Config{
		Folders: Folders{
			Inbox:  "INBOX",
			Drafts: "Drafts",
			Sent:   "Sent",
			Trash:  "Trash",
		},
		Sync: Sync{
			PrefetchLevel:      2,
			PrefetchAllHeaders: true,
			IdleRefreshSec:     600,
			NewMailBell:        true,
		},
		Compose: Compose{
			BackupIntervalSec: 10,
			OnSendFail:        SendFailDraft,
			ReplyPrefixes:     []string{"re", "fwd", "fw"},
		},
		QueuePath: filepath.Join(dir, "queue.db"),
		LogPath:   filepath.Join(dir, "tern.log"),
	}
}

// Load reads config from the given path, layering it over defaults.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) validate() error {
	if c.Account.ImapHost == "" {
		return fmt.Errorf("config: account.imap_host is required")
	}
	if c.Account.User == "" {
		return fmt.Errorf("config: account.user is required")
	}
	switch c.Compose.OnSendFail {
	case SendFailDraft, SendFailOutbox, "":
	default:
		return fmt.Errorf("config: compose.on_send_fail must be %q or %q",
			SendFailDraft, SendFailOutbox)
	}
	return nil
}

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig names one ICS feed: Tag is the group label shown in
// event titles, URL the feed endpoint.
type SourceConfig struct {
	Tag string `yaml:"tag" json:"tag"`
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the serve mode.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for serve mode.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when a feed gives naive local
	// times without a TZID.
	Timezone string `yaml:"timezone" json:"timezone"`

	// ProductID is the PRODID stamped on generated ICS output.
	ProductID string `yaml:"product_id" json:"product_id"`

	// RefreshCron schedules periodic re-aggregation in serve mode
	// (standard cron syntax).
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// GroupsURL points at the remote group directory: a JSON list of
	// {tag, url} feed entries.
	GroupsURL string `yaml:"groups_url" json:"groups_url"`

	// Primary is the high-trust feed merged after the directory feeds.
	Primary SourceConfig `yaml:"primary" json:"primary"`

	// OldEventsURL points at the historical snapshot (a previously
	// exported JSON document).
	OldEventsURL string `yaml:"old_events_url" json:"old_events_url"`

	// Sources are statically pinned feeds merged ahead of the
	// directory feeds.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// CacheDir is where the HTTP fetcher keeps its conditional-request
	// cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// StorePath is the SQLite snapshot database written by serve-mode
	// refreshes.
	StorePath string `yaml:"store_path" json:"store_path"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Europe/Paris",
		ProductID:   "lyontechhub/ics",
		RefreshCron: "*/30 * * * *",
		Primary:     SourceConfig{Tag: "LyonTechHub"},
		Sources:     []SourceConfig{},
		CacheDir:    "./var/ics-cache",
		StorePath:   "./var/calhub.db",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Paris"
	}
	if c.ProductID == "" {
		c.ProductID = "lyontechhub/ics"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/30 * * * *"
	}
	if c.Primary.Tag == "" {
		c.Primary.Tag = "LyonTechHub"
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.StorePath == "" {
		c.StorePath = "./var/calhub.db"
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (0600)
// and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions; feed URLs may embed access tokens.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calhub-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save for convenience.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

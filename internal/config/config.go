package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS calendar.
type ICSConfig struct {
	// URL is an http(s):// feed, a file:// URL or a plain filesystem path.
	URL string `yaml:"url" toml:"url"`
	// ID is an internal identifier used for logging and cache keys.
	ID string `yaml:"id" toml:"id"`
	// Name is the calendar name used for --calendars and in the export.
	Name string `yaml:"name" toml:"name"`
}

// CalDAVConfig describes a CalDAV account. Every calendar found in the
// account's home set becomes a calendar of the store.
type CalDAVConfig struct {
	ID       string `yaml:"id" toml:"id"`
	URL      string `yaml:"url" toml:"url"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone used for "today" and the exported range. Empty
	// or "Local" means the system zone.
	Timezone string `yaml:"timezone" toml:"timezone"`

	// DefaultDays is the window length used when --days is not given.
	DefaultDays int `yaml:"default_days" toml:"default_days"`

	// CacheDir holds the conditional-GET cache for HTTP feeds.
	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	ICS    []ICSConfig    `yaml:"ics" toml:"ics"`
	CalDAV []CalDAVConfig `yaml:"caldav" toml:"caldav"`
}

const (
	defaultDays     = 7
	defaultCacheDir = "~/.cache/calexport"
	defaultLogLevel = "warn"
)

// DefaultPath is where the config lives when --config is not given.
const DefaultPath = "~/.config/calexport/config.yaml"

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:    "",
		DefaultDays: defaultDays,
		CacheDir:    defaultCacheDir,
		LogLevel:    defaultLogLevel,
		ICS:         []ICSConfig{},
		CalDAV:      []CalDAVConfig{},
	}
}

// Normalize fills in missing values so partially-filled configs still work.
func (c *Config) Normalize() {
	if c.DefaultDays == 0 {
		c.DefaultDays = defaultDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CalDAV == nil {
		c.CalDAV = []CalDAVConfig{}
	}

	for i := range c.ICS {
		ics := &c.ICS[i]
		if ics.Name == "" {
			ics.Name = ics.ID
		}
		if ics.Name == "" {
			ics.Name = strings.TrimSuffix(path.Base(ics.URL), path.Ext(ics.URL))
		}
		if ics.ID == "" {
			ics.ID = ics.Name
		}
	}
	for i := range c.CalDAV {
		if c.CalDAV[i].ID == "" {
			c.CalDAV[i].ID = c.CalDAV[i].URL
		}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate reports configuration that cannot be used to build a store.
func (c *Config) Validate() error {
	for i, ics := range c.ICS {
		if ics.URL == "" {
			return fmt.Errorf("ics[%d] (%s): url is empty", i, ics.Name)
		}
	}
	for i, dav := range c.CalDAV {
		if dav.URL == "" {
			return fmt.Errorf("caldav[%d]: url is empty", i)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Load loads configuration from the given path. Files ending in .toml are
// decoded as TOML, everything else as YAML.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the file is decoded and normalized.
func Load(p string) (*Config, error) {
	if p == "" {
		return nil, errors.New("config path is empty")
	}
	p, err := ExpandHome(p)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(p, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(p) {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to p atomically (temp file + rename) with 0600 perms,
// creating the parent directory (0700) when needed.
func Save(p string, cfg *Config) error {
	if p == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := encode(p, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calexport-config-*.tmp")
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

	return os.Rename(tmpName, p)
}

func encode(p string, cfg *Config) ([]byte, error) {
	if !isTOML(p) {
		return yaml.Marshal(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTOML(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".toml")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if p == "~" {
		return home, nil
	}
	return filepath.Join(home, p[2:]), nil
}

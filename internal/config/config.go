package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jbweber/homelab/hutch/internal/datastore"
	"gopkg.in/yaml.v3"
)

// InterfaceOffset maps an interface position to its VLAN offset. Order is significant:
// the first entry applies to the first interface of every host.
type InterfaceOffset struct {
	Interface string `yaml:"interface"`
	Offset    int    `yaml:"offset"`
}

// SwitchConfig holds credentials for read-only switch queries
type SwitchConfig struct {
	User       string        `yaml:"user"`
	KeyPath    string        `yaml:"key_path"`
	KnownHosts string        `yaml:"known_hosts"` // Empty skips host key verification
	Timeout    time.Duration `yaml:"timeout"`
}

// Config holds all configuration for the hutch service
type Config struct {
	DBPath    string            `yaml:"db_path"`
	Port      string            `yaml:"port"`
	LogLevel  string            `yaml:"log_level"`
	VlanFirst int               `yaml:"vlan_first"`
	Offsets   []InterfaceOffset `yaml:"offsets"`
	Switch    SwitchConfig      `yaml:"switch"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:    "~/hutch/data/hutch.db",
		Port:      "8080",
		LogLevel:  "info",
		VlanFirst: 1100,
		Offsets: []InterfaceOffset{
			{Interface: "em1", Offset: 0},
			{Interface: "em2", Offset: 1},
			{Interface: "em3", Offset: 2},
			{Interface: "em4", Offset: 3},
		},
		Switch: SwitchConfig{
			User:    "admin",
			KeyPath: "~/.ssh/id_rsa",
			Timeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(c.expandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values the VLAN math depends on.
func (c *Config) Validate() error {
	if c.VlanFirst < 10 {
		return fmt.Errorf("vlan_first must be at least 10, got %d", c.VlanFirst)
	}
	if len(c.Offsets) == 0 {
		return fmt.Errorf("at least one interface offset is required")
	}
	return nil
}

// OffsetTable returns the interface offsets in configured order.
func (c *Config) OffsetTable() []int {
	offsets := make([]int, len(c.Offsets))
	for i, o := range c.Offsets {
		offsets[i] = o.Offset
	}
	return offsets
}

// SwitchKeyPath returns the expanded SSH key path.
func (c *Config) SwitchKeyPath() string {
	return c.expandPath(c.Switch.KeyPath)
}

// SwitchKnownHostsPath returns the expanded known_hosts path, or "" when unset.
func (c *Config) SwitchKnownHostsPath() string {
	return c.expandPath(c.Switch.KnownHosts)
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase() (*datastore.Datastore, error) {
	dbPath := c.expandPath(c.DBPath)

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	ds, err := datastore.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := tuneDatabase(ds.DB); err != nil {
		_ = ds.Close()
		return nil, err
	}

	return ds, nil
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(homeDir, path[2:])
}

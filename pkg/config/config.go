package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of the node's YAML configuration file.
// Every field has a spec-documented default, applied by Load when the
// field is absent from the file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	ResultsDir string `yaml:"results_dir"`
	CacheDir   string `yaml:"cache_dir"`
	ConfigDir  string `yaml:"config_dir"`

	RegistryDBPath string `yaml:"registry_db_path"`

	MDNSInterface string `yaml:"mdns_interface"`

	RefreshPeriod              time.Duration `yaml:"refresh_period"`
	BusyRefreshPeriod          time.Duration `yaml:"busy_refresh_period"`
	MaxConsecutiveErrors       int           `yaml:"max_consecutive_errors"`
	ConnectionRefusedThreshold int           `yaml:"connection_refused_threshold"`
	UserActionTimeout          time.Duration `yaml:"user_action_timeout"`
	GracefulShutdownGrace      time.Duration `yaml:"graceful_shutdown_grace"`
	BusyTimeout                time.Duration `yaml:"busy_timeout"`
	UnreachableTimeout         time.Duration `yaml:"unreachable_timeout"`

	IDFetchTimeout  time.Duration `yaml:"id_fetch_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	RetireAfter        time.Duration `yaml:"retire_after"`
	StuckStatusTimeout time.Duration `yaml:"stuck_status_timeout"`
}

// Default returns a Config populated with the spec's documented
// defaults.
func Default() Config {
	return Config{
		ListenAddr: ":9999",

		ResultsDir: "/var/ethoscope-node/results",
		CacheDir:   "/var/ethoscope-node/cache",
		ConfigDir:  "/etc/ethoscope-node",

		RegistryDBPath: "/var/ethoscope-node/node.db",

		RefreshPeriod:              5 * time.Second,
		BusyRefreshPeriod:          60 * time.Second,
		MaxConsecutiveErrors:       10,
		ConnectionRefusedThreshold: 3,
		UserActionTimeout:          30 * time.Second,
		GracefulShutdownGrace:      5 * time.Minute,
		BusyTimeout:                10 * time.Minute,
		UnreachableTimeout:         20 * time.Minute,

		IDFetchTimeout:  5 * time.Second,
		CleanupInterval: time.Hour,

		RetireAfter:        90 * 24 * time.Hour,
		StuckStatusTimeout: 2 * time.Hour,
	}
}

// Load reads and parses a YAML config file at path, applying spec
// defaults for any field the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses a YAML document into a Config, starting from Default()
// so unset fields keep their spec default rather than zeroing out.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

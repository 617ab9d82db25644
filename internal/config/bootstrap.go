package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ListenEndpoint describes one UDP socket the raw network layer (§4.4)
// opens at startup: an address to bind and a name used to group arenas
// for population reporting.
type ListenEndpoint struct {
	IP        string `yaml:"ip"`
	Port      int    `yaml:"port"`
	ConnectAs string `yaml:"connect_as"`
}

// Bootstrap holds the settings the process needs before a single
// component exists: where to listen, where the database lives, how
// verbosely to log, and where the ConfigManager's own files are. This is
// distinct from ConfigManager (manager.go), which is the hierarchical
// section:key=value store components consult at runtime — Bootstrap is
// read once, at process start, to build that store and everything else.
type Bootstrap struct {
	Listen []ListenEndpoint `yaml:"listen"`

	Database DatabaseConfig `yaml:"database"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// ConfigDir holds the global.yaml plus one <arena>.yaml per
	// arena-specific override, consumed by ConfigManager.
	ConfigDir string `yaml:"config_dir"`

	// PersistFlushInterval is loaded from persist_flush_interval but no
	// component reads it: the persistence executor applies requests in
	// queue order with no time bound.
	PersistFlushInterval time.Duration `yaml:"persist_flush_interval"`

	// IdleTimeout is loaded from idle_timeout but no component reads it:
	// nothing moves a connection that has stopped sending to LeavingZone.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// DefaultBootstrap returns a Bootstrap with one listen endpoint on the
// conventional SubSpace zone-server port and sensible defaults for
// everything else.
func DefaultBootstrap() Bootstrap {
	return Bootstrap{
		Listen: []ListenEndpoint{
			{IP: "0.0.0.0", Port: 5000, ConnectAs: "zone"},
		},
		Database:             defaultDatabaseConfig(),
		LogLevel:              "info",
		ConfigDir:              "conf",
		PersistFlushInterval: 5 * time.Minute,
		IdleTimeout:          10 * time.Second,
	}
}

// LoadBootstrap loads process bootstrap config from a YAML file. If the
// file does not exist, defaults are returned unchanged.
func LoadBootstrap(path string) (Bootstrap, error) {
	cfg := DefaultBootstrap()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading bootstrap config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing bootstrap config %s: %w", path, err)
	}

	return cfg, nil
}

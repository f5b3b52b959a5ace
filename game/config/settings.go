package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends for match persistence
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Settings is the process configuration read from the environment. CLI
// flags override individual fields after parsing.
type Settings struct {
	Host       string        `env:"TANKS_HOST" envDefault:"localhost"`
	Port       int           `env:"TANKS_PORT" envDefault:"8080"`
	ConfigDir  string        `env:"TANKS_CONFIG_DIR" envDefault:"configs"`
	DataDir    string        `env:"TANKS_DATA_DIR" envDefault:"matches"`
	Storage    string        `env:"TANKS_STORAGE" envDefault:"file"`
	Debug      bool          `env:"TANKS_DEBUG"`
	LogFormat  string        `env:"TANKS_LOG_FORMAT" envDefault:"logfmt"`
	SessionTTL time.Duration `env:"TANKS_SESSION_TTL" envDefault:"24h"`

	// CleanupInterval is how often idle matches are evicted from memory
	CleanupInterval time.Duration `env:"TANKS_CLEANUP_INTERVAL" envDefault:"1h"`

	// GrantInterval hands every match its daily action points on a timer.
	// Zero leaves grants to POST /api/matches/{id}/grant.
	GrantInterval time.Duration `env:"TANKS_GRANT_INTERVAL" envDefault:"0s"`

	// APIURL is the server the mcp command proxies to. Empty means probe
	// localhost and fall back to an in-process server.
	APIURL string `env:"TANKS_API_URL"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthToken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`
}

// LoadSettings parses Settings from the environment
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks values env parsing cannot
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	switch strings.ToLower(s.Storage) {
	case StorageFile, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q (want %s or %s)", s.Storage, StorageFile, StorageSQLite)
	}
	if s.SessionTTL < 0 || s.CleanupInterval < 0 || s.GrantInterval < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	return nil
}

// Addr returns host:port for the HTTP listener
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Package config loads and validates Chronicle's TOML deployment
// configuration: a top-level name, a list of per-event indexer entries, and
// the Read API's server settings.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chronicle-dev/chronicle/pkg/event"
)

// ServerConfig configures the Read API.
type ServerConfig struct {
	DBURL     string `toml:"db_url"`
	ServerURL string `toml:"server_url"`
}

// Config is the parsed form of a deployment's .config.toml.
type Config struct {
	Name    string         `toml:"name"`
	Indexer []event.Config `toml:"indexer"`
	Server  ServerConfig   `toml:"server"`
}

// Error wraps a configuration problem: malformed TOML, a duplicate
// event_name, or an empty database host/name. It is fatal at startup.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("configuration error: %s", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Load reads and parses the TOML file at path, then validates it.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("parsing %s: %s", path, err)}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces event_name uniqueness across all [[indexer]] entries,
// and a non-empty host and database name in every configured db_url (the
// indexers' and the server's).
func Validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Indexer))
	for _, ind := range cfg.Indexer {
		if _, dup := seen[ind.EventName]; dup {
			return &Error{Err: fmt.Errorf("duplicate event_name %q", ind.EventName)}
		}
		seen[ind.EventName] = struct{}{}

		if err := validateDBURL(ind.DBURL); err != nil {
			return &Error{Err: fmt.Errorf("indexer %q: %s", ind.EventName, err)}
		}
	}

	if err := validateDBURL(cfg.Server.DBURL); err != nil {
		return &Error{Err: fmt.Errorf("server: %s", err)}
	}

	return nil
}

func validateDBURL(dbURL string) error {
	host, _ := connStringValue(dbURL, "host")
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("database host cannot be empty")
	}
	name, _ := connStringValue(dbURL, "dbname")
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	return nil
}

// connStringValue extracts the whitespace-terminated value for key from a
// libpq key/value connection string ("host=... dbname=... port=5432").
func connStringValue(connString, key string) (string, bool) {
	token := key + "="
	idx := strings.Index(connString, token)
	if idx < 0 {
		return "", false
	}
	rest := connString[idx+len(token):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		return rest[:end], true
	}
	return rest, true
}

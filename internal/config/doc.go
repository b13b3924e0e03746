// Package config handles configuration loading for ankimcp.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults: a config file is
// optional, and an empty one yields a memory-backed server on localhost:4473.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ANKIMCP_CONFIG environment variable
//  2. ./ankimcp.yaml (current directory)
//  3. ~/.config/ankimcp/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string, which
// lets defaults take over for fields that have them.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "localhost:4473"
//
// Collection backend:
//
//	collection:
//	  backend: "sqlite"   # memory, sqlite
//	  path: "/var/lib/ankimcp/collection.db"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "ankimcp"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: ""
//	  ephemeral: false
//	  https: false
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Access policy (same shape as a standalone permission document):
//
//	permissions:
//	  global:
//	    read: true
//	    write: true
//	    delete: false
//	  mode: "allowlist"
//	  deck_permissions:
//	    allowlist: []
//	  protected_decks:
//	    - "Default"
//
// Omitting the permissions section allows everything.
//
// # Validation
//
// Load() validates:
//
//   - Listen address presence (unless Tailscale provides the listener)
//   - Tailscale hostname when tailscale is enabled
//   - Collection backend name and SQLite path presence
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/ankimcp/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

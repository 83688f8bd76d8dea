// Package config handles configuration loading for the bothive host.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BOTHIVE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/bothive/bothive.yaml
//  3. ~/.config/bothive/bothive.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${BOTHIVE_DATA_DIR}/bothive.db"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	modules:
//	  setup_timeout: "30s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:5566"  # control API
//
//	modules:
//	  dir: "modules"
//	  autoload: true
//	  setup_timeout: "30s"
//
//	settings:
//	  path: "settings.json"
//
//	database:
//	  path: "bothive.db"
//
//	logging:
//	  level: "info"       # debug, info, warn, error
//	  format: "text"      # text, json
//	  buffer_lines: 500   # recent-log ring capacity
package config

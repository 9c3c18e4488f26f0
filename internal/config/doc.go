// Package config handles configuration loading for the coven client.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/client.yaml
//  3. ~/.config/coven/client.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  token: "${COVEN_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	timing:
//	  title_pending_timeout: "5s"
//	  metadata_pending_timeout: "1800ms"
//	  search_debounce: "250ms"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  base_url: "https://gateway.example.com"
//	  token: "${COVEN_TOKEN}"
//	  token_file: "~/.config/coven/token"
//
// History pagination:
//
//	history:
//	  page_size: 50
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

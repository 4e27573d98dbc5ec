// Package config handles configuration loading for handoff-bridge.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package validates required fields and parses duration strings.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  api_token: "${HANDOFF_API_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	broker:
//	  default_timeout: "60s"
//	  liveness_interval: "30s"
//	  grace_period: "5m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8787"   # API and device websocket
//
// Authentication:
//
//	auth:
//	  api_token: "${HANDOFF_API_TOKEN}"      # Agent API bearer token
//	  pairing_secret: "${HANDOFF_PAIRING}"   # Signs device pairing tokens
//	  device_token_ttl: "2160h"              # Pairing token lifetime
//
// Broker timing:
//
//	broker:
//	  default_timeout: "60s"       # Per-request answer deadline
//	  liveness_interval: "30s"     # Ping cadence for connected devices
//	  grace_period: "5m"           # How long a disconnected session is kept
//
// Push fallback:
//
//	push:
//	  enabled: true
//	  endpoint: "https://exp.host/--/api/v2/push/send"
//
// Database:
//
//	database:
//	  path: "~/.local/share/handoff/bridge.db"
//
// Transcript export:
//
//	export:
//	  dir: "~/.local/share/handoff/exports"
//	  html: false
//
// Discovery:
//
//	discovery:
//	  enabled: true
//	  instance: "my-workstation"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr is set
//   - auth.api_token and auth.pairing_secret are set
//   - database.path is set
//   - push.endpoint is set when push is enabled
//   - Duration format validity
package config

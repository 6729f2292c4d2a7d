// Package config provides configuration loading, merging, and path
// management for clauder.
//
// # Configuration Loading
//
// The Load function merges configuration from multiple sources in
// priority order:
//
//  1. Built-in defaults
//  2. Global config (clauder.json / clauder.jsonc in the XDG config dir)
//  3. Workspace config (clauder.yaml / .clauder.yaml in the workspace)
//  4. CLAUDER_CONFIG file
//  5. Environment variables
//
// Later sources override earlier ones. Scalars overwrite when set, the
// tier-to-model map merges key-by-key, and permission rule lists append
// so a workspace can extend the global rules without restating them.
//
// # Supported Formats
//
// Global files are JSON or JSONC (comments stripped with tidwall/jsonc).
// Workspace files are YAML, which tolerates hand edits better in
// checked-in project files. JSON and JSONC files additionally support
// two placeholder forms:
//   - {env:VAR_NAME} - expands to the environment variable value
//   - {file:path} - expands to the file contents, escaped for JSON
//
// {file:path} paths may be absolute, relative to the config file
// directory, or ~/ prefixed.
//
// # Environment Variable Overrides
//
//   - CLAUDER_AGENT_PATH - agent CLI binary
//   - CLAUDER_TIER - default capability tier
//   - CLAUDER_LISTEN - status server address
//   - CLAUDER_PERMISSION - JSON permission config fragment
//   - CLAUDER_PERMISSION_STORE - persistent store path
//   - CLAUDER_EXECUTION_TIMEOUT / CLAUDER_INACTIVITY_TIMEOUT - seconds
//   - CLAUDER_CONFIG - path to an extra config file
//   - CLAUDER_CONFIG_DIR - override the global config directory
//
// # Validation
//
// Load rejects configurations that would make runs misbehave: a default
// tier with no model mapping, a non-positive inactivity timeout or
// heartbeat interval, an execution timeout that does not exceed the
// inactivity timeout, or a permission rule whose outcome is neither
// allow nor deny.
//
// # Path Management
//
// The Paths type exposes XDG Base Directory compliant locations:
//   - Data: ~/.local/share/clauder (XDG_DATA_HOME)
//   - Config: ~/.config/clauder (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/clauder (XDG_CACHE_HOME)
//   - State: ~/.local/state/clauder (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA. The persistent permission store
// defaults to <data>/permissions.json and the storage layer keeps its
// documents under <data>/storage.
package config

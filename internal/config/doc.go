// Package config loads, merges, and hot-reloads the orchestrator's
// project configuration.
//
// # Configuration Loading
//
// Load implements a layered strategy, each source overriding the last:
//
//  1. types.DefaultConfig()
//  2. the global config file (~/.config/barf/barf.json[c])
//  3. the project config file (<directory>/.barf/config.json[c])
//  4. <directory>/.env, loaded into the process environment via godotenv
//  5. BARF_* environment variable overrides
//
// # Supported Formats
//
// Both plain JSON and JSONC (JSON with // and /* */ comments) are
// accepted; the .jsonc variant of each path is tried first so a later
// plain .json file, if present, still has final say.
//
// # Path Management
//
// Paths gives the XDG Base Directory Specification locations for
// barf's own data, separate from the project-local issuesDir/planDir/
// barfDir a Config points at:
//   - Data: ~/.local/share/barf (XDG_DATA_HOME)
//   - Config: ~/.config/barf (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/barf (XDG_CACHE_HOME)
//   - State: ~/.local/state/barf (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Hot Reload
//
// Watcher uses fsnotify to watch the global and project config
// directories plus issuesDir, publishing config.changed and
// issue.external_change events on the package event bus when a file
// changes outside of a tracked write — e.g. a human editing an issue
// markdown file directly, or a config value changed while the
// orchestrator is running.
package config

package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/vx-daniel/barf/pkg/types"
)

// Load loads configuration from multiple sources, in priority order:
//
//  1. types.DefaultConfig()
//  2. the global config file (~/.config/barf/barf.json[c])
//  3. the project config file (<directory>/.barf/config.json[c])
//  4. <directory>/.env, via godotenv, loaded into the process environment
//     without overwriting variables already set
//  5. BARF_* environment variable overrides
//
// directory is the project root being orchestrated; "" skips the
// project config file and .env lookup.
func Load(directory string) (types.Config, error) {
	cfg := types.DefaultConfig()

	globalPath := GlobalConfigPath()
	if err := loadConfigFile(globalPath+"c", &cfg); err != nil {
		return cfg, err
	}
	if err := loadConfigFile(globalPath, &cfg); err != nil {
		return cfg, err
	}

	if directory != "" {
		projectPath := ProjectConfigPath(directory)
		if err := loadConfigFile(projectPath+"c", &cfg); err != nil {
			return cfg, err
		}
		if err := loadConfigFile(projectPath, &cfg); err != nil {
			return cfg, err
		}
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// loadConfigFile merges a single JSON or JSONC file into cfg. A missing
// file is not an error; a malformed one is.
func loadConfigFile(path string, cfg *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	data = stripJSONComments(data)

	var file types.Config
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	mergeConfig(cfg, file)
	return nil
}

// stripJSONComments removes // and /* */ comments so .jsonc config
// files can carry inline documentation the way go-opencode's did.
func stripJSONComments(data []byte) []byte {
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	return multiLine.ReplaceAll(data, nil)
}

// mergeConfig overlays every non-zero field of src onto dst. Scalars
// overwrite; FixCommands, when present in src, replaces dst's slice
// wholesale rather than appending, so a project config can opt out of
// a global default fix command entirely.
func mergeConfig(dst *types.Config, src types.Config) {
	if src.IssuesDir != "" {
		dst.IssuesDir = src.IssuesDir
	}
	if src.PlanDir != "" {
		dst.PlanDir = src.PlanDir
	}
	if src.BarfDir != "" {
		dst.BarfDir = src.BarfDir
	}
	if src.PromptDir != "" {
		dst.PromptDir = src.PromptDir
	}
	if src.ContextUsagePercent != 0 {
		dst.ContextUsagePercent = src.ContextUsagePercent
	}
	if src.MaxAutoSplits != 0 {
		dst.MaxAutoSplits = src.MaxAutoSplits
	}
	if src.MaxVerifyRetries != 0 {
		dst.MaxVerifyRetries = src.MaxVerifyRetries
	}
	if src.MaxIterations != 0 {
		dst.MaxIterations = src.MaxIterations
	}
	if src.ClaudeTimeout != 0 {
		dst.ClaudeTimeout = src.ClaudeTimeout
	}
	if src.TestCommand != "" {
		dst.TestCommand = src.TestCommand
	}
	if src.FixCommands != nil {
		dst.FixCommands = src.FixCommands
	}
	if src.PlanModel != "" {
		dst.PlanModel = src.PlanModel
	}
	if src.BuildModel != "" {
		dst.BuildModel = src.BuildModel
	}
	if src.SplitModel != "" {
		dst.SplitModel = src.SplitModel
	}
	if src.ExtendedContextModel != "" {
		dst.ExtendedContextModel = src.ExtendedContextModel
	}
	if src.TriageModel != "" {
		dst.TriageModel = src.TriageModel
	}
	if src.AuditModel != "" {
		dst.AuditModel = src.AuditModel
	}
	if src.AuditAfterNCompleted != 0 {
		dst.AuditAfterNCompleted = src.AuditAfterNCompleted
	}
	if src.AnthropicAPIKey != "" {
		dst.AnthropicAPIKey = src.AnthropicAPIKey
	}
	if src.AnthropicBaseURL != "" {
		dst.AnthropicBaseURL = src.AnthropicBaseURL
	}
	if src.AnthropicMaxTokens != 0 {
		dst.AnthropicMaxTokens = src.AnthropicMaxTokens
	}
}

// applyEnvOverrides applies BARF_* environment variable overrides, the
// highest-priority config source, mirroring go-opencode's own
// applyEnvOverrides but re-keyed to this project's settings.
func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv("BARF_ISSUES_DIR"); v != "" {
		cfg.IssuesDir = v
	}
	if v := os.Getenv("BARF_PLAN_DIR"); v != "" {
		cfg.PlanDir = v
	}
	if v := os.Getenv("BARF_BARF_DIR"); v != "" {
		cfg.BarfDir = v
	}
	if v := os.Getenv("BARF_PROMPT_DIR"); v != "" {
		cfg.PromptDir = v
	}
	if v := os.Getenv("BARF_TEST_COMMAND"); v != "" {
		cfg.TestCommand = v
	}
	if v := os.Getenv("BARF_BUILD_MODEL"); v != "" {
		cfg.BuildModel = v
	}
	if v := os.Getenv("BARF_PLAN_MODEL"); v != "" {
		cfg.PlanModel = v
	}
	if v := os.Getenv("BARF_TRIAGE_MODEL"); v != "" {
		cfg.TriageModel = v
	}
	if v := os.Getenv("BARF_AUDIT_MODEL"); v != "" {
		cfg.AuditModel = v
	}
	if v := os.Getenv("BARF_CONTEXT_PERCENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContextUsagePercent = n
		}
	}
	if v := os.Getenv("BARF_MAX_AUTO_SPLITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxAutoSplits = n
		}
	}
	if v := os.Getenv("BARF_MAX_VERIFY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxVerifyRetries = n
		}
	}
	if v := os.Getenv("BARF_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxIterations = n
		}
	}
	if v := os.Getenv("BARF_AUDIT_AFTER_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuditAfterNCompleted = n
		}
	}
	if v := os.Getenv("BARF_ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("BARF_ANTHROPIC_BASE_URL"); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := os.Getenv("BARF_ANTHROPIC_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AnthropicMaxTokens = n
		}
	}
}

// Save writes cfg as indented JSON to path, creating parent
// directories as needed.
func Save(cfg types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

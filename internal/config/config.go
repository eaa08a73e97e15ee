package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Clip request body fields accepted by the backend.
const (
	ClipFieldAvatarMovements = "avatarMovements"
	ClipFieldPrompt          = "prompt"
)

// Config holds application configuration.
type Config struct {
	// MaxDurationSeconds is the ceiling on the total length of a storyboard.
	MaxDurationSeconds float64 `json:"max_duration_seconds"`

	// ClipDurationSeconds is the duration assigned to every new clip.
	ClipDurationSeconds float64 `json:"clip_duration_seconds"`

	// BackendURL is the base URL of the generation backend (http or https).
	BackendURL string `json:"backend_url"`

	// StatusPath is the push-channel path on the backend, dialed over ws/wss.
	StatusPath string `json:"status_path"`

	// RequestTimeoutSeconds bounds every REST call to the backend.
	RequestTimeoutSeconds int `json:"request_timeout_seconds"`

	// MaxRetries is how many times idempotent GETs are retried with backoff.
	MaxRetries int `json:"max_retries"`

	// ClipRequestField selects the body used for POST /clip/{id}/generate:
	// "avatarMovements" (default) or "prompt".
	ClipRequestField string `json:"clip_request_field"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `json:"log_level"`

	// LogFormat is "text" (default) or "json".
	LogFormat string `json:"log_format"`

	// AllowedPaths is an allowlist of directories for project exports.
	// Paths outside ~/.reel/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for exports.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "clip", "avatar", "job", "project".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxDurationSeconds:    20,
		ClipDurationSeconds:   5,
		BackendURL:            "http://localhost:8000",
		StatusPath:            "/gen_status",
		RequestTimeoutSeconds: 30,
		MaxRetries:            3,
		ClipRequestField:      ClipFieldAvatarMovements,
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.reel) and repo (.reel) directories.
// Repo config is found by walking upward from startDir to find the nearest .reel/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .reel/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".reel", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw returns a zero-valued config (not defaults) if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.MaxDurationSeconds = pickFloat(overlay.MaxDurationSeconds, base.MaxDurationSeconds)
	result.ClipDurationSeconds = pickFloat(overlay.ClipDurationSeconds, base.ClipDurationSeconds)

	result.BackendURL = pickString(overlay.BackendURL, base.BackendURL)
	result.StatusPath = pickString(overlay.StatusPath, base.StatusPath)
	result.ClipRequestField = pickString(overlay.ClipRequestField, base.ClipRequestField)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.LogFormat = pickString(overlay.LogFormat, base.LogFormat)

	result.RequestTimeoutSeconds = pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.MaxRetries = pickInt(overlay.MaxRetries, base.MaxRetries)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickFloat(overlay, base float64) float64 {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

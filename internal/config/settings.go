package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// WikiSettings configuration for the mirrored wiki corpus
type WikiSettings struct {
	// MirrorURL is the remote content repository. Only fetch and
	// fast-forward merge are ever performed against it.
	MirrorURL string `mapstructure:"mirror_url"`

	// BaseDir holds the mirror working tree, the page store and the
	// search index.
	BaseDir string `mapstructure:"base_dir"`

	// SiteName is the heading prefix token stripped from page titles.
	SiteName string `mapstructure:"site_name"`

	// SiteBaseURL is the public prefix canonical page URLs are rewritten to.
	SiteBaseURL string `mapstructure:"site_base_url"`

	// EditPathPrefix is the href prefix the edit affordance must carry.
	EditPathPrefix string `mapstructure:"edit_path_prefix"`

	MaxResults  int           `mapstructure:"max_results"`
	SyncTimeout time.Duration `mapstructure:"sync_timeout"`
}

// Settings application settings
type Settings struct {
	Transport string       `mapstructure:"transport"`
	Host      string       `mapstructure:"host"`
	Port      int          `mapstructure:"port"`
	Auth      AuthSettings `mapstructure:"auth"`
	Wiki      WikiSettings `mapstructure:"wiki"`
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	// Wiki defaults (the nLab HTML content mirror)
	v.SetDefault("wiki.mirror_url", "https://github.com/ncatlab/nlab-content-html.git")
	v.SetDefault("wiki.base_dir", defaultWikiBaseDir())
	v.SetDefault("wiki.site_name", "nLab")
	v.SetDefault("wiki.site_base_url", "https://ncatlab.org/nlab/show/")
	v.SetDefault("wiki.edit_path_prefix", "/nlab/edit/")
	v.SetDefault("wiki.max_results", 10)
	v.SetDefault("wiki.sync_timeout", 10*time.Minute)

	// Environment variables
	v.SetEnvPrefix("LORE_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	_ = v.BindEnv("auth.type", "LORE_MCP_AUTH_TYPE")
	_ = v.BindEnv("auth.basic.username", "LORE_MCP_AUTH_BASIC_USERNAME")
	_ = v.BindEnv("auth.basic.password", "LORE_MCP_AUTH_BASIC_PASSWORD")
	_ = v.BindEnv("auth.api_keys", "LORE_MCP_AUTH_API_KEYS")

	// Wiki env var bindings
	_ = v.BindEnv("wiki.mirror_url", "LORE_MCP_WIKI_MIRROR_URL")
	_ = v.BindEnv("wiki.base_dir", "LORE_MCP_WIKI_BASE_DIR")
	_ = v.BindEnv("wiki.site_name", "LORE_MCP_WIKI_SITE_NAME")
	_ = v.BindEnv("wiki.site_base_url", "LORE_MCP_WIKI_SITE_BASE_URL")
	_ = v.BindEnv("wiki.edit_path_prefix", "LORE_MCP_WIKI_EDIT_PATH_PREFIX")
	_ = v.BindEnv("wiki.max_results", "LORE_MCP_WIKI_MAX_RESULTS")
	_ = v.BindEnv("wiki.sync_timeout", "LORE_MCP_WIKI_SYNC_TIMEOUT")

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		_ = v.BindPFlag("transport", flags.Lookup("transport"))
		_ = v.BindPFlag("host", flags.Lookup("host"))
		_ = v.BindPFlag("port", flags.Lookup("port"))
		_ = v.BindPFlag("auth.type", flags.Lookup("auth-type"))
		_ = v.BindPFlag("auth.basic.username", flags.Lookup("auth-basic-username"))
		_ = v.BindPFlag("auth.basic.password", flags.Lookup("auth-basic-password"))
		_ = v.BindPFlag("auth.api_keys", flags.Lookup("auth-api-keys"))

		// Wiki CLI flags
		_ = v.BindPFlag("wiki.mirror_url", flags.Lookup("wiki-mirror-url"))
		_ = v.BindPFlag("wiki.base_dir", flags.Lookup("wiki-base-dir"))
		_ = v.BindPFlag("wiki.site_name", flags.Lookup("wiki-site-name"))
		_ = v.BindPFlag("wiki.site_base_url", flags.Lookup("wiki-site-base-url"))
		_ = v.BindPFlag("wiki.edit_path_prefix", flags.Lookup("wiki-edit-path-prefix"))
		_ = v.BindPFlag("wiki.max_results", flags.Lookup("wiki-max-results"))
		_ = v.BindPFlag("wiki.sync_timeout", flags.Lookup("wiki-sync-timeout"))
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv("LORE_MCP_AUTH_API_KEYS")
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}

	// Expand home directory in base_dir
	settings.Wiki.BaseDir = expandHomeDir(settings.Wiki.BaseDir)

	return &settings, nil
}

// defaultWikiBaseDir returns the default base directory for the mirror
func defaultWikiBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lore-mcp"
	}
	return filepath.Join(home, ".lore-mcp")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	return validateWikiSettings(&s.Wiki)
}

// validateWikiSettings validates the wiki mirror configuration
func validateWikiSettings(w *WikiSettings) error {
	if w.MirrorURL == "" {
		return errors.New("wiki-mirror-url cannot be empty")
	}

	if w.BaseDir == "" {
		return errors.New("wiki-base-dir cannot be empty")
	}

	if w.SiteBaseURL == "" {
		return errors.New("wiki-site-base-url cannot be empty")
	}

	if w.EditPathPrefix == "" {
		return errors.New("wiki-edit-path-prefix cannot be empty")
	}

	if w.MaxResults <= 0 {
		return errors.New("wiki-max-results must be positive")
	}

	if w.SyncTimeout <= 0 {
		return errors.New("wiki-sync-timeout must be positive")
	}

	return nil
}

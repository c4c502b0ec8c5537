package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// validWiki returns a wiki config that passes validation, for tests that
// exercise other parts of the settings.
func validWiki() WikiSettings {
	return WikiSettings{
		MirrorURL:      "https://example.com/wiki.git",
		BaseDir:        "/tmp/test",
		SiteName:       "nLab",
		SiteBaseURL:    "https://ncatlab.org/nlab/show/",
		EditPathPrefix: "/nlab/edit/",
		MaxResults:     10,
		SyncTimeout:    time.Minute,
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	_ = os.Unsetenv("LORE_MCP_PORT")
	_ = os.Unsetenv("LORE_MCP_AUTH_TYPE")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeNone {
		t.Errorf("Expected default auth type '%s', got '%s'", AuthTypeNone, settings.Auth.Type)
	}
	if settings.Transport != "stdio" {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Host != "0.0.0.0" {
		t.Errorf("Expected default host '0.0.0.0', got '%s'", settings.Host)
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	t.Setenv("LORE_MCP_PORT", "9090")
	t.Setenv("LORE_MCP_AUTH_TYPE", "basic")
	t.Setenv("LORE_MCP_AUTH_BASIC_USERNAME", "admin")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeBasic {
		t.Errorf("Expected auth type '%s', got '%s'", AuthTypeBasic, settings.Auth.Type)
	}
	if settings.Auth.Basic.Username != "admin" {
		t.Errorf("Expected username 'admin', got '%s'", settings.Auth.Basic.Username)
	}
}

func TestLoadSettings_APIKeys_EnvVar(t *testing.T) {
	t.Setenv("LORE_MCP_AUTH_API_KEYS", "key1, key2,key3")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if len(settings.Auth.APIKeys) != 3 {
		t.Fatalf("Expected 3 API keys, got %d", len(settings.Auth.APIKeys))
	}
	if settings.Auth.APIKeys[0] != "key1" {
		t.Errorf("Expected key1, got '%s'", settings.Auth.APIKeys[0])
	}
	if settings.Auth.APIKeys[1] != "key2" {
		t.Errorf("Expected key2, got '%s'", settings.Auth.APIKeys[1])
	}
	if settings.Auth.APIKeys[2] != "key3" {
		t.Errorf("Expected key3, got '%s'", settings.Auth.APIKeys[2])
	}
}

func TestLoadSettings_APIKeys_SingleKey(t *testing.T) {
	t.Setenv("LORE_MCP_AUTH_API_KEYS", "singlekey")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if len(settings.Auth.APIKeys) != 1 {
		t.Fatalf("Expected 1 API key, got %d", len(settings.Auth.APIKeys))
	}
	if settings.Auth.APIKeys[0] != "singlekey" {
		t.Errorf("Expected singlekey, got '%s'", settings.Auth.APIKeys[0])
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	content := []byte("host=127.0.0.2\nport=7000")
	tmpEnv := ".env"
	if err := os.WriteFile(tmpEnv, content, 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}
	defer func() { _ = os.Remove(tmpEnv) }()

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "127.0.0.2" {
		t.Errorf("Expected host 127.0.0.2, got %s", settings.Host)
	}
	if settings.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", settings.Port)
	}
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	t.Setenv("LORE_MCP_PORT", "not-a-number")

	_, err := LoadSettings()
	if err == nil {
		t.Fatal("Expected error for invalid port type")
	}
}

func TestLoadSettingsWithFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("LORE_MCP_PORT", "9090")
	t.Setenv("LORE_MCP_TRANSPORT", "sse")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("transport", "", "")
	_ = flags.Set("port", "7777")
	_ = flags.Set("transport", "stdio")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 7777 {
		t.Errorf("Expected CLI port 7777, got %d", settings.Port)
	}
	if settings.Transport != "stdio" {
		t.Errorf("Expected CLI transport 'stdio', got '%s'", settings.Transport)
	}
}

func TestLoadSettingsWithFlags_EnvOverridesDefault(t *testing.T) {
	t.Setenv("LORE_MCP_HOST", "192.168.1.1")

	settings, err := LoadSettingsWithFlags(nil)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "192.168.1.1" {
		t.Errorf("Expected env host '192.168.1.1', got '%s'", settings.Host)
	}
}

func TestLoadSettingsWithFlags_NilFlags(t *testing.T) {
	_ = os.Unsetenv("LORE_MCP_PORT")

	settings, err := LoadSettingsWithFlags(nil)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
}

// --- Wiki settings tests ---

func TestLoadSettings_WikiDefaults(t *testing.T) {
	_ = os.Unsetenv("LORE_MCP_WIKI_MIRROR_URL")
	_ = os.Unsetenv("LORE_MCP_WIKI_BASE_DIR")
	_ = os.Unsetenv("LORE_MCP_WIKI_SITE_NAME")
	_ = os.Unsetenv("LORE_MCP_WIKI_SITE_BASE_URL")
	_ = os.Unsetenv("LORE_MCP_WIKI_EDIT_PATH_PREFIX")
	_ = os.Unsetenv("LORE_MCP_WIKI_MAX_RESULTS")
	_ = os.Unsetenv("LORE_MCP_WIKI_SYNC_TIMEOUT")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Wiki.MirrorURL != "https://github.com/ncatlab/nlab-content-html.git" {
		t.Errorf("Unexpected default mirror URL: %s", settings.Wiki.MirrorURL)
	}
	if !strings.HasSuffix(settings.Wiki.BaseDir, ".lore-mcp") {
		t.Errorf("Expected base dir to end with '.lore-mcp', got '%s'", settings.Wiki.BaseDir)
	}
	if settings.Wiki.SiteName != "nLab" {
		t.Errorf("Expected site name 'nLab', got '%s'", settings.Wiki.SiteName)
	}
	if settings.Wiki.SiteBaseURL != "https://ncatlab.org/nlab/show/" {
		t.Errorf("Unexpected default site base URL: %s", settings.Wiki.SiteBaseURL)
	}
	if settings.Wiki.EditPathPrefix != "/nlab/edit/" {
		t.Errorf("Unexpected default edit path prefix: %s", settings.Wiki.EditPathPrefix)
	}
	if settings.Wiki.MaxResults != 10 {
		t.Errorf("Expected max results 10, got %d", settings.Wiki.MaxResults)
	}
	if settings.Wiki.SyncTimeout != 10*time.Minute {
		t.Errorf("Expected sync timeout 10m, got %v", settings.Wiki.SyncTimeout)
	}
}

func TestLoadSettings_WikiEnvVars(t *testing.T) {
	t.Setenv("LORE_MCP_WIKI_MIRROR_URL", "https://example.com/other.git")
	t.Setenv("LORE_MCP_WIKI_BASE_DIR", "/custom/path")
	t.Setenv("LORE_MCP_WIKI_SITE_NAME", "OtherWiki")
	t.Setenv("LORE_MCP_WIKI_SITE_BASE_URL", "https://other.example.com/show/")
	t.Setenv("LORE_MCP_WIKI_EDIT_PATH_PREFIX", "/other/edit/")
	t.Setenv("LORE_MCP_WIKI_MAX_RESULTS", "25")
	t.Setenv("LORE_MCP_WIKI_SYNC_TIMEOUT", "5m")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Wiki.MirrorURL != "https://example.com/other.git" {
		t.Errorf("Expected mirror URL from env, got '%s'", settings.Wiki.MirrorURL)
	}
	if settings.Wiki.BaseDir != "/custom/path" {
		t.Errorf("Expected base dir '/custom/path', got '%s'", settings.Wiki.BaseDir)
	}
	if settings.Wiki.SiteName != "OtherWiki" {
		t.Errorf("Expected site name 'OtherWiki', got '%s'", settings.Wiki.SiteName)
	}
	if settings.Wiki.SiteBaseURL != "https://other.example.com/show/" {
		t.Errorf("Expected site base URL from env, got '%s'", settings.Wiki.SiteBaseURL)
	}
	if settings.Wiki.EditPathPrefix != "/other/edit/" {
		t.Errorf("Expected edit path prefix from env, got '%s'", settings.Wiki.EditPathPrefix)
	}
	if settings.Wiki.MaxResults != 25 {
		t.Errorf("Expected max results 25, got %d", settings.Wiki.MaxResults)
	}
	if settings.Wiki.SyncTimeout != 5*time.Minute {
		t.Errorf("Expected sync timeout 5m, got %v", settings.Wiki.SyncTimeout)
	}
}

func TestLoadSettings_WikiBaseDirExpandHome(t *testing.T) {
	t.Setenv("LORE_MCP_WIKI_BASE_DIR", "~/custom-lore")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, "custom-lore")
	if settings.Wiki.BaseDir != expected {
		t.Errorf("Expected base dir '%s', got '%s'", expected, settings.Wiki.BaseDir)
	}
}

func TestLoadSettingsWithFlags_WikiFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("wiki-mirror-url", "", "")
	flags.String("wiki-base-dir", "", "")
	flags.String("wiki-site-name", "", "")
	flags.String("wiki-site-base-url", "", "")
	flags.String("wiki-edit-path-prefix", "", "")
	flags.Int("wiki-max-results", 0, "")
	flags.Duration("wiki-sync-timeout", 0, "")

	_ = flags.Set("wiki-mirror-url", "https://flags.example.com/wiki.git")
	_ = flags.Set("wiki-base-dir", "/flag/path")
	_ = flags.Set("wiki-site-name", "FlagWiki")
	_ = flags.Set("wiki-site-base-url", "https://flags.example.com/show/")
	_ = flags.Set("wiki-edit-path-prefix", "/flag/edit/")
	_ = flags.Set("wiki-max-results", "3")
	_ = flags.Set("wiki-sync-timeout", "30s")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Wiki.MirrorURL != "https://flags.example.com/wiki.git" {
		t.Errorf("Expected mirror URL from flag, got '%s'", settings.Wiki.MirrorURL)
	}
	if settings.Wiki.BaseDir != "/flag/path" {
		t.Errorf("Expected base dir '/flag/path', got '%s'", settings.Wiki.BaseDir)
	}
	if settings.Wiki.SiteName != "FlagWiki" {
		t.Errorf("Expected site name 'FlagWiki', got '%s'", settings.Wiki.SiteName)
	}
	if settings.Wiki.MaxResults != 3 {
		t.Errorf("Expected max results 3, got %d", settings.Wiki.MaxResults)
	}
	if settings.Wiki.SyncTimeout != 30*time.Second {
		t.Errorf("Expected sync timeout 30s, got %v", settings.Wiki.SyncTimeout)
	}
}

func TestLoadSettingsWithFlags_WikiFlagsOverrideEnv(t *testing.T) {
	t.Setenv("LORE_MCP_WIKI_MAX_RESULTS", "100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("wiki-max-results", 0, "")
	_ = flags.Set("wiki-max-results", "25")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Wiki.MaxResults != 25 {
		t.Errorf("Expected flag to override env for max results, got %d", settings.Wiki.MaxResults)
	}
}

// --- ValidateSettings Tests ---

func TestValidateSettings_ValidNone(t *testing.T) {
	s := &Settings{Transport: "stdio", Auth: AuthSettings{Type: AuthTypeNone}, Wiki: validWiki()}
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected no error for valid none auth, got: %v", err)
	}
}

func TestValidateSettings_ValidNone_EmptyType(t *testing.T) {
	s := &Settings{Transport: "stdio", Auth: AuthSettings{Type: ""}, Wiki: validWiki()}
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected no error for empty auth type, got: %v", err)
	}
}

func TestValidateSettings_ValidBasic(t *testing.T) {
	s := &Settings{
		Transport: "stdio",
		Auth: AuthSettings{
			Type: AuthTypeBasic,
			Basic: BasicAuthSettings{
				Username: "admin",
				Password: "secret",
			},
		},
		Wiki: validWiki(),
	}
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected no error for valid basic auth, got: %v", err)
	}
}

func TestValidateSettings_ValidAPIKey(t *testing.T) {
	s := &Settings{
		Transport: "stdio",
		Auth: AuthSettings{
			Type:    AuthTypeAPIKey,
			APIKeys: []string{"key1", "key2"},
		},
		Wiki: validWiki(),
	}
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected no error for valid apikey auth, got: %v", err)
	}
}

func TestValidateSettings_NoneWithCredentials(t *testing.T) {
	tests := []struct {
		name string
		auth AuthSettings
	}{
		{
			name: "none with username",
			auth: AuthSettings{Type: AuthTypeNone, Basic: BasicAuthSettings{Username: "admin"}},
		},
		{
			name: "none with password",
			auth: AuthSettings{Type: AuthTypeNone, Basic: BasicAuthSettings{Password: "secret"}},
		},
		{
			name: "none with api keys",
			auth: AuthSettings{Type: AuthTypeNone, APIKeys: []string{"key1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{Transport: "stdio", Auth: tt.auth, Wiki: validWiki()}
			err := ValidateSettings(s)
			if err == nil {
				t.Fatal("Expected error for none with credentials")
			}
			if !strings.Contains(err.Error(), "incompatible") {
				t.Errorf("Expected 'incompatible' in error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_BasicAuthMissingUsername(t *testing.T) {
	s := &Settings{
		Transport: "stdio",
		Auth: AuthSettings{
			Type:  AuthTypeBasic,
			Basic: BasicAuthSettings{Password: "secret"},
		},
		Wiki: validWiki(),
	}
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for basic auth without username")
	}
	if !strings.Contains(err.Error(), "username and password") {
		t.Errorf("Expected 'username and password' in error, got: %v", err)
	}
}

func TestValidateSettings_BasicAuthWithAPIKeys(t *testing.T) {
	s := &Settings{
		Transport: "stdio",
		Auth: AuthSettings{
			Type: AuthTypeBasic,
			Basic: BasicAuthSettings{
				Username: "admin",
				Password: "secret",
			},
			APIKeys: []string{"key1"},
		},
		Wiki: validWiki(),
	}
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for basic + api keys")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("Expected 'mutually exclusive' in error, got: %v", err)
	}
}

func TestValidateSettings_APIKeyMissingKeys(t *testing.T) {
	s := &Settings{
		Transport: "stdio",
		Auth:      AuthSettings{Type: AuthTypeAPIKey},
		Wiki:      validWiki(),
	}
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for apikey without keys")
	}
	if !strings.Contains(err.Error(), "requires at least one") {
		t.Errorf("Expected 'requires at least one' in error, got: %v", err)
	}
}

func TestValidateSettings_UnknownAuthType(t *testing.T) {
	s := &Settings{
		Transport: "stdio",
		Auth:      AuthSettings{Type: "oauth"},
		Wiki:      validWiki(),
	}
	err := ValidateSettings(s)
	if err == nil {
		t.Fatal("Expected error for unknown auth type")
	}
	if !strings.Contains(err.Error(), "unknown auth-type") {
		t.Errorf("Expected 'unknown auth-type' in error, got: %v", err)
	}
}

func TestValidateSettings_InvalidTransport(t *testing.T) {
	tests := []struct {
		name      string
		transport string
	}{
		{"empty transport", ""},
		{"http transport", "http"},
		{"websocket transport", "websocket"},
		{"unknown transport", "foobar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Settings{
				Transport: tt.transport,
				Auth:      AuthSettings{Type: AuthTypeNone},
				Wiki:      validWiki(),
			}
			err := ValidateSettings(s)
			if err == nil {
				t.Fatalf("Expected error for transport %q", tt.transport)
			}
			if !strings.Contains(err.Error(), "transport must be") {
				t.Errorf("Expected 'transport must be' in error, got: %v", err)
			}
		})
	}
}

// --- Wiki Validation Tests ---

func TestValidateSettings_WikiValid(t *testing.T) {
	s := &Settings{Transport: "stdio", Auth: AuthSettings{Type: AuthTypeNone}, Wiki: validWiki()}
	if err := ValidateSettings(s); err != nil {
		t.Errorf("Expected no error for valid wiki config, got: %v", err)
	}
}

func TestValidateSettings_WikiInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WikiSettings)
		wantMsg string
	}{
		{"empty mirror url", func(w *WikiSettings) { w.MirrorURL = "" }, "wiki-mirror-url cannot be empty"},
		{"empty base dir", func(w *WikiSettings) { w.BaseDir = "" }, "wiki-base-dir cannot be empty"},
		{"empty site base url", func(w *WikiSettings) { w.SiteBaseURL = "" }, "wiki-site-base-url cannot be empty"},
		{"empty edit path prefix", func(w *WikiSettings) { w.EditPathPrefix = "" }, "wiki-edit-path-prefix cannot be empty"},
		{"zero max results", func(w *WikiSettings) { w.MaxResults = 0 }, "wiki-max-results must be positive"},
		{"negative max results", func(w *WikiSettings) { w.MaxResults = -1 }, "wiki-max-results must be positive"},
		{"zero sync timeout", func(w *WikiSettings) { w.SyncTimeout = 0 }, "wiki-sync-timeout must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wiki := validWiki()
			tt.mutate(&wiki)
			s := &Settings{Transport: "stdio", Auth: AuthSettings{Type: AuthTypeNone}, Wiki: wiki}

			err := ValidateSettings(s)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected %q in error, got: %v", tt.wantMsg, err)
			}
		})
	}
}

// --- Helper Function Tests ---

func TestExpandHomeDir(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"tilde prefix", "~/test", filepath.Join(home, "test")},
		{"tilde only", "~", home},
		{"no tilde", "/absolute/path", "/absolute/path"},
		{"tilde in middle", "/path/~/test", "/path/~/test"},
		{"relative path", "relative/path", "relative/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandHomeDir(tt.input)
			if result != tt.expected {
				t.Errorf("expandHomeDir(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cloudshelf/internal/catalog"
	"github.com/starford/cloudshelf/internal/linker"
	"github.com/starford/cloudshelf/internal/reconcile"
	"github.com/starford/cloudshelf/internal/template"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultProvenanceTag marks shortcuts created by this application.
const DefaultProvenanceTag = "xCloud"

var httpURL = regexp.MustCompile(`^https?://`)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Steam    SteamConfig       `yaml:"steam"`
	Catalog  CatalogConfig     `yaml:"catalog"`
	Shortcut ShortcutConfig    `yaml:"shortcut"`
	Apply    ApplyConfig       `yaml:"apply"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.Shortcut.Validate(); err != nil {
		return fmt.Errorf("shortcut: %w", err)
	}
	if err := c.Apply.Validate(); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SteamConfig selects the launcher installation and user.
// An empty Root means the per-platform default; AccountID 0 picks the most
// recently signed-in user.
type SteamConfig struct {
	Root      string `yaml:"root"`
	AccountID uint32 `yaml:"account_id"`
}

// CatalogConfig configures the catalog client.
type CatalogConfig struct {
	Market     string        `yaml:"market"`
	Language   string        `yaml:"language"`
	CatalogURL string        `yaml:"catalog_url"`
	StoreURL   string        `yaml:"store_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Market, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.Language, validation.Required),
		validation.Field(&c.CatalogURL, validation.Required, validation.Match(httpURL)),
		validation.Field(&c.StoreURL, validation.Required, validation.Match(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
	)
}

// Options converts the section into catalog client options.
func (c *CatalogConfig) Options(version string) catalog.Options {
	return catalog.Options{
		CatalogURL: c.CatalogURL,
		StoreURL:   c.StoreURL,
		Market:     c.Market,
		Language:   c.Language,
		Timeout:    c.Timeout,
		AppVersion: version,
	}
}

// ShortcutConfig holds the shortcut templates. Profile names the entry of
// Profiles used for new and refreshed shortcuts.
type ShortcutConfig struct {
	ProvenanceTag string                    `yaml:"provenance_tag"`
	Profile       string                    `yaml:"profile"`
	Profiles      map[string]linker.Profile `yaml:"profiles"`
}

// Validate validates the shortcut configuration.
func (c *ShortcutConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ProvenanceTag, validation.Required),
		validation.Field(&c.Profile, validation.Required),
	); err != nil {
		return err
	}
	p, ok := c.Profiles[c.Profile]
	if !ok {
		return fmt.Errorf("profile %q is not defined", c.Profile)
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.AppName, validation.Required, knownPlaceholders),
		validation.Field(&p.Exe, validation.Required, knownPlaceholders),
		validation.Field(&p.WorkingDir, knownPlaceholders),
		validation.Field(&p.Args, knownPlaceholders),
	)
}

// knownPlaceholders rejects templates naming a placeholder Fill would leave
// verbatim.
var knownPlaceholders = validation.By(func(v any) error {
	s, _ := v.(string)
	for _, name := range template.Placeholders(s) {
		if !template.Known(name) {
			return fmt.Errorf("unknown placeholder {%s}", name)
		}
	}
	return nil
})

// Active returns the selected profile.
func (c *ShortcutConfig) Active() linker.Profile {
	return c.Profiles[c.Profile]
}

// ApplyConfig tunes the apply worker pool.
type ApplyConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// Validate validates the apply configuration.
func (c *ApplyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1), validation.Max(16)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return errors.New("auth: mode is \"token\" but token is empty")
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

const launchURL = `https://www.xbox.com/play/launch/{storeid}`

// DefaultProfiles returns the built-in browser profiles for goos. Every
// platform has an "edge" profile; linux also has "chrome", both as
// flatpaks.
func DefaultProfiles(goos string) map[string]linker.Profile {
	switch goos {
	case "windows":
		dir := `C:\Program Files (x86)\Microsoft\Edge\Application`
		return map[string]linker.Profile{
			"edge": {
				AppName:    "{title}",
				Exe:        `"` + dir + `\msedge.exe"`,
				WorkingDir: `"` + dir + `"`,
				Args:       `--kiosk "` + launchURL + `" --edge-kiosk-type=fullscreen --no-first-run`,
			},
		}
	case "darwin":
		return map[string]linker.Profile{
			"edge": {
				AppName: "{title}",
				Exe:     `"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"`,
				Args:    `--kiosk "` + launchURL + `" --no-first-run`,
			},
		}
	default:
		return map[string]linker.Profile{
			"edge": {
				AppName:    "{title}",
				Exe:        "/usr/bin/flatpak",
				WorkingDir: "{home}",
				Args: `run --branch=stable --arch=x86_64 --command=/app/bin/edge --file-forwarding com.microsoft.Edge ` +
					`--kiosk "` + launchURL + `" --no-first-run`,
			},
			"chrome": {
				AppName:    "{title}",
				Exe:        "/usr/bin/flatpak",
				WorkingDir: "{home}",
				Args: `run --branch=stable --arch=x86_64 --command=/app/bin/chrome --file-forwarding com.google.Chrome ` +
					`--kiosk "` + launchURL + `" --no-first-run`,
			},
		}
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Catalog: CatalogConfig{
			Market:     "US",
			Language:   "en-US",
			CatalogURL: catalog.DefaultCatalogURL,
			StoreURL:   catalog.DefaultStoreURL,
			Timeout:    30 * time.Second,
		},
		Shortcut: ShortcutConfig{
			ProvenanceTag: DefaultProvenanceTag,
			Profile:       "edge",
			Profiles:      DefaultProfiles(runtime.GOOS),
		},
		Apply: ApplyConfig{
			Concurrency: reconcile.DefaultConcurrency,
		},
		SQLite: SQLiteConfig{
			Path: "./cloudshelf.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

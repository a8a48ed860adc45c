package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/cloudshelf/internal/linker"
	pkgconfig "github.com/starford/cloudshelf/pkg/config"
)

func TestAuthConfig(t *testing.T) {
	cases := []struct {
		name    string
		cfg     AuthConfig
		wantErr string
		enabled bool
	}{
		{name: "disabled", cfg: AuthConfig{Mode: "disabled"}},
		{name: "empty mode defaults to disabled", cfg: AuthConfig{}},
		{name: "token", cfg: AuthConfig{Mode: "token", Token: "mysecret"}, enabled: true},
		{name: "token without value", cfg: AuthConfig{Mode: "token"}, wantErr: "token is empty"},
		{name: "unknown mode", cfg: AuthConfig{Mode: "magic", Token: "x"}, wantErr: "Mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if tc.cfg.Mode == "" {
				t.Error("mode not normalised")
			}
			if tc.cfg.AuthEnabled() != tc.enabled {
				t.Errorf("AuthEnabled = %v", tc.cfg.AuthEnabled())
			}
		})
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, goos := range []string{"windows", "darwin", "linux"} {
		sc := ShortcutConfig{ProvenanceTag: "xCloud", Profile: "edge", Profiles: DefaultProfiles(goos)}
		if err := sc.Validate(); err != nil {
			t.Errorf("%s profiles: %v", goos, err)
		}
		if !strings.Contains(sc.Active().Args, "{storeid}") {
			t.Errorf("%s edge args do not reference the store id", goos)
		}
	}
}

func TestFullConfig_SectionErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"auth", func(c *Config) { c.Auth = AuthConfig{Mode: "token"} }, "token is empty"},
		{"unknown profile", func(c *Config) { c.Shortcut.Profile = "firefox" }, `profile "firefox"`},
		{"unknown placeholder", func(c *Config) {
			p := c.Shortcut.Active()
			p.Args = "--kiosk https://example.com/{titel}"
			c.Shortcut.Profiles = map[string]linker.Profile{c.Shortcut.Profile: p}
		}, "{titel}"},
		{"empty tag", func(c *Config) { c.Shortcut.ProvenanceTag = "" }, "shortcut"},
		{"concurrency too high", func(c *Config) { c.Apply.Concurrency = 17 }, "apply"},
		{"concurrency zero", func(c *Config) { c.Apply.Concurrency = 0 }, "apply"},
		{"market", func(c *Config) { c.Catalog.Market = "USA" }, "catalog"},
		{"catalog url", func(c *Config) { c.Catalog.CatalogURL = "catalog.local" }, "catalog"},
		{"short timeout", func(c *Config) { c.Catalog.Timeout = time.Millisecond }, "catalog"},
		{"port", func(c *Config) { c.App.HTTP.Port = 70000 }, "Port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	t.Setenv("CLOUDSHELF_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  http:
    port: 9090
steam:
  account_id: 22202
catalog:
  market: GB
  language: en-GB
  timeout: 10s
shortcut:
  profile: custom
  profiles:
    custom:
      app_name: "{title} (Cloud)"
      exe: /usr/bin/firefox
      args: --kiosk https://www.xbox.com/play/launch/{storeid}
apply:
  concurrency: 8
auth:
  mode: token
  token: ${CLOUDSHELF_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Steam.AccountID != 22202 || cfg.Apply.Concurrency != 8 {
		t.Errorf("scalars not loaded: %+v", cfg)
	}
	if cfg.Catalog.Market != "GB" || cfg.Catalog.Timeout != 10*time.Second {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Catalog.CatalogURL == "" {
		t.Error("unset catalog_url lost its default")
	}
	if got := cfg.Shortcut.Active().AppName; got != "{title} (Cloud)" {
		t.Errorf("active profile app name = %q", got)
	}
	if _, ok := cfg.Shortcut.Profiles["edge"]; !ok {
		t.Error("built-in profiles dropped when adding a custom one")
	}
	if cfg.Auth.Token != "s3cret" {
		t.Errorf("token = %q, env not expanded", cfg.Auth.Token)
	}
}

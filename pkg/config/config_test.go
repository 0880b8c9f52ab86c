package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
telegram:
  api_id: 12345
  api_hash: "abcdef"
  phone: "+380501112233"
  channels:
    - "@kyiv_alerts"
database:
  url: "postgres://localhost/test"
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.APIID != 12345 || cfg.Telegram.APIHash != "abcdef" {
		t.Errorf("telegram credentials not loaded: %+v", cfg.Telegram)
	}
	if len(cfg.Telegram.Channels) != 1 || cfg.Telegram.Channels[0] != "@kyiv_alerts" {
		t.Errorf("channels not loaded: %v", cfg.Telegram.Channels)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Geocoding.Provider != "osm" {
		t.Errorf("got provider %q, want osm default", cfg.Geocoding.Provider)
	}
	if cfg.Geocoding.CacheTTL != 24*time.Hour {
		t.Errorf("got cache ttl %v, want 24h default", cfg.Geocoding.CacheTTL)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.QueueSize != 256 {
		t.Errorf("pipeline defaults not applied: %+v", cfg.Pipeline)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("got api port %d, want 8080 default", cfg.API.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults not applied: %+v", cfg.Log)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "123:token")
	t.Setenv("TG_CHANNELS", "@one, @two ,@three")
	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.BotToken != "123:token" {
		t.Errorf("got bot token %q, want env value", cfg.Telegram.BotToken)
	}
	want := []string{"@one", "@two", "@three"}
	if len(cfg.Telegram.Channels) != len(want) {
		t.Fatalf("got channels %v, want %v", cfg.Telegram.Channels, want)
	}
	for i, ch := range want {
		if cfg.Telegram.Channels[i] != ch {
			t.Errorf("channel %d: got %q, want %q", i, cfg.Telegram.Channels[i], ch)
		}
	}
	if cfg.Database.URL != "postgres://env/db" {
		t.Errorf("got database url %q, want env value", cfg.Database.URL)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "missing api credentials",
			body: `
telegram:
  phone: "+380501112233"
  channels: ["@a"]
database:
  url: "postgres://localhost/test"
`,
			wantErr: "api_id",
		},
		{
			name: "no auth path",
			body: `
telegram:
  api_id: 1
  api_hash: "h"
  channels: ["@a"]
database:
  url: "postgres://localhost/test"
`,
			wantErr: "phone or bot_token",
		},
		{
			name: "no channels",
			body: `
telegram:
  api_id: 1
  api_hash: "h"
  phone: "+380501112233"
database:
  url: "postgres://localhost/test"
`,
			wantErr: "channel",
		},
		{
			name: "missing database url",
			body: `
telegram:
  api_id: 1
  api_hash: "h"
  phone: "+380501112233"
  channels: ["@a"]
`,
			wantErr: "database url",
		},
		{
			name: "unknown provider",
			body: validConfig + `
geocoding:
  provider: "bing"
`,
			wantErr: "provider",
		},
		{
			name: "fallback same as primary",
			body: validConfig + `
geocoding:
  provider: "osm"
  fallback: "osm"
`,
			wantErr: "fallback",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, c.body))
			if err == nil {
				t.Fatal("LoadConfig succeeded, want error")
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("got error %q, want it to mention %q", err, c.wantErr)
			}
		})
	}
}

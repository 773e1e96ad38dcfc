package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"server_url": "ws://sync.example.com/ws",
		"agent_url": "http://127.0.0.1:4000",
		"listen_addr": "127.0.0.1:9000",
		"cinemeta_url": "http://addons.example.com"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "ws://sync.example.com/ws" {
		t.Errorf("server_url not applied: %q", cfg.ServerURL)
	}
	if cfg.AgentURL != "http://127.0.0.1:4000" || cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.CinemetaURL != "http://addons.example.com" || cfg.TorrentioURL != "" {
		t.Errorf("catalog endpoints mangled: %+v", cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": "0.0.0.0:8090"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8090" {
		t.Errorf("listen_addr not applied: %q", cfg.ListenAddr)
	}
	if cfg.ServerURL != Default().ServerURL || cfg.AgentURL != Default().AgentURL {
		t.Errorf("unset fields lost their defaults: %+v", cfg)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, `{"server_url":`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestLoadEmptyRequiredField(t *testing.T) {
	path := writeConfig(t, `{"server_url": ""}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for an empty server_url")
	}
}

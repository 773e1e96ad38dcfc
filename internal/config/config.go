package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the client daemon's configuration, loaded from a JSON file.
// Missing fields fall back to defaults.
type Config struct {
	// ServerURL is the room-coordination server websocket endpoint.
	ServerURL string `json:"server_url"`

	// AgentURL is the local acquisition agent's HTTP endpoint.
	AgentURL string `json:"agent_url"`

	// ListenAddr is the local control API bind address.
	ListenAddr string `json:"listen_addr"`

	// Catalog provider endpoints; empty means the public defaults.
	CinemetaURL  string `json:"cinemeta_url,omitempty"`
	TorrentioURL string `json:"torrentio_url,omitempty"`
}

func Default() Config {
	return Config{
		ServerURL:  "ws://localhost:3001/ws",
		AgentURL:   "http://127.0.0.1:3000",
		ListenAddr: "127.0.0.1:8090",
	}
}

// Load reads the config file at path. A missing file yields the defaults;
// a malformed one is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.ServerURL == "" || cfg.AgentURL == "" || cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("config %s: server_url, agent_url and listen_addr must not be empty", path)
	}
	return cfg, nil
}

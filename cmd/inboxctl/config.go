package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

type Config struct {
	// Handle is the identity messages are sent as, e.g. "mailto:me@example.com".
	Handle string `yaml:"handle"`

	NATS    NATSConfig    `yaml:"nats"`
	Storage StorageConfig `yaml:"storage"`

	// DropDir, when set, is watched for new files; anything dropped there is
	// uploaded to the active conversation as a remote attachment.
	DropDir string `yaml:"drop_dir"`

	// CacheDir holds decrypted attachments for the session. Empty means a
	// temp directory that is removed on exit.
	CacheDir string `yaml:"cache_dir"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig points at the object hosting service. The token is resolved
// here, once, at config load — never re-read mid-upload.
type StorageConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`

	// Gateway is the host suffix fetch URLs are derived from:
	// https://<cid>.<gateway>/<filename>
	Gateway string `yaml:"gateway"`
}

func (c *Config) PostProcess() error {
	if c.Handle == "" {
		return fmt.Errorf("config is missing the sender handle")
	}
	if c.NATS.URL == "" {
		c.NATS.URL = nats.DefaultURL
	}
	if c.Storage.Gateway == "" {
		c.Storage.Gateway = "ipfs.w3s.link"
	}
	return nil
}

func defaultConfigPath() string {
	baseDir, _ := os.UserConfigDir()
	return filepath.Join(baseDir, "inboxctl", "config.yaml")
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StorageDocstore = "docstore"
	StorageLocal    = "local"

	PresenceOnce     = "once"
	PresencePeriodic = "periodic"

	DefaultConfigFile = "./config.yaml"

	// MaxUsageDays bounds the usage chart range.
	MaxUsageDays = 365
)

func LoadConfig() (*PlatformConfig, error) {
	return LoadConfigFromFile(DefaultConfigFile)
}

// LoadConfigFromFile reads a YAML config. A missing file yields the defaults,
// fields absent from the file keep their default values.
func LoadConfigFromFile(filename string) (*PlatformConfig, error) {
	config := Default()

	content, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return config, config.Validate()
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(content, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	config.applyDefaults()

	return config, config.Validate()
}

func Default() *PlatformConfig {
	config := &PlatformConfig{}
	config.applyDefaults()
	return config
}

func (c *PlatformConfig) applyDefaults() {
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.LogConfig.Format == "" {
		c.LogConfig.Format = "cli"
	}
	if c.StorageConfig.Type == "" {
		c.StorageConfig.Type = StorageMemory
	}
	if c.StorageConfig.Path == "" {
		c.StorageConfig.Path = "./smart-energy.db"
	}
	if c.MessagingConfig.Type == "" {
		c.MessagingConfig.Type = "mem"
	}
	if c.APIServerConfig.Port == 0 {
		c.APIServerConfig.Port = 3000
	}
	if c.MetricsConfig.Port == 0 {
		c.MetricsConfig.Port = 8888
	}
	if c.MetricsConfig.Namespace == "" {
		c.MetricsConfig.Namespace = "smart_energy"
	}
	if c.OAuthConfig.AuthURL == "" {
		c.OAuthConfig.AuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
	}
	if c.OAuthConfig.TokenURL == "" {
		c.OAuthConfig.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if c.OAuthConfig.RedirectURL == "" {
		c.OAuthConfig.RedirectURL = "http://localhost:3000/auth/callback"
	}
	if len(c.OAuthConfig.Scopes) == 0 {
		c.OAuthConfig.Scopes = []string{
			"openid",
			"profile",
			"email",
			"https://www.googleapis.com/auth/homegraph",
		}
	}
	if c.HomeGraphConfig.BaseURL == "" {
		c.HomeGraphConfig.BaseURL = "https://homegraph.googleapis.com"
	}
	if c.HomeGraphConfig.AgentUserID == "" {
		c.HomeGraphConfig.AgentUserID = "user-abc"
	}
	if c.HomeGraphConfig.TimeoutSeconds == 0 {
		c.HomeGraphConfig.TimeoutSeconds = 10
	}
	if c.HomeConfig.Latitude == 0 && c.HomeConfig.Longitude == 0 {
		c.HomeConfig.Latitude = 17.385044
		c.HomeConfig.Longitude = 78.486671
	}
	if c.HomeConfig.ThresholdMeters == 0 {
		c.HomeConfig.ThresholdMeters = 500
	}
	if c.HomeConfig.MonitoredDeviceID == "" {
		c.HomeConfig.MonitoredDeviceID = "demo-device-2"
	}
	if c.PresenceConfig.Mode == "" {
		c.PresenceConfig.Mode = PresenceOnce
	}
	if c.UsageConfig.Seed == nil {
		c.UsageConfig.Seed = []float64{50, 40, 60, 30, 55}
	}
	if c.UsageConfig.Days == 0 {
		c.UsageConfig.Days = len(c.UsageConfig.Seed)
	}
	if len(c.Devices) == 0 {
		c.Devices = []DeviceConfig{
			{ID: "demo-device-1", Name: "Living Room Light", Icon: "bulb", On: true, PowerDraw: "10W"},
			{ID: "demo-device-2", Name: "Bedroom AC", Icon: "thermometer", On: false, PowerDraw: "1200W"},
			{ID: "demo-device-3", Name: "Smart Plug - TV", Icon: "tv", On: true, PowerDraw: "80W"},
		}
	}
	for i := range c.GatewayConfigs {
		gw := &c.GatewayConfigs[i]
		if gw.Protocol == "" {
			gw.Protocol = "coap"
		}
		if gw.CertFile == "" {
			gw.CertFile = "./certs/server.pem"
		}
		if gw.KeyFile == "" {
			gw.KeyFile = "./certs/server-key.pem"
		}
	}
}

// Validate checks that the configuration is coherent.
func (c *PlatformConfig) Validate() error {
	switch c.StorageConfig.Type {
	case StorageMemory, StorageLocal:
	case StorageDocstore:
		if c.StorageConfig.URL == "" {
			return fmt.Errorf("invalid storage.url: required for storage type %q", StorageDocstore)
		}
	default:
		return fmt.Errorf("invalid storage.type %q", c.StorageConfig.Type)
	}
	if c.MessagingConfig.Type != "mem" {
		return fmt.Errorf("invalid messaging.type %q: only \"mem\" is supported", c.MessagingConfig.Type)
	}
	if c.PresenceConfig.Mode != PresenceOnce && c.PresenceConfig.Mode != PresencePeriodic {
		return fmt.Errorf("invalid presence.mode %q: must be %q or %q", c.PresenceConfig.Mode, PresenceOnce, PresencePeriodic)
	}
	if c.HomeConfig.ThresholdMeters < 0 {
		return fmt.Errorf("invalid home.thresholdMeters: must be >= 0")
	}
	if c.UsageConfig.Days < 0 || c.UsageConfig.Days > MaxUsageDays {
		return fmt.Errorf("invalid usage.days: must be in range 0..%d", MaxUsageDays)
	}
	if c.APIServerConfig.Port < 1 || c.APIServerConfig.Port > 65535 {
		return fmt.Errorf("invalid api.port: must be in range 1..65535")
	}
	if c.HomeGraphConfig.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid homegraph.timeoutSeconds: must be >= 0")
	}

	for _, gw := range c.GatewayConfigs {
		if gw.Protocol != "coap" {
			return fmt.Errorf("invalid gateways: unsupported protocol %q", gw.Protocol)
		}
		if gw.Port <= 0 && gw.SslPort <= 0 {
			return fmt.Errorf("invalid gateways: %s gateway needs port or sslPort", gw.Protocol)
		}
	}

	seen := make(map[string]bool)
	for _, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("invalid devices: every device needs an id")
		}
		if seen[d.ID] {
			return fmt.Errorf("invalid devices: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

package config

type PlatformConfig struct {
	LogConfig       LogConfig       `yaml:"log"`
	StorageConfig   StorageConfig   `yaml:"storage"`
	MessagingConfig MessagingConfig `yaml:"messaging"`
	APIServerConfig APIServerConfig `yaml:"api"`
	MetricsConfig   MetricsConfig   `yaml:"metrics"`
	OAuthConfig     OAuthConfig     `yaml:"oauth"`
	HomeGraphConfig HomeGraphConfig `yaml:"homegraph"`
	HomeConfig      HomeConfig      `yaml:"home"`
	PresenceConfig  PresenceConfig  `yaml:"presence"`
	UsageConfig     UsageConfig     `yaml:"usage"`
	Devices         []DeviceConfig  `yaml:"devices"`
	GatewayConfigs  []GatewayConfig `yaml:"gateways"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects the device and usage store backend.
// Type is one of "memory", "docstore" or "local". URL is the docstore database
// (e.g. mongo://smart-energy) holding the devices and usage collections, Path
// the bbolt file of the local backend.
type StorageConfig struct {
	Type string `yaml:"type"`
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
}

// MessagingConfig.Type is the gocloud pubsub scheme of the internal topics.
type MessagingConfig struct {
	Type string `yaml:"type"`
}

type APIServerConfig struct {
	Port int `yaml:"port"`
}

type MetricsConfig struct {
	Port      int    `yaml:"port"`
	Namespace string `yaml:"namespace"`
}

type OAuthConfig struct {
	ClientID     string   `yaml:"clientID"`
	ClientSecret string   `yaml:"clientSecret"`
	RedirectURL  string   `yaml:"redirectURL"`
	AuthURL      string   `yaml:"authURL"`
	TokenURL     string   `yaml:"tokenURL"`
	Scopes       []string `yaml:"scopes"`
}

type HomeGraphConfig struct {
	BaseURL        string `yaml:"baseURL"`
	AgentUserID    string `yaml:"agentUserID"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type HomeConfig struct {
	Latitude          float64 `yaml:"latitude"`
	Longitude         float64 `yaml:"longitude"`
	ThresholdMeters   float64 `yaml:"thresholdMeters"`
	MonitoredDeviceID string  `yaml:"monitoredDeviceID"`
}

// PresenceConfig.Mode is "once" or "periodic".
type PresenceConfig struct {
	Mode string `yaml:"mode"`
}

type UsageConfig struct {
	Seed []float64 `yaml:"seed"`
	Days int       `yaml:"days"`
}

type DeviceConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Icon      string `yaml:"icon"`
	On        bool   `yaml:"on"`
	PowerDraw string `yaml:"powerDraw"`
}

type GatewayConfig struct {
	Protocol string `yaml:"protocol"`
	Port     int    `yaml:"port"`
	SslPort  int    `yaml:"sslPort,omitempty"`
	CertFile string `yaml:"certFile,omitempty"`
	KeyFile  string `yaml:"keyFile,omitempty"`
}

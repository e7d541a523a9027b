package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Rcon      RconConfig      `yaml:"rcon"`
	Minecraft MinecraftConfig `yaml:"minecraft"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	HTTPPort     int           `yaml:"http_port"`
	PollInterval time.Duration `yaml:"poll_interval"`
	StaticDir    string        `yaml:"static_dir"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// RconConfig holds the remote console connection settings
type RconConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MinecraftConfig holds static server facts shown on the dashboard
type MinecraftConfig struct {
	IP      string `yaml:"ip"`
	Version string `yaml:"version"`
	MOTD    string `yaml:"motd"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.PollInterval == 0 {
		cfg.Server.PollInterval = 60 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/craftwatch/craftwatch.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Rcon.Host == "" {
		cfg.Rcon.Host = "127.0.0.1"
	}
	if cfg.Rcon.Port == 0 {
		cfg.Rcon.Port = 25575
	}
	if cfg.Rcon.Timeout == 0 {
		cfg.Rcon.Timeout = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	// Note: StaticDir intentionally has no default - empty means don't serve static files

	return &cfg, nil
}

// Package config loads the renderd configuration from YAML with
// environment-variable overrides (PATCHMIX_*).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level renderd configuration.
type Config struct {
	Version int `yaml:"version"`
	Render  struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
		FPS    int `yaml:"fps"`
	} `yaml:"render"`
	Preview struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
		FPS    int `yaml:"fps"`
	} `yaml:"preview"`
	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		URL         string `yaml:"url"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// RenderWidth returns the render surface width, defaulting to 320.
func (c *Config) RenderWidth() int {
	if c.Render.Width <= 0 {
		return 320
	}
	return c.Render.Width
}

// RenderHeight returns the render surface height, defaulting to 180.
func (c *Config) RenderHeight() int {
	if c.Render.Height <= 0 {
		return 180
	}
	return c.Render.Height
}

// RenderFPS returns the engine tick rate, defaulting to 30.
func (c *Config) RenderFPS() int {
	if c.Render.FPS <= 0 {
		return 30
	}
	return c.Render.FPS
}

// PreviewWidth returns the preview frame width, defaulting to 320.
func (c *Config) PreviewWidth() int {
	if c.Preview.Width <= 0 {
		return 320
	}
	return c.Preview.Width
}

// PreviewHeight returns the preview frame height, defaulting to 180.
func (c *Config) PreviewHeight() int {
	if c.Preview.Height <= 0 {
		return 180
	}
	return c.Preview.Height
}

// PreviewFPS returns the preview target frame rate, defaulting to 15.
func (c *Config) PreviewFPS() int {
	if c.Preview.FPS <= 0 {
		return 15
	}
	return c.Preview.FPS
}

// APIPort returns the configured API port, defaulting to 8089 if not set.
func (c *Config) APIPort() int {
	if p := ParseInt("PATCHMIX_API_PORT", 0); p > 0 {
		return p
	}
	if c.Network.APIPort == 0 {
		return 8089
	}
	return c.Network.APIPort
}

// MQTTEnabled reports whether the MQTT bridge should start,
// overridable via PATCHMIX_MQTT_ENABLED.
func (c *Config) MQTTEnabled() bool {
	return ParseBool("PATCHMIX_MQTT_ENABLED", c.MQTT.Enabled)
}

// MQTTURL returns the broker URL, overridable via PATCHMIX_MQTT_URL,
// defaulting to a local broker.
func (c *Config) MQTTURL() string {
	if env := ParseString("PATCHMIX_MQTT_URL", ""); env != "" {
		return env
	}
	if c.MQTT.URL == "" {
		return "tcp://localhost:1883"
	}
	return c.MQTT.URL
}

// MQTTTopicPrefix returns the MQTT topic prefix, defaulting to "patchmix".
func (c *Config) MQTTTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "patchmix"
	}
	return c.MQTT.TopicPrefix
}

// LogLevel returns the configured log level, overridable via
// PATCHMIX_LOG_LEVEL, defaulting to "info".
func (c *Config) LogLevel() string {
	if env := ParseString("PATCHMIX_LOG_LEVEL", ""); env != "" {
		return env
	}
	if c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

// Load reads a renderd config file. A missing file yields a default
// configuration rather than an error, so the daemon runs zero-config.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Version: 1}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d", cfg.Version)
	}

	return &cfg, nil
}

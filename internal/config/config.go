package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full dualcap configuration.
type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Devices DevicesConfig `mapstructure:"devices" yaml:"devices"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

// AudioConfig contains the target recording format and drain cadence.
type AudioConfig struct {
	SampleRate       int `mapstructure:"sample_rate" yaml:"sample_rate"`
	BitDepth         int `mapstructure:"bit_depth" yaml:"bit_depth"`
	BufferDurationMs int `mapstructure:"buffer_duration_ms" yaml:"buffer_duration_ms"`
}

// DevicesConfig selects the capture endpoints. Empty means the system
// default endpoint of that kind.
type DevicesConfig struct {
	Loopback   string `mapstructure:"loopback" yaml:"loopback"`
	Microphone string `mapstructure:"microphone" yaml:"microphone"`
}

// OutputConfig controls where session recordings land.
type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// ServerConfig configures the status/control HTTP server.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate:       48000,
		BitDepth:         16,
		BufferDurationMs: 100,
	},
	Output: OutputConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "DualCap"),
	},
	Server: ServerConfig{
		Address: "127.0.0.1",
		Port:    8080,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the configuration file at path, layered under DUALCAP_*
// environment overrides (DUALCAP_AUDIO_SAMPLE_RATE and so on), and
// validates the result. An empty path applies the defaults and any
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DUALCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register every key so AutomaticEnv is consulted for it even when
	// the config file omits the section.
	v.SetDefault("audio.sample_rate", defaultConfig.Audio.SampleRate)
	v.SetDefault("audio.bit_depth", defaultConfig.Audio.BitDepth)
	v.SetDefault("audio.buffer_duration_ms", defaultConfig.Audio.BufferDurationMs)
	v.SetDefault("devices.loopback", defaultConfig.Devices.Loopback)
	v.SetDefault("devices.microphone", defaultConfig.Devices.Microphone)
	v.SetDefault("output.directory", defaultConfig.Output.Directory)
	v.SetDefault("server.address", defaultConfig.Server.Address)
	v.SetDefault("server.port", defaultConfig.Server.Port)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	return nil
}

// Validate validates the audio section.
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 22050, 44100, 48000, 96000:
	default:
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 22050, 44100, 48000, 96000], got %d", a.SampleRate)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16 (PCM), got %d", a.BitDepth)
	}

	if a.BufferDurationMs < 10 || a.BufferDurationMs > 1000 {
		return fmt.Errorf("buffer_duration_ms must be between 10 and 1000, got %d", a.BufferDurationMs)
	}

	return nil
}

// Validate validates the output section.
func (o *OutputConfig) Validate() error {
	if o.Directory == "" {
		return fmt.Errorf("directory cannot be empty")
	}
	return nil
}

// Validate validates the server section.
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	return nil
}

// BufferDuration returns the drain cadence as a time.Duration.
func (a *AudioConfig) BufferDuration() time.Duration {
	return time.Duration(a.BufferDurationMs) * time.Millisecond
}

// SessionFileName builds the output file name for a session identifier,
// stripped of characters that are unsafe in file names.
func SessionFileName(sessionID string) string {
	return fmt.Sprintf("session_%s_audio.wav", cleanFileName(sessionID))
}

// cleanFileName sanitizes a session identifier for use in a file name.
// Allows: letters, numbers, hyphens, underscores.
func cleanFileName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

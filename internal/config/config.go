package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the app.
type Config struct {
	Deepgram  DeepgramConfig  `yaml:"deepgram"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Geocoding GeocodingConfig `yaml:"geocoding"`
	Maps      MapsConfig      `yaml:"maps"`
	Places    PlacesConfig    `yaml:"places"`
	Log       LogConfig       `yaml:"log"`
}

type DeepgramConfig struct {
	APIKey            string        `yaml:"api_key"`
	APIBaseURL        string        `yaml:"api_base_url"`
	Model             string        `yaml:"model"`
	Language          string        `yaml:"language"`
	SmartFormat       *bool         `yaml:"smart_format"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend"`
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

type SessionConfig struct {
	FinalizeTimeout      time.Duration `yaml:"finalize_timeout"`
	EnablePolicy         string        `yaml:"enable_policy"`
	AvailabilityInterval time.Duration `yaml:"availability_interval"`
}

type GeocodingConfig struct {
	Provider      string `yaml:"provider"`
	GoogleAPIKey  string `yaml:"google_api_key"`
	GoogleBaseURL string `yaml:"google_base_url"`
	NominatimURL  string `yaml:"nominatim_url"`
	UserAgent     string `yaml:"user_agent"`
}

type MapsConfig struct {
	URLBase string `yaml:"url_base"`
}

type PlacesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath is where Load looks when SPEECHMAPS_CONFIG is unset.
func DefaultPath() string {
	if path := strings.TrimSpace(os.Getenv("SPEECHMAPS_CONFIG")); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "speechmaps", "config.yaml")
}

// Load reads the optional YAML file at path, applies environment overrides
// and fills defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("reading config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.setDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", c.Deepgram.APIKey)
	c.Deepgram.APIBaseURL = envOrDefault("DEEPGRAM_API_BASE", c.Deepgram.APIBaseURL)
	c.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", c.Deepgram.Model)
	c.Deepgram.Language = envOrDefault("DEEPGRAM_LANGUAGE", c.Deepgram.Language)
	if value, ok := envBool("DEEPGRAM_SMART_FORMAT"); ok {
		c.Deepgram.SmartFormat = &value
	}

	c.Audio.Backend = envOrDefault("SPEECHMAPS_AUDIO_BACKEND", c.Audio.Backend)
	c.Audio.RecorderCommand = envOrDefault("SPEECHMAPS_FFMPEG_COMMAND", c.Audio.RecorderCommand)
	c.Audio.InputFormat = envOrDefault("SPEECHMAPS_AUDIO_INPUT_FORMAT", c.Audio.InputFormat)
	c.Audio.InputDevice = envOrDefault("SPEECHMAPS_AUDIO_INPUT_DEVICE", c.Audio.InputDevice)
	c.Audio.SampleRate = envOrDefaultInt("SPEECHMAPS_SAMPLE_RATE", c.Audio.SampleRate)
	c.Audio.Channels = envOrDefaultInt("SPEECHMAPS_CHANNELS", c.Audio.Channels)

	c.Session.FinalizeTimeout = envOrDefaultMillis("SPEECHMAPS_FINALIZE_TIMEOUT_MS", c.Session.FinalizeTimeout)
	c.Session.EnablePolicy = envOrDefault("SPEECHMAPS_ENABLE_POLICY", c.Session.EnablePolicy)
	c.Session.AvailabilityInterval = envOrDefaultMillis("SPEECHMAPS_AVAILABILITY_INTERVAL_MS", c.Session.AvailabilityInterval)

	c.Geocoding.Provider = envOrDefault("SPEECHMAPS_GEOCODER", c.Geocoding.Provider)
	c.Geocoding.GoogleAPIKey = envOrDefault("GOOGLE_MAPS_API_KEY", c.Geocoding.GoogleAPIKey)
	c.Geocoding.NominatimURL = envOrDefault("SPEECHMAPS_NOMINATIM_URL", c.Geocoding.NominatimURL)

	c.Maps.URLBase = envOrDefault("SPEECHMAPS_MAPS_URL_BASE", c.Maps.URLBase)
	c.Places.Path = envOrDefault("SPEECHMAPS_PLACES_FILE", c.Places.Path)

	c.Log.Level = envOrDefault("SPEECHMAPS_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("SPEECHMAPS_LOG_FORMAT", c.Log.Format)
}

func (c *Config) setDefaults() error {
	if c.Deepgram.APIBaseURL == "" {
		c.Deepgram.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if c.Deepgram.Model == "" {
		c.Deepgram.Model = "nova-2"
	}
	if c.Deepgram.SmartFormat == nil {
		enabled := true
		c.Deepgram.SmartFormat = &enabled
	}
	if c.Deepgram.KeepAliveInterval <= 0 {
		c.Deepgram.KeepAliveInterval = 5 * time.Second
	}

	if c.Audio.Backend == "" {
		c.Audio.Backend = "ffmpeg"
	}
	if c.Audio.RecorderCommand == "" {
		c.Audio.RecorderCommand = "ffmpeg"
	}
	if c.Audio.InputFormat == "" {
		c.Audio.InputFormat = "pulse"
	}
	if c.Audio.InputDevice == "" {
		c.Audio.InputDevice = "default"
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FramesPerBuffer <= 0 {
		c.Audio.FramesPerBuffer = 1024
	}

	if c.Session.FinalizeTimeout <= 0 {
		c.Session.FinalizeTimeout = 3 * time.Second
	}
	switch c.Session.EnablePolicy {
	case "":
		c.Session.EnablePolicy = "and"
	case "and", "overwrite":
	default:
		return fmt.Errorf("unsupported session.enable_policy %q", c.Session.EnablePolicy)
	}
	if c.Session.AvailabilityInterval <= 0 {
		c.Session.AvailabilityInterval = 30 * time.Second
	}

	if c.Geocoding.UserAgent == "" {
		c.Geocoding.UserAgent = "speechmaps/1.0"
	}
	if c.Maps.URLBase == "" {
		c.Maps.URLBase = "maps://"
	}

	if c.Places.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Places.Path = filepath.Join(home, ".config", "speechmaps", "places.rules")
		}
	}
	if c.Places.IterationLimit <= 0 {
		c.Places.IterationLimit = 30
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envBool(key string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/histocam/internal/logger"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	Source  SourceConfig  `json:"source" yaml:"source" mapstructure:"source"`
	Capture CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Chart   ChartConfig   `json:"chart" yaml:"chart" mapstructure:"chart"`
	Output  OutputConfig  `json:"output" yaml:"output" mapstructure:"output"`
}

// SourceConfig selects and configures the video capture backend
type SourceConfig struct {
	Backend       string `json:"backend" yaml:"backend" mapstructure:"backend"`
	Device        string `json:"device" yaml:"device" mapstructure:"device"` // device node, or index for opencv
	Width         int    `json:"width" yaml:"width" mapstructure:"width"`
	Height        int    `json:"height" yaml:"height" mapstructure:"height"`
	Framerate     int    `json:"framerate" yaml:"framerate" mapstructure:"framerate"` // 0 lets the device choose
	ReadTimeoutMs int    `json:"read_timeout_ms" yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
}

// CaptureConfig controls the sampling loop
type CaptureConfig struct {
	PeriodMs  int  `json:"period_ms" yaml:"period_ms" mapstructure:"period_ms"`
	Grayscale bool `json:"grayscale" yaml:"grayscale" mapstructure:"grayscale"`
	Autostart bool `json:"autostart" yaml:"autostart" mapstructure:"autostart"`
}

// ChartConfig is the histogram canvas size
type ChartConfig struct {
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// OutputConfig controls the MJPEG viewports.
// Zero width/height keeps the source size.
type OutputConfig struct {
	Width       int  `json:"width" yaml:"width" mapstructure:"width"`
	Height      int  `json:"height" yaml:"height" mapstructure:"height"`
	JPEGQuality int  `json:"jpeg_quality" yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	Label       bool `json:"label" yaml:"label" mapstructure:"label"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Source: SourceConfig{
			Backend:       "gst-launch",
			Device:        "/dev/video0",
			Width:         640,
			Height:        480,
			ReadTimeoutMs: 500,
		},
		Capture: CaptureConfig{
			PeriodMs: 100,
		},
		Chart: ChartConfig{
			Width:  150,
			Height: 150,
		},
		Output: OutputConfig{
			JPEGQuality: 90,
			Label:       true,
		},
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server_port: %d", c.ServerPort)
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid log_level: %s (use: debug, info, warn, error)", c.LogLevel)
	}
	if c.Source.Backend == "" {
		return fmt.Errorf("source.backend must be set")
	}
	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		return fmt.Errorf("invalid source size: %dx%d", c.Source.Width, c.Source.Height)
	}
	if c.Source.Framerate < 0 {
		return fmt.Errorf("invalid source.framerate: %d", c.Source.Framerate)
	}
	if c.Capture.PeriodMs <= 0 {
		return fmt.Errorf("invalid capture.period_ms: %d", c.Capture.PeriodMs)
	}
	if c.Chart.Width <= 0 || c.Chart.Height <= 0 {
		return fmt.Errorf("invalid chart size: %dx%d", c.Chart.Width, c.Chart.Height)
	}
	if c.Output.Width < 0 || c.Output.Height < 0 {
		return fmt.Errorf("invalid output size: %dx%d", c.Output.Width, c.Output.Height)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("invalid output.jpeg_quality: %d (1-100)", c.Output.JPEGQuality)
	}
	return nil
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configFile string) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		actualConfigPath = filepath.Join(homeDir, ".config", "histocam", "config.yaml")
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(actualConfigPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: actualConfigPath,
	}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Str("backend", m.config.Source.Backend).
		Str("device", m.config.Source.Device).
		Msg("Config loaded")

	return m, nil
}

// load reads the config file, filling unset fields from the defaults
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Update validates and replaces the configuration, then saves it
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	c := *cfg
	m.config = &c
	m.mu.Unlock()
	return m.Save()
}

// apply mutates a copy of the configuration and stores it if still valid
func (m *Manager) apply(fn func(*Config)) error {
	cfg := m.Get()
	fn(cfg)
	return m.Update(cfg)
}

// SetPort sets the server port
func (m *Manager) SetPort(port int) error {
	return m.apply(func(c *Config) { c.ServerPort = port })
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.apply(func(c *Config) { c.LogLevel = level })
}

// SetBackend selects the capture backend
func (m *Manager) SetBackend(backend string) error {
	return m.apply(func(c *Config) { c.Source.Backend = backend })
}

// SetDevice sets the capture device
func (m *Manager) SetDevice(device string) error {
	return m.apply(func(c *Config) { c.Source.Device = device })
}

// SetGrayscale sets the initial grayscale mode
func (m *Manager) SetGrayscale(enabled bool) error {
	return m.apply(func(c *Config) { c.Capture.Grayscale = enabled })
}

// viperFor loads cfg into a fresh viper instance so dotted keys can be addressed
func viperFor(cfg *Config) (*viper.Viper, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return v, nil
}

// Lookup returns the value of a dotted key such as "source.device"
func (m *Manager) Lookup(key string) (interface{}, error) {
	v, err := viperFor(m.Get())
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	return v.Get(key), nil
}

// Set parses value for a dotted key, validates the result and saves it
func (m *Manager) Set(key, value string) error {
	v, err := viperFor(m.Get())
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	if _, isSection := v.Get(key).(map[string]interface{}); isSection {
		return fmt.Errorf("%s is a section, set one of its keys instead", key)
	}

	v.Set(key, value)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return m.Update(&cfg)
}

// GetConfigPath returns the configuration file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the directory holding the configuration file
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/hopper/internal/logger"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName is used for the config, cache and runtime directory names
const AppName = "hopper"

// Duration is a time.Duration that reads and writes as "200ms" in YAML
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config represents the application configuration
type Config struct {
	LogLevel      string          `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogFile       string          `json:"log_file,omitempty" yaml:"log_file,omitempty" mapstructure:"log_file"`
	SocketPath    string          `json:"socket_path,omitempty" yaml:"socket_path,omitempty" mapstructure:"socket_path"`
	Backend       string          `json:"backend" yaml:"backend" mapstructure:"backend"`
	Notifications bool            `json:"notifications" yaml:"notifications" mapstructure:"notifications"`
	Switcher      SwitcherConfig  `json:"switcher" yaml:"switcher" mapstructure:"switcher"`
	Desktop       DesktopConfig   `json:"desktop" yaml:"desktop" mapstructure:"desktop"`
	Launcher      LauncherConfig  `json:"launcher" yaml:"launcher" mapstructure:"launcher"`
	Search        SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	Frequency     FrequencyConfig `json:"frequency" yaml:"frequency" mapstructure:"frequency"`
	Client        ClientConfig    `json:"client" yaml:"client" mapstructure:"client"`
}

// SwitcherConfig holds window switcher settings
type SwitcherConfig struct {
	// ExcludeFocused drops the currently focused window from the switcher list
	ExcludeFocused bool     `json:"exclude_focused" yaml:"exclude_focused" mapstructure:"exclude_focused"`
	ListTimeout    Duration `json:"list_timeout" yaml:"list_timeout" mapstructure:"list_timeout"`
	FocusTimeout   Duration `json:"focus_timeout" yaml:"focus_timeout" mapstructure:"focus_timeout"`
}

// DesktopConfig holds desktop entry index settings
type DesktopConfig struct {
	// ExtraDirs are scanned after the XDG directories, at lowest priority
	ExtraDirs []string `json:"extra_dirs" yaml:"extra_dirs" mapstructure:"extra_dirs"`
	Watch     bool     `json:"watch" yaml:"watch" mapstructure:"watch"`
	Debounce  Duration `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
}

// LauncherConfig holds application launch settings
type LauncherConfig struct {
	// Terminal wraps entries with Terminal=true; empty means $TERMINAL or xterm
	Terminal string `json:"terminal,omitempty" yaml:"terminal,omitempty" mapstructure:"terminal"`
}

// SearchConfig holds ranking settings
type SearchConfig struct {
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// FrequencyConfig holds the usage frequency cache settings
type FrequencyConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty" mapstructure:"path"`
}

// ClientConfig holds CLI client transport settings
type ClientConfig struct {
	DialTimeout Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	Timeout     Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Manager handles configuration loading and saving
type Manager struct {
	config     *Config
	configPath string
	v          *viper.Viper
	mu         sync.RWMutex
}

// defaults lists every recognised key with its default value
var defaults = map[string]interface{}{
	"log_level":                "info",
	"log_file":                 "",
	"socket_path":              "",
	"backend":                  "auto",
	"notifications":            false,
	"switcher.exclude_focused": true,
	"switcher.list_timeout":    "200ms",
	"switcher.focus_timeout":   "500ms",
	"desktop.extra_dirs":       []string{},
	"desktop.watch":            true,
	"desktop.debounce":         "250ms",
	"launcher.terminal":        "",
	"search.max_results":       0,
	"frequency.enabled":        true,
	"frequency.path":           "",
	"client.dial_timeout":      "500ms",
	"client.timeout":           "3s",
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backend:  "auto",
		Switcher: SwitcherConfig{
			ExcludeFocused: true,
			ListTimeout:    Duration(200 * time.Millisecond),
			FocusTimeout:   Duration(500 * time.Millisecond),
		},
		Desktop: DesktopConfig{
			ExtraDirs: []string{},
			Watch:     true,
			Debounce:  Duration(250 * time.Millisecond),
		},
		Frequency: FrequencyConfig{Enabled: true},
		Client: ClientConfig{
			DialTimeout: Duration(500 * time.Millisecond),
			Timeout:     Duration(3 * time.Second),
		},
	}
}

// NewManager creates a configuration manager backed by v. Flags and
// environment bindings registered on v take precedence over the file.
// An empty configFile selects the default location.
func NewManager(configFile string, v *viper.Viper) (*Manager, error) {
	if v == nil {
		v = viper.New()
	}

	configPath := configFile
	if configPath == "" {
		configPath = filepath.Join(ConfigDir(), "config.yaml")
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		configPath: configPath,
		v:          v,
	}

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Debug().
			Str("path", configPath).
			Msg("Config file not found, using defaults")
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("backend", m.config.Backend).
		Msg("Config loaded")

	return m, nil
}

// durationHook decodes strings and integers into Duration fields
func durationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return Duration(d), nil
	case time.Duration:
		return Duration(v), nil
	case int:
		return Duration(time.Duration(v) * time.Millisecond), nil
	case int64:
		return Duration(time.Duration(v) * time.Millisecond), nil
	case float64:
		return Duration(time.Duration(v * float64(time.Millisecond))), nil
	}
	return data, nil
}

func (m *Manager) load() error {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := m.v.Unmarshal(&cfg, hook); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Desktop.ExtraDirs == nil {
		cfg.Desktop.ExtraDirs = []string{}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Validate checks values that cannot be expressed by types alone
func (c *Config) Validate() error {
	switch c.Backend {
	case "auto", "hyprland", "kwin", "x11", "none":
	default:
		return fmt.Errorf("invalid backend %q: want auto, hyprland, kwin, x11 or none", c.Backend)
	}
	if c.Switcher.ListTimeout <= 0 || c.Switcher.FocusTimeout <= 0 {
		return fmt.Errorf("switcher timeouts must be positive")
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must not be negative")
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	cfg.Desktop.ExtraDirs = append([]string{}, m.config.Desktop.ExtraDirs...)
	return &cfg
}

// Value returns the effective value of a single key
func (m *Manager) Value(key string) (interface{}, error) {
	if _, ok := defaults[key]; !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	return m.v.Get(key), nil
}

// Keys returns every recognised config key
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	return keys
}

// Set updates a single key, validates the result and saves it
func (m *Manager) Set(key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	previous := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.load(); err != nil {
		m.v.Set(key, previous)
		return err
	}
	return m.Save()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Default()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// ConfigDir returns $XDG_CONFIG_HOME/hopper, falling back to ~/.config/hopper
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".config", AppName)
}

// CacheDir returns $XDG_CACHE_HOME/hopper, falling back to ~/.cache/hopper
func CacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".cache", AppName)
}

// RuntimeDir returns $XDG_RUNTIME_DIR/hopper, falling back to /tmp/hopper-<uid>
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", AppName, os.Getuid()))
}

// ResolvedSocketPath returns the configured socket path or the default one
func (c *Config) ResolvedSocketPath() string {
	if c.SocketPath != "" {
		return c.SocketPath
	}
	return filepath.Join(RuntimeDir(), AppName+".sock")
}

// ResolvedFrequencyPath returns the configured frequency cache path or the default one
func (c *Config) ResolvedFrequencyPath() string {
	if c.Frequency.Path != "" {
		return c.Frequency.Path
	}
	return filepath.Join(CacheDir(), "frequency.json")
}

// ResolvedTerminal returns the terminal used for Terminal=true entries
func (c *Config) ResolvedTerminal() string {
	if c.Launcher.Terminal != "" {
		return c.Launcher.Terminal
	}
	if term := os.Getenv("TERMINAL"); term != "" {
		return term
	}
	return "xterm"
}

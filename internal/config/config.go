package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/alecthomas/chroma/v2/styles"
	"gopkg.in/yaml.v3"

	"github.com/wierd-stuff-inc/scribes/internal/logging"
)

// DefaultFile is looked for in the working directory when no config is named.
const DefaultFile = "scribes.yaml"

// EnvConfig names a config file through the environment.
const EnvConfig = "SCRIBES_CONFIG"

type Config struct {
	BaseDir      string            `yaml:"-"`
	BookDir      string            `yaml:"book_dir"`
	PluginsDir   string            `yaml:"plugins_dir"`
	CacheDir     string            `yaml:"cache_dir"`
	OutputDir    string            `yaml:"output_dir"`
	TemplatesDir string            `yaml:"templates_dir"`
	Server       ServerConfig      `yaml:"server"`
	Compression  CompressionConfig `yaml:"compression"`
	Remote       RemoteConfig      `yaml:"remote"`
	Plugins      PluginConfig      `yaml:"plugins"`
	Highlight    HighlightConfig   `yaml:"highlight"`
	Logging      logging.Config    `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CompressionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`    // fastest, default, best, none
	MinSize int    `yaml:"min_size"` // bytes
}

// RemoteConfig controls where `@import from owner/repo` fetches archives.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Branch  string        `yaml:"branch"`
	Timeout time.Duration `yaml:"timeout"`
}

type PluginConfig struct {
	Timeout time.Duration `yaml:"timeout"` // per extend hook
}

type HighlightConfig struct {
	Style       string `yaml:"style"`
	LineNumbers bool   `yaml:"line_numbers"`
}

func Defaults() *Config {
	return &Config{
		BookDir:      "book",
		PluginsDir:   "plugins",
		CacheDir:     filepath.Join("plugins", "loaded"),
		OutputDir:    "generated",
		TemplatesDir: "templates",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Compression: CompressionConfig{
			Enabled: true,
			Level:   "default",
			MinSize: 1024,
		},
		Remote: RemoteConfig{
			BaseURL: "https://github.com",
			Branch:  "master",
			Timeout: 60 * time.Second,
		},
		Plugins: PluginConfig{
			Timeout: 5 * time.Second,
		},
		Highlight: HighlightConfig{
			Style:       "monokai",
			LineNumbers: true,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config named by configPath, or by SCRIBES_CONFIG, or
// ./scribes.yaml. When none of them is given and the default file does not
// exist the defaults are returned, rooted at the working directory.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	path := configPath
	if path == "" {
		path = getenv(EnvConfig)
	}
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.resolve(wd)
		return cfg, nil
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	data = interpolateEnv(data, getenv)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.resolve(filepath.Dir(abs))
	return cfg, nil
}

// resolve makes every directory absolute relative to base.
func (c *Config) resolve(base string) {
	c.BaseDir = base
	for _, dir := range []*string{&c.BookDir, &c.PluginsDir, &c.CacheDir, &c.OutputDir, &c.TemplatesDir} {
		if *dir != "" && !filepath.IsAbs(*dir) {
			*dir = filepath.Join(base, *dir)
		}
	}
}

var envRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv replaces ${VAR} with the value of VAR.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envRegex.FindSubmatch(match)[1]
		return []byte(getenv(string(name)))
	})
}

func Validate(cfg *Config) error {
	dirs := map[string]string{
		"book_dir":    cfg.BookDir,
		"plugins_dir": cfg.PluginsDir,
		"cache_dir":   cfg.CacheDir,
		"output_dir":  cfg.OutputDir,
	}
	for name, value := range dirs {
		if value == "" {
			return fmt.Errorf("config: %s must not be empty", name)
		}
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", cfg.Server.Port)
	}
	switch cfg.Compression.Level {
	case "fastest", "default", "best", "none":
	default:
		return fmt.Errorf("config: unknown compression.level %q", cfg.Compression.Level)
	}
	if cfg.Remote.Timeout <= 0 {
		return fmt.Errorf("config: remote.timeout must be positive")
	}
	if cfg.Plugins.Timeout <= 0 {
		return fmt.Errorf("config: plugins.timeout must be positive")
	}
	if _, ok := styles.Registry[cfg.Highlight.Style]; !ok {
		return fmt.Errorf("config: unknown highlight.style %q", cfg.Highlight.Style)
	}
	return nil
}

// Package config loads builder settings from YAML with environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"voxelbuild.ai/internal/dispatch"
	"voxelbuild.ai/internal/llm"
	"voxelbuild.ai/internal/session"
	"voxelbuild.ai/internal/surface"
)

type Config struct {
	DataDir string `yaml:"data_dir" env:"BUILDER_DATA_DIR"`

	World     WorldConfig     `yaml:"world"`
	Model     ModelConfig     `yaml:"model"`
	Build     BuildConfig     `yaml:"build"`
	Surface   SurfaceConfig   `yaml:"surface"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Materials adds bare words to the material table. Built-in words cannot
	// be redefined.
	Materials map[string]string `yaml:"materials,omitempty"`
}

type WorldConfig struct {
	WSURL           string        `yaml:"ws_url" env:"WORLD_WS_URL"`
	AgentName       string        `yaml:"agent_name"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	StartupCommands []string      `yaml:"startup_commands"`
}

type ModelConfig struct {
	URL         string        `yaml:"url" env:"AI_API"`
	Name        string        `yaml:"name" env:"AI_MODEL"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

type BuildConfig struct {
	SafeMargin     int           `yaml:"safe_margin"`
	MoveTimeout    time.Duration `yaml:"move_timeout"`
	MoveTolerance  float64       `yaml:"move_tolerance"`
	ArriveDistance int           `yaml:"arrive_distance"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
}

type SurfaceConfig struct {
	Ceiling  int `yaml:"ceiling"`
	Floor    int `yaml:"floor"`
	Fallback int `yaml:"fallback"`
}

type DashboardConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr" env:"BUILDER_DASHBOARD_ADDR"`
	AllowRemote bool   `yaml:"allow_remote"`
}

func Defaults() Config {
	d := dispatch.DefaultConfig()
	return Config{
		DataDir: "./data/builder",
		World: WorldConfig{
			WSURL:           "ws://127.0.0.1:8080/v1/ws",
			AgentName:       "CityBuilderBot",
			RequestTimeout:  5 * time.Second,
			ReadyTimeout:    d.ReadyTimeout,
			StartupCommands: []string{"/gamemode creative", "/say AI Builder ready."},
		},
		Model: ModelConfig{
			URL:       "http://localhost:11434/api/generate",
			Name:      "deepseek-coder:6.7b-instruct",
			MaxTokens: 200,
			Timeout:   60 * time.Second,
		},
		Build: BuildConfig{
			SafeMargin:     d.SafeMargin,
			MoveTimeout:    d.MoveTimeout,
			MoveTolerance:  d.MoveTolerance,
			ArriveDistance: d.ArriveDistance,
			SettleDelay:    d.SettleDelay,
		},
		Surface: SurfaceConfig{
			Ceiling:  surface.DefaultCeiling,
			Floor:    surface.DefaultFloor,
			Fallback: surface.DefaultFallback,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Addr:    "127.0.0.1:3000",
		},
	}
}

// Load reads path over Defaults, applies environment overrides, then
// normalizes and validates. An empty path uses defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := Defaults()
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}

	c.World.WSURL = strings.TrimSpace(c.World.WSURL)
	if c.World.AgentName = strings.TrimSpace(c.World.AgentName); c.World.AgentName == "" {
		c.World.AgentName = d.World.AgentName
	}
	if c.World.RequestTimeout <= 0 {
		c.World.RequestTimeout = d.World.RequestTimeout
	}
	if c.World.ReadyTimeout <= 0 {
		c.World.ReadyTimeout = d.World.ReadyTimeout
	}
	cmds := make([]string, 0, len(c.World.StartupCommands))
	for _, s := range c.World.StartupCommands {
		if s = strings.TrimSpace(s); s != "" {
			cmds = append(cmds, s)
		}
	}
	c.World.StartupCommands = cmds

	c.Model.URL = strings.TrimSpace(c.Model.URL)
	if c.Model.Name = strings.TrimSpace(c.Model.Name); c.Model.Name == "" {
		c.Model.Name = d.Model.Name
	}
	if c.Model.MaxTokens <= 0 {
		c.Model.MaxTokens = d.Model.MaxTokens
	}
	if c.Model.Timeout <= 0 {
		c.Model.Timeout = d.Model.Timeout
	}

	if c.Build.SafeMargin <= 0 {
		c.Build.SafeMargin = d.Build.SafeMargin
	}
	if c.Build.MoveTimeout <= 0 {
		c.Build.MoveTimeout = d.Build.MoveTimeout
	}
	if c.Build.MoveTolerance <= 0 {
		c.Build.MoveTolerance = d.Build.MoveTolerance
	}
	if c.Build.SettleDelay < 0 {
		c.Build.SettleDelay = 0
	}

	c.Dashboard.Addr = strings.TrimSpace(c.Dashboard.Addr)
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = d.Dashboard.Addr
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if err := validateURL("world.ws_url", c.World.WSURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("model.url", c.Model.URL, "http", "https"); err != nil {
		return err
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be in [0, 2]")
	}
	if c.Build.ArriveDistance < 0 {
		return fmt.Errorf("build.arrive_distance must be >= 0")
	}
	if c.Surface.Ceiling < c.Surface.Floor {
		return fmt.Errorf("surface.ceiling must be >= surface.floor")
	}
	for k := range c.Materials {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("materials: empty word")
		}
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: want %s URL, got %q", field, strings.Join(schemes, "/"), raw)
}

func (c Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		SafeMargin:     c.Build.SafeMargin,
		MoveTimeout:    c.Build.MoveTimeout,
		MoveTolerance:  c.Build.MoveTolerance,
		ArriveDistance: c.Build.ArriveDistance,
		SettleDelay:    c.Build.SettleDelay,
		ReadyTimeout:   c.World.ReadyTimeout,
		Ceiling:        c.Surface.Ceiling,
		Floor:          c.Surface.Floor,
		Fallback:       c.Surface.Fallback,
	}
}

func (c Config) Session() session.Config {
	return session.Config{
		WorldWSURL:      c.World.WSURL,
		AgentName:       c.World.AgentName,
		RequestTimeout:  c.World.RequestTimeout,
		StartupCommands: append([]string(nil), c.World.StartupCommands...),
	}
}

func (c Config) LLM() llm.Config {
	return llm.Config{
		URL:         c.Model.URL,
		Model:       c.Model.Name,
		Temperature: c.Model.Temperature,
		MaxTokens:   c.Model.MaxTokens,
		Timeout:     c.Model.Timeout,
	}
}

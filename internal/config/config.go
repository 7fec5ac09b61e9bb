// Package config handles configuration loading, validation, and management for sigreplay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"sigreplay/internal/capture"
	"sigreplay/internal/logging"
	"sigreplay/internal/record"
	"sigreplay/internal/style"
	"sigreplay/internal/svg"
	"sigreplay/internal/timeline"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete tool configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	Animation AnimationConfig `toml:"animation" json:"animation" yaml:"animation"`
	Capture   CaptureConfig   `toml:"capture" json:"capture" yaml:"capture"`
	Output    OutputConfig    `toml:"output" json:"output" yaml:"output"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Watch     WatchConfig     `toml:"watch" json:"watch" yaml:"watch"`
}

// AnimationConfig holds the replay timing and stylesheet settings.
type AnimationConfig struct {
	// Durations is one target duration in milliseconds per track.
	Durations []float64 `toml:"durations" json:"durations" yaml:"durations"`

	// Duration is the version 1 single-track form, folded into Durations
	// by migration.
	Duration float64 `toml:"duration,omitzero" json:"duration,omitempty" yaml:"duration,omitempty"`

	// Gap is the pause in milliseconds after every entry on a track.
	Gap float64 `toml:"gap" json:"gap" yaml:"gap"`

	// DotDuration is the fixed duration of a dot in milliseconds.
	DotDuration float64 `toml:"dot_duration" json:"dot_duration" yaml:"dot_duration"`

	// DrawingMode is "even" (by length) or "parallel" (by captured time).
	DrawingMode string `toml:"drawing_mode" json:"drawing_mode" yaml:"drawing_mode"`

	ClassPrefix   string  `toml:"class_prefix" json:"class_prefix" yaml:"class_prefix"`
	AnimationName string  `toml:"animation_name" json:"animation_name" yaml:"animation_name"`
	MaxDash       float64 `toml:"max_dash" json:"max_dash" yaml:"max_dash"`

	// UniquePrefix suffixes the class prefix with a record fingerprint.
	UniquePrefix bool `toml:"unique_prefix" json:"unique_prefix" yaml:"unique_prefix"`
}

// CaptureConfig holds the point-group fitting settings.
type CaptureConfig struct {
	MinDistance float64 `toml:"min_distance" json:"min_distance" yaml:"min_distance"`
	PenColor    string  `toml:"pen_color" json:"pen_color" yaml:"pen_color"`
	MinWidth    float64 `toml:"min_width" json:"min_width" yaml:"min_width"`
	MaxWidth    float64 `toml:"max_width" json:"max_width" yaml:"max_width"`
	DotSize     float64 `toml:"dot_size" json:"dot_size" yaml:"dot_size"`
}

// OutputConfig holds document settings.
type OutputConfig struct {
	// Format is "svg", "html" or "pdf".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Width and Height fix the canvas; zero fits it to the drawing.
	Width   float64 `toml:"width" json:"width" yaml:"width"`
	Height  float64 `toml:"height" json:"height" yaml:"height"`
	Padding float64 `toml:"padding" json:"padding" yaml:"padding"`

	BackgroundColor   string `toml:"background_color" json:"background_color" yaml:"background_color"`
	IncludeBackground bool   `toml:"include_background" json:"include_background" yaml:"include_background"`
	EmbedStyle        bool   `toml:"embed_style" json:"embed_style" yaml:"embed_style"`

	// Title is used by the HTML preview and PDF metadata.
	Title string `toml:"title" json:"title" yaml:"title"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// WatchConfig holds watch-mode settings.
type WatchConfig struct {
	// DebounceMs is how long a file must be quiet before it is re-rendered.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// CrashDir receives a JSON report when a re-render panics. Empty
	// disables the reports.
	CrashDir string `toml:"crash_dir" json:"crash_dir" yaml:"crash_dir"`

	// MetricsAddr serves /metrics, /healthz and /livez while watching,
	// e.g. "127.0.0.1:9464". Empty disables the listener.
	MetricsAddr string `toml:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	td := timeline.DefaultOptions()
	so := style.DefaultOptions()
	svgo := svg.DefaultOptions()
	lc := logging.DefaultConfig()

	return &Config{
		Version: Version,
		Animation: AnimationConfig{
			Durations:     td.TrackDurations,
			Gap:           td.Gap,
			DotDuration:   td.DotDuration,
			DrawingMode:   td.Policy,
			ClassPrefix:   so.ClassPrefix,
			AnimationName: so.AnimationName,
			MaxDash:       so.MaxDash,
		},
		Capture: CaptureConfig{
			MinDistance: capture.DefaultMinDistance,
			PenColor:    capture.DefaultStyle.PenColor,
			MinWidth:    capture.DefaultStyle.MinWidth,
			MaxWidth:    capture.DefaultStyle.MaxWidth,
			DotSize:     capture.DefaultStyle.DotSize,
		},
		Output: OutputConfig{
			Format:            "svg",
			Padding:           svgo.Padding,
			BackgroundColor:   svgo.BackgroundColor,
			IncludeBackground: svgo.IncludeBackground,
			EmbedStyle:        svgo.EmbedStyle,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   lc.FilePath,
			MaxSizeMB:  lc.MaxSize,
			MaxBackups: lc.MaxBackups,
		},
		Watch: WatchConfig{
			DebounceMs: 250,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
// Older schema versions are migrated in memory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := MigrateConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with SIGREPLAY_ and use underscores.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("SIGREPLAY_DURATIONS"); v != "" {
		var ds []float64
		for _, part := range strings.Split(v, ",") {
			d, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return fmt.Errorf("SIGREPLAY_DURATIONS: %w", err)
			}
			ds = append(ds, d)
		}
		c.Animation.Durations = ds
	}
	if err := envFloat("SIGREPLAY_GAP", &c.Animation.Gap); err != nil {
		return err
	}
	if err := envFloat("SIGREPLAY_DOT_DURATION", &c.Animation.DotDuration); err != nil {
		return err
	}
	if v := os.Getenv("SIGREPLAY_DRAWING_MODE"); v != "" {
		c.Animation.DrawingMode = v
	}
	if v := os.Getenv("SIGREPLAY_CLASS_PREFIX"); v != "" {
		c.Animation.ClassPrefix = v
	}

	if v := os.Getenv("SIGREPLAY_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}

	if v := os.Getenv("SIGREPLAY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SIGREPLAY_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SIGREPLAY_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	return nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = f
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Animation.Durations = append([]float64(nil), c.Animation.Durations...)
	return &clone
}

// TimelineOptions converts the animation section for timeline.NewConfig.
func (c *Config) TimelineOptions() timeline.Options {
	return timeline.Options{
		TrackDurations: append([]float64(nil), c.Animation.Durations...),
		Gap:            c.Animation.Gap,
		DotDuration:    c.Animation.DotDuration,
		Policy:         c.Animation.DrawingMode,
	}
}

// StyleOptions converts the animation section for the style emitter.
func (c *Config) StyleOptions() style.Options {
	return style.Options{
		ClassPrefix:   c.Animation.ClassPrefix,
		AnimationName: c.Animation.AnimationName,
		MaxDash:       c.Animation.MaxDash,
	}
}

// SVGOptions converts the output section for the SVG builder.
func (c *Config) SVGOptions() svg.Options {
	return svg.Options{
		Width:             c.Output.Width,
		Height:            c.Output.Height,
		Padding:           c.Output.Padding,
		BackgroundColor:   c.Output.BackgroundColor,
		IncludeBackground: c.Output.IncludeBackground,
		EmbedStyle:        c.Output.EmbedStyle,
	}
}

// Fitter returns a capture fitter using the capture section.
func (c *Config) Fitter() *capture.Fitter {
	return &capture.Fitter{
		MinDistance: c.Capture.MinDistance,
		Defaults: record.StyleOptions{
			PenColor: c.Capture.PenColor,
			MinWidth: c.Capture.MinWidth,
			MaxWidth: c.Capture.MaxWidth,
			DotSize:  c.Capture.DotSize,
		},
	}
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = c.Logging.MaxSizeMB
	lc.MaxBackups = c.Logging.MaxBackups
	return lc, nil
}

// SaveConfig saves the configuration to a file, choosing the encoding by
// extension. TOML is the default.
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = encodeJSON(cfg)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var b strings.Builder
		b.WriteString("# sigreplay configuration\n\n")
		err = toml.NewEncoder(&b).Encode(cfg)
		data = []byte(b.String())
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

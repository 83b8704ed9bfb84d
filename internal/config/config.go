// Package config loads the YAML run configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/FlavioCFOliveira/tinkerbell/internal/model"
	"github.com/FlavioCFOliveira/tinkerbell/internal/synth"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the YAML document read by the CLI.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Window    window.Spec     `yaml:"window"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Synth     SynthConfig     `yaml:"synth"`
	Log       LogConfig       `yaml:"log"`
}

// ModelConfig mirrors model.Options in YAML form.
type ModelConfig struct {
	Variant      model.Variant `yaml:"variant"`
	Cell         model.Cell    `yaml:"cell"`
	Neurons      int           `yaml:"neurons"`
	Dropout      float64       `yaml:"dropout"`
	BatchSize    int           `yaml:"batch_size"`
	Epochs       int           `yaml:"epochs"`
	LearningRate float64       `yaml:"learning_rate"`
	ClipNorm     float64       `yaml:"clip_norm"`
	Loss         string        `yaml:"loss"`
	HuberDelta   float64       `yaml:"huber_delta"`
	Patience     int           `yaml:"patience"`
	Schedule     string        `yaml:"schedule"`
	LRDecay      float64       `yaml:"lr_decay"`
	LRStep       int           `yaml:"lr_step"`
	MinLR        float64       `yaml:"min_lr"`
	Checkpoint   string        `yaml:"checkpoint"`
	Seed         int64         `yaml:"seed"`
	LogInterval  int           `yaml:"log_interval"`
}

// NormalizeConfig is the feature scaling range.
type NormalizeConfig struct {
	FeatureMin float64 `yaml:"feature_min"`
	FeatureMax float64 `yaml:"feature_max"`
}

// SynthConfig drives the synthetic curve generator.
type SynthConfig struct {
	Decline synth.Decline `yaml:"decline"`
	Grid    synth.Grid    `yaml:"grid"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig is a pointwise LSTM with model.DefaultOptions.
func DefaultConfig() *Config {
	opts := model.DefaultOptions()
	return &Config{
		Model: ModelConfig{
			Variant:      model.Pointwise,
			Cell:         opts.Cell,
			Neurons:      opts.Neurons,
			BatchSize:    opts.BatchSize,
			Epochs:       opts.Epochs,
			LearningRate: opts.LearningRate,
			Loss:         opts.Loss,
			Seed:         opts.Seed,
			LogInterval:  opts.LogInterval,
		},
		Window: window.Spec{Width: 8, Offset: 1},
		Normalize: NormalizeConfig{
			FeatureMin: 0,
			FeatureMax: 1,
		},
		Synth: SynthConfig{
			Decline: synth.DefaultDecline(),
			Grid: synth.Grid{
				XDiscMin:        20,
				XDiscMax:        30,
				NumXDisc:        30,
				NumRealizations: 30,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first invalid setting, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	switch c.Model.Variant {
	case model.Pointwise:
	case model.Windowed:
		if err := c.Window.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: model variant %q", ErrInvalid, c.Model.Variant)
	}
	if c.Normalize.FeatureMax <= c.Normalize.FeatureMin {
		return fmt.Errorf("%w: feature range [%g, %g]", ErrInvalid, c.Normalize.FeatureMin, c.Normalize.FeatureMax)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Options(nil).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Options converts the model section into training options.
func (c *Config) Options(logger *zap.Logger) model.Options {
	return model.Options{
		Neurons:      c.Model.Neurons,
		Dropout:      c.Model.Dropout,
		BatchSize:    c.Model.BatchSize,
		Epochs:       c.Model.Epochs,
		Cell:         c.Model.Cell,
		LearningRate: c.Model.LearningRate,
		ClipNorm:     c.Model.ClipNorm,
		Loss:         c.Model.Loss,
		HuberDelta:   c.Model.HuberDelta,
		Seed:         c.Model.Seed,
		Patience:     c.Model.Patience,
		Schedule:     c.Model.Schedule,
		LRDecay:      c.Model.LRDecay,
		LRStep:       c.Model.LRStep,
		MinLR:        c.Model.MinLR,
		Checkpoint:   c.Model.Checkpoint,
		LogInterval:  c.Model.LogInterval,
		Logger:       logger,
	}
}

// Spec is the window geometry for the configured variant; the zero Spec
// selects pointwise samples.
func (c *Config) Spec() window.Spec {
	if c.Model.Variant == model.Windowed {
		return c.Window
	}
	return window.Spec{}
}

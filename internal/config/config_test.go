package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/tinkerbell/internal/model"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, window.Spec{}, cfg.Spec())

	cfg.Model.Variant = model.Windowed
	assert.Equal(t, window.Spec{Width: 8, Offset: 1}, cfg.Spec())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := DefaultConfig()
	cfg.Model.Variant = model.Windowed
	cfg.Model.Cell = model.CellGRU
	cfg.Window = window.Spec{Width: 5, Offset: 2}
	cfg.Synth.Grid.NumXDisc = 4
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  neurons: 32\nlog:\n  level: debug\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Model.Neurons)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultConfig().Model.Epochs, cfg.Model.Epochs)
	assert.Equal(t, DefaultConfig().Synth, cfg.Synth)
}

func TestLoadSchedulingAndCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.yaml")
	doc := "model:\n  schedule: plateau\n  lr_decay: 0.5\n  lr_step: 3\n  min_lr: 0.0001\n  checkpoint: best.gob\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	opts := cfg.Options(zap.NewNop())
	assert.Equal(t, model.SchedulePlateau, opts.Schedule)
	assert.Equal(t, 0.5, opts.LRDecay)
	assert.Equal(t, 3, opts.LRStep)
	assert.Equal(t, 0.0001, opts.MinLR)
	assert.Equal(t, "best.gob", opts.Checkpoint)
}

func TestLoadRejectsUnknownLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  loss: huber\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"variant", func(c *Config) { c.Model.Variant = "stacked" }},
		{"window offset", func(c *Config) { c.Model.Variant = model.Windowed; c.Window.Offset = 9 }},
		{"feature range", func(c *Config) { c.Normalize.FeatureMax = c.Normalize.FeatureMin }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"neurons", func(c *Config) { c.Model.Neurons = 0 }},
		{"cell", func(c *Config) { c.Model.Cell = "rnn" }},
		{"lower-case loss", func(c *Config) { c.Model.Loss = "huber" }},
		{"unknown loss", func(c *Config) { c.Model.Loss = "MAE" }},
		{"schedule", func(c *Config) { c.Model.Schedule = "cosine" }},
		{"step without interval", func(c *Config) { c.Model.Schedule = model.ScheduleStep; c.Model.LRDecay = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [\n"), 0644))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("model:\n  variant: bogus\n"), 0644))
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Patience = 5
	logger := zap.NewNop()
	opts := cfg.Options(logger)
	assert.Equal(t, 5, opts.Patience)
	assert.Equal(t, cfg.Model.Neurons, opts.Neurons)
	assert.Same(t, logger, opts.Logger)
}

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FlavioCFOliveira/tinkerbell/internal/config"
	"github.com/FlavioCFOliveira/tinkerbell/internal/model"
)

func smallConfig() *config.Config {
	c := config.DefaultConfig()
	c.Model.Neurons = 3
	c.Model.Epochs = 2
	c.Synth.Decline.PMax = 5
	c.Synth.Grid.NumXDisc = 2
	c.Synth.Grid.NumRealizations = 2
	c.Synth.Grid.XDiscMin = 10
	c.Synth.Grid.XDiscMax = 15
	return c
}

func run(t *testing.T, cmd interface {
	SetArgs([]string)
	Execute() error
}, args ...string) {
	t.Helper()
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LogConfig{Level: "warn"}, false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = newLogger(config.LogConfig{Level: "warn", Development: true}, true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger(config.LogConfig{Level: "nope"}, false)
	assert.Error(t, err)
}

func TestSynthCommand(t *testing.T) {
	cfg, logger = smallConfig(), zap.NewNop()

	var out bytes.Buffer
	cmd := synthCmd()
	cmd.SetOut(&out)
	run(t, cmd, "--xdisc", "12", "--seed", "7")
	assert.Contains(t, out.String(), "points: 33")
	assert.Contains(t, out.String(), "xdisc: 12")
}

func TestTrainAndForecast(t *testing.T) {
	for _, variant := range []model.Variant{model.Pointwise, model.Windowed} {
		t.Run(string(variant), func(t *testing.T) {
			cfg, logger = smallConfig(), zap.NewNop()
			cfg.Model.Variant = variant
			cfg.Window.Width = 4
			dir := filepath.Join(t.TempDir(), "model")

			run(t, trainCmd(), "--out", dir)
			assert.FileExists(t, filepath.Join(dir, "model.gob"))
			assert.FileExists(t, filepath.Join(dir, "normalizer.gob"))
			assert.FileExists(t, filepath.Join(dir, "meta.yaml"))
			assert.FileExists(t, filepath.Join(dir, "config.yaml"))

			var out bytes.Buffer
			cmd := forecastCmd()
			cmd.SetOut(&out)
			run(t, cmd, dir, "--history", "12", "--horizon", "6", "--xdisc", "11")
			assert.Contains(t, out.String(), string(variant)+" model, history 12, horizon 6")
			assert.Contains(t, out.String(), "rmse")
		})
	}
}

func TestForecastRejectsHorizon(t *testing.T) {
	cfg, logger = smallConfig(), zap.NewNop()
	dir := filepath.Join(t.TempDir(), "model")
	run(t, trainCmd(), "--out", dir)

	for _, horizon := range []string{"0", "-3"} {
		t.Run(horizon, func(t *testing.T) {
			var out bytes.Buffer
			cmd := forecastCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{dir, "--history", "12", "--horizon", horizon, "--xdisc", "11"})
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "horizon "+horizon)
		})
	}
}

func TestInitCommand(t *testing.T) {
	cfg, logger = config.DefaultConfig(), zap.NewNop()
	path := filepath.Join(t.TempDir(), "tinkerbell.yaml")
	run(t, initCmd(), path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

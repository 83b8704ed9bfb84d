package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FlavioCFOliveira/tinkerbell/internal/net"
	"github.com/FlavioCFOliveira/tinkerbell/internal/normalize"
	"github.com/FlavioCFOliveira/tinkerbell/internal/window"
)

const (
	modelFile      = "model.gob"
	normalizerFile = "normalizer.gob"
	metaFile       = "meta.yaml"
)

// Meta describes a saved model directory.
type Meta struct {
	Variant   Variant     `yaml:"variant"`
	Window    window.Spec `yaml:"window"`
	Cell      Cell        `yaml:"cell"`
	Neurons   int         `yaml:"neurons"`
	BatchSize int         `yaml:"batch_size"`
	Seed      int64       `yaml:"seed"`
	Loss      []float64   `yaml:"loss,omitempty,flow"`
	SavedAt   time.Time   `yaml:"saved_at"`
}

// Save writes the model and its normalizer under dir, creating it if needed.
func Save(dir string, m *Model, norm *normalize.Normalizer) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := m.net.Save(filepath.Join(dir, modelFile)); err != nil {
		return err
	}
	if err := norm.Save(filepath.Join(dir, normalizerFile)); err != nil {
		return err
	}

	meta := Meta{
		Variant:   m.Variant,
		Window:    m.Window,
		Cell:      m.opts.Cell,
		Neurons:   m.opts.Neurons,
		BatchSize: m.opts.BatchSize,
		Seed:      m.opts.Seed,
		SavedAt:   time.Now().UTC(),
	}
	if m.history != nil {
		meta.Loss = m.history.Loss
	}
	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Load reads a model directory written by Save. opts supplies the logger and
// training settings for further training; the architecture comes from disk.
func Load(dir string, opts Options) (*Model, *normalize.Normalizer, *Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var meta Meta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if meta.Variant != Pointwise && meta.Variant != Windowed {
		return nil, nil, nil, fmt.Errorf("%w: %q", ErrVariant, meta.Variant)
	}

	network, err := net.Load(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, nil, nil, err
	}
	norm, err := normalize.Load(filepath.Join(dir, normalizerFile))
	if err != nil {
		return nil, nil, nil, err
	}

	opts.Cell = meta.Cell
	opts.Neurons = meta.Neurons
	opts.BatchSize = meta.BatchSize
	opts.Seed = meta.Seed

	logger := opts.logger()
	seq := net.Wrap(network)
	seq.SetLogger(logger)
	m := &Model{
		Variant: meta.Variant,
		Window:  meta.Window,
		net:     seq,
		opts:    opts,
		logger:  logger,
	}
	return m, norm, &meta, nil
}

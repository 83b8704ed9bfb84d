package main

import (
	"fmt"
	"path/filepath"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/FlavioCFOliveira/tinkerbell/internal/config"
	"github.com/FlavioCFOliveira/tinkerbell/internal/model"
	"github.com/FlavioCFOliveira/tinkerbell/internal/normalize"
	"github.com/FlavioCFOliveira/tinkerbell/internal/series"
	"github.com/FlavioCFOliveira/tinkerbell/internal/synth"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "write the default configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			logger.Info("config written", zap.String("path", args[0]))
			return nil
		},
	}
}

// curveFlags override the configured decline for a single curve.
type curveFlags struct {
	xdisc float64
	seed  int64
}

func (f *curveFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.xdisc, "xdisc", -1, "stage discontinuity (default from config)")
	cmd.Flags().Int64Var(&f.seed, "seed", -1, "noise seed (default from config)")
}

func (f *curveFlags) curve() (*synth.Curve, error) {
	d := cfg.Synth.Decline
	if f.xdisc >= 0 {
		d.XDisc = f.xdisc
	}
	if f.seed >= 0 {
		d.Seed = f.seed
	}
	return d.Generate()
}

func synthCmd() *cobra.Command {
	var flags curveFlags
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "generate and plot a synthetic decline curve",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.curve()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "points: %d  x: [%g, %g]  xdisc: %g\n", len(c.X), c.X[0], c.X[len(c.X)-1], c.XDisc)
			fmt.Fprintf(out, "production: min %.3f  max %.3f\n", floats.Min(c.Production), floats.Max(c.Production))
			fmt.Fprintln(out, asciigraph.Plot(c.Production,
				asciigraph.Height(15),
				asciigraph.Width(80),
				asciigraph.Caption("production"),
			))
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func trainCmd() *cobra.Command {
	var (
		outDir string
		epochs int
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "train a model on synthetic realizations and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if epochs > 0 {
				cfg.Model.Epochs = epochs
			}
			curves, err := synth.Realizations(cfg.Synth.Decline, cfg.Synth.Grid)
			if err != nil {
				return err
			}

			// the last realization is held out to score a forecast
			holdout := curves[len(curves)-1]
			if len(curves) > 1 {
				curves = curves[:len(curves)-1]
			}
			feats := make([]*series.Features, len(curves))
			for i, c := range curves {
				if feats[i], err = c.Features(); err != nil {
					return err
				}
			}
			logger.Info("training set",
				zap.Int("curves", len(feats)),
				zap.String("variant", string(cfg.Model.Variant)),
				zap.Int("epochs", cfg.Model.Epochs))

			norm := normalize.New(cfg.Normalize.FeatureMin, cfg.Normalize.FeatureMax)
			m, err := model.Fit(feats, norm, cfg.Spec(), cfg.Options(logger))
			if err != nil {
				return err
			}
			if err := model.Save(outDir, m, norm); err != nil {
				return err
			}
			if err := config.Save(filepath.Join(outDir, "config.yaml"), cfg); err != nil {
				return err
			}
			logger.Info("model saved", zap.String("dir", outDir))

			split := len(holdout.Production) / 2
			forecast, err := m.Predict(norm, holdout.Production[:split], holdout.Stage, holdout.X, len(holdout.Production)-split)
			if err != nil {
				return err
			}
			score, err := model.Score(forecast, holdout.Production[split:])
			if err != nil {
				return err
			}
			logger.Info("holdout forecast",
				zap.Float64("rmse", score.RMSE),
				zap.Float64("mae", score.MAE),
				zap.Float64("bias", score.Bias))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "model", "output directory")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "override configured epochs")
	return cmd
}

func forecastCmd() *cobra.Command {
	var (
		flags   curveFlags
		history int
		horizon int
	)
	cmd := &cobra.Command{
		Use:   "forecast [model-dir]",
		Short: "roll a forecast past the start of a synthetic curve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, norm, meta, err := model.Load(args[0], cfg.Options(logger))
			if err != nil {
				return err
			}
			c, err := flags.curve()
			if err != nil {
				return err
			}
			if history < 2 || history >= len(c.Production) {
				return fmt.Errorf("history %d must be in [2, %d)", history, len(c.Production))
			}
			if horizon < 1 {
				return fmt.Errorf("horizon %d must be at least 1", horizon)
			}
			horizon = min(horizon, len(c.Production)-history)

			forecast, err := m.Predict(norm, c.Production[:history], c.Stage, c.X, horizon)
			if err != nil {
				return err
			}
			actual := c.Production[:history+horizon]
			score, err := model.Score(forecast, actual[history:])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s model, history %d, horizon %d\n", meta.Variant, history, horizon)
			fmt.Fprintf(out, "rmse %.4f  mae %.4f  bias %.4f\n", score.RMSE, score.MAE, score.Bias)
			predicted := append(append([]float64(nil), c.Production[:history]...), forecast...)
			fmt.Fprintln(out, asciigraph.PlotMany([][]float64{actual, predicted},
				asciigraph.Height(15),
				asciigraph.Width(80),
				asciigraph.SeriesColors(asciigraph.Default, asciigraph.Red),
				asciigraph.Caption("actual vs forecast"),
			))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&history, "history", 30, "known levels fed to the model")
	cmd.Flags().IntVar(&horizon, "horizon", 20, "levels to forecast")
	return cmd
}

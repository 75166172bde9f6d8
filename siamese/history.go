// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package siamese

import (
	"image/color"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// EpochMetrics are the metrics recorded at the end of one epoch of training.
type EpochMetrics struct {
	// Epoch number, starting at 1.
	Epoch int

	// GlobalStep is the number of training steps run so far.
	GlobalStep int

	// TrainAccuracy is the moving average of the accuracy over the training batches.
	TrainAccuracy float64

	// ValidationLoss is the mean binary cross-entropy over the validation set.
	ValidationLoss float64

	// ValidationAccuracy over the validation set.
	ValidationAccuracy float64
}

// History holds the metrics of each epoch of a training run.
type History struct {
	Epochs []EpochMetrics
}

// Last returns the metrics of the last epoch, or false if there are none.
func (h *History) Last() (EpochMetrics, bool) {
	if h == nil || len(h.Epochs) == 0 {
		return EpochMetrics{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// DataFrame returns the history as a dataframe, one row per epoch.
func (h *History) DataFrame() dataframe.DataFrame {
	n := len(h.Epochs)
	epochs, steps := make([]int, n), make([]int, n)
	trainAcc, valLoss, valAcc := make([]float64, n), make([]float64, n), make([]float64, n)
	for ii, m := range h.Epochs {
		epochs[ii], steps[ii] = m.Epoch, m.GlobalStep
		trainAcc[ii], valLoss[ii], valAcc[ii] = m.TrainAccuracy, m.ValidationLoss, m.ValidationAccuracy
	}
	return dataframe.New(
		series.New(epochs, series.Int, "epoch"),
		series.New(steps, series.Int, "global_step"),
		series.New(trainAcc, series.Float, "train_accuracy"),
		series.New(valLoss, series.Float, "validation_loss"),
		series.New(valAcc, series.Float, "validation_accuracy"),
	)
}

// WriteCSV writes the history as CSV, with a header line.
func (h *History) WriteCSV(w io.Writer) error {
	df := h.DataFrame()
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build training history table")
	}
	return errors.Wrap(df.WriteCSV(w), "failed to write training history")
}

// SaveCSV writes the history as CSV to filePath.
func (h *History) SaveCSV(filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", filePath)
	}
	if err = h.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close %q", filePath)
}

// Plot saves the validation loss and accuracy curves per epoch to filePath. The image format is taken
// from the file extension (e.g.: ".png", ".svg").
func (h *History) Plot(filePath string) error {
	if len(h.Epochs) == 0 {
		return errors.New("no epochs to plot")
	}
	p := plot.New()
	p.Title.Text = "Siamese network training"
	p.X.Label.Text = "epoch"
	p.Legend.Top = true

	curves := []struct {
		name  string
		value func(m EpochMetrics) float64
		color color.Color
	}{
		{"validation loss", func(m EpochMetrics) float64 { return m.ValidationLoss }, color.RGBA{R: 200, A: 255}},
		{"validation accuracy", func(m EpochMetrics) float64 { return m.ValidationAccuracy }, color.RGBA{B: 200, A: 255}},
		{"train accuracy", func(m EpochMetrics) float64 { return m.TrainAccuracy }, color.RGBA{G: 150, A: 255}},
	}
	for _, curve := range curves {
		points := make(plotter.XYs, len(h.Epochs))
		for ii, m := range h.Epochs {
			points[ii].X = float64(m.Epoch)
			points[ii].Y = curve.value(m)
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return errors.Wrapf(err, "failed to plot %s", curve.name)
		}
		line.Color = curve.color
		p.Add(line)
		p.Legend.Add(curve.name, line)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	return nil
}

// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package siamese

import (
	"math"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/gomlx/ui/gonb/plotly"
	"github.com/gomlx/omniglot/checkpoint"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TrainConfig configures a call to Train.
type TrainConfig struct {
	// CheckpointPath where to save the model after the last epoch. If empty, the model is not saved.
	CheckpointPath string

	// ProgressBar displays the progress of each training epoch on the terminal.
	ProgressBar bool
}

// Train trains the model in ctx for the number of epochs set in ctx (see ParamEpochs), and returns
// the metrics of each epoch.
//
// Each epoch has two phases:
//
//   - Training: one pass over trainDS, updating the model after every batch.
//   - Validating: one pass over validationDS in inference mode (dropout disabled, batch normalization
//     using its moving averages), computing the validation loss averaged over batches.
//
// Both datasets must be finite. After the last epoch the model is saved to config.CheckpointPath,
// along with the last validation loss. Any error reading the datasets aborts the training and is
// returned, along with the history of the epochs completed so far. The workers of parallel datasets
// (see sampler.Parallel) are stopped when Train returns, so the datasets can't be reused afterwards.
//
// If ctx already holds a trained model (e.g.: loaded with checkpoint.Load), training continues from it.
// Otherwise, the random number generator of ctx is seeded with ParamSeed, so runs with the same
// hyperparameters and data train the same model.
func Train(backend backends.Backend, ctx *context.Context, trainDS, validationDS train.Dataset, config TrainConfig) (
	history *History, err error) {
	history = &History{}
	defer stopDatasets(trainDS, validationDS)
	numEpochs := context.GetParamOr(ctx, ParamEpochs, 0)
	if numEpochs <= 0 {
		return history, errors.Errorf("invalid number of epochs %d, set it with %q", numEpochs, ParamEpochs)
	}

	meanAccuracyMetric := metrics.NewMeanBinaryLogitsAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageBinaryLogitsAccuracy("Moving Average Accuracy", "~acc", 0.01)
	trainer := train.NewTrainer(backend, ctx, ModelGraph,
		losses.BinaryCrossentropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics
	if optimizers.GetGlobalStep(ctx) > 0 {
		// Variables were loaded from a checkpoint.
		trainer.SetContext(ctx.Reuse())
	} else {
		// Initial weights and dropout masks are reproducible.
		ctx.RngStateFromSeed(int64(context.GetParamOr(ctx, ParamSeed, 0)))
	}

	validation := newValidator(backend, ctx)

	loop := train.NewLoop(trainer)
	if config.ProgressBar {
		commandline.AttachProgressBar(loop)
	}
	if context.GetParamOr(ctx, plotly.ParamPlots, false) {
		_ = plotly.New().
			Dynamic().
			WithDatasets(validationDS).
			ScheduleEveryNSteps(loop, 100)
	}

	var lastValLoss float64
	for epoch := 1; epoch <= numEpochs; epoch++ {
		// Training.
		klog.V(1).Infof("epoch %d/%d: training", epoch, numEpochs)
		trainMetrics, err := runEpoch(loop, trainDS)
		if err != nil {
			return history, errors.WithMessagef(err, "epoch %d: training failed", epoch)
		}
		if epoch == 1 {
			klog.V(1).Infof("model has %s variables", humanize.Comma(int64(ctx.NumVariables())))
		}

		// Validating.
		klog.V(1).Infof("epoch %d/%d: validating", epoch, numEpochs)
		valLoss, valAccuracy, err := validation.evaluate(validationDS)
		if err != nil {
			return history, errors.WithMessagef(err, "epoch %d: validation failed", epoch)
		}
		m := EpochMetrics{
			Epoch:              epoch,
			GlobalStep:         int(optimizers.GetGlobalStep(ctx)),
			TrainAccuracy:      metricValue(trainer.TrainMetrics(), trainMetrics, movingAccuracyMetric),
			ValidationLoss:     valLoss,
			ValidationAccuracy: valAccuracy,
		}
		lastValLoss = valLoss
		history.Epochs = append(history.Epochs, m)
		klog.Infof("epoch %d/%d: validation loss %.4f, validation accuracy %.2f%%",
			epoch, numEpochs, m.ValidationLoss, 100*m.ValidationAccuracy)
	}

	// Done.
	if err = checkpoint.Save(config.CheckpointPath, ctx, lastValLoss); err != nil {
		return history, err
	}
	return history, nil
}

// runEpoch runs one training epoch over ds. Errors yielded by ds take precedence over the errors
// they cause while training.
func runEpoch(loop *train.Loop, ds train.Dataset) (trainMetrics []*tensors.Tensor, err error) {
	if panicErr := exceptions.TryCatch[error](func() { trainMetrics, err = loop.RunEpochs(ds, 1) }); panicErr != nil {
		err = panicErr
	}
	if dsErr := datasetErr(ds); dsErr != nil {
		return nil, dsErr
	}
	return
}

// datasetErr returns the error recorded by ds, if it records them (see sampler.PairDataset.Err).
func datasetErr(ds train.Dataset) error {
	if errDS, ok := ds.(interface{ Err() error }); ok {
		return errDS.Err()
	}
	return nil
}

// stopDatasets stops the workers of the parallel datasets.
func stopDatasets(datasets ...train.Dataset) {
	for _, ds := range datasets {
		if doneDS, ok := ds.(interface{ Done() }); ok {
			doneDS.Done()
		}
	}
}

// metricValue returns the value of the metric m, given the list of metrics and their values. Values are
// prefixed by the loss (and for training, the global step), so they are matched from the end.
func metricValue(metricsList []metrics.Interface, values []*tensors.Tensor, m metrics.Interface) float64 {
	for ii, candidate := range metricsList {
		if candidate != m {
			continue
		}
		idx := len(values) - len(metricsList) + ii
		if idx < 0 || idx >= len(values) {
			break
		}
		return scalarValue(values[idx])
	}
	return math.NaN()
}

// scalarValue converts a scalar metric tensor to float64.
func scalarValue(t *tensors.Tensor) float64 {
	switch v := t.Value().(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return math.NaN()
	}
}

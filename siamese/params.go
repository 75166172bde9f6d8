// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package siamese

import (
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/gonb/plotly"
	"github.com/gomlx/omniglot/dataset"
)

// Hyperparameters, set as context parameters. See CreateDefaultContext for their defaults.
const (
	// ParamEpochs is the number of training epochs.
	ParamEpochs = "epochs"

	// ParamBatchSize is the batch size used for training.
	ParamBatchSize = "batch_size"

	// ParamEvalBatchSize is the batch size used for validation.
	ParamEvalBatchSize = "eval_batch_size"

	// ParamTrainSize is the number of pairs drawn per training epoch.
	ParamTrainSize = "train_size"

	// ParamValidationSize is the number of pairs drawn per validation pass.
	ParamValidationSize = "validation_size"

	// ParamNumWay is the number of candidates of the one-shot evaluation episodes.
	ParamNumWay = "num_way"

	// ParamNumEpisodes is the number of episodes of the one-shot evaluation.
	ParamNumEpisodes = "num_episodes"

	// ParamSeed seeds the samplers.
	ParamSeed = "seed"

	// ParamParallelism is the number of workers building batches: 0 uses one per CPU,
	// and a negative value builds batches in the training goroutine.
	ParamParallelism = "parallelism"

	// ParamBufferSize is the number of batches prefetched by the parallel workers.
	ParamBufferSize = "buffer_size"

	// ParamImageSize is the height and width of the model input.
	ParamImageSize = "image_size"

	// ParamChannels is the number of output channels of each convolution stage.
	ParamChannels = "siamese_channels"

	// ParamKernelSizes is the kernel size of each convolution stage.
	ParamKernelSizes = "siamese_kernel_sizes"

	// ParamConvDropoutRate is the dropout rate applied after each pooled convolution stage.
	ParamConvDropoutRate = "siamese_conv_dropout_rate"

	// ParamDropoutRate is the dropout rate applied before the embedding projection.
	ParamDropoutRate = "siamese_dropout_rate"

	// ParamEmbeddingDim is the dimension of the image embeddings.
	ParamEmbeddingDim = "siamese_embedding_dim"
)

var (
	// DefaultChannels of the four convolution stages.
	DefaultChannels = []int{64, 128, 128, 256}

	// DefaultKernelSizes of the four convolution stages.
	DefaultKernelSizes = []int{10, 7, 4, 4}
)

// ExcludedParams are not read back when loading a checkpoint: they configure the run, not the model.
var ExcludedParams = []string{ParamParallelism, ParamBufferSize, plotly.ParamPlots}

// CreateDefaultContext returns a new context with the default hyperparameters.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		ParamEpochs:         50,
		ParamBatchSize:      128,
		ParamEvalBatchSize:  256,
		ParamTrainSize:      8000,
		ParamValidationSize: 2000,
		ParamNumWay:         20,
		ParamNumEpisodes:    1000,
		ParamSeed:           42,
		ParamParallelism:    0,
		ParamBufferSize:     16,

		// Model.
		ParamImageSize:       dataset.ImageSize,
		ParamChannels:        DefaultChannels,
		ParamKernelSizes:     DefaultKernelSizes,
		ParamConvDropoutRate: 0.1,
		ParamDropoutRate:     0.5,
		ParamEmbeddingDim:    4096,

		// "plots" trigger generating intermediary eval data for plotting, and if running in GoNB, to actually
		// draw the plot with Plotly.
		plotly.ParamPlots: false,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 6e-4,
	})
	return ctx
}

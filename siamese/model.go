// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package siamese implements a Siamese convolutional network that scores whether two handwritten
// character images are of the same character, its training loop and the n-way one-shot evaluation.
//
// Both images go through the same encoder, with one shared set of weights, and the similarity head
// maps the absolute difference of the two embeddings to one logit: positive logits mean "same
// character". The model is configured with context parameters, see CreateDefaultContext.
package siamese

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/omniglot/dataset"
)

const (
	// ModelScope is the context scope of all the model variables.
	ModelScope = "model"

	// EncoderScope is the scope, under ModelScope, of the shared encoder variables.
	EncoderScope = "encoder"

	// SimilarityScope is the scope, under ModelScope, of the similarity head variables.
	SimilarityScope = "similarity"
)

var _ train.ModelFn = ModelGraph

// ModelGraph builds the Siamese network, it implements train.ModelFn.
//
// inputs are the two batches of images to compare, each shaped `[batch_size, image_size, image_size, 1]`.
// It returns one output, the similarity logits shaped `[batch_size, 1]`.
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec // Not used.
	if len(inputs) != 2 {
		exceptions.Panicf("siamese model requires 2 inputs (the images to compare), got %d", len(inputs))
	}
	ctx = ctx.In(ModelScope)
	embeddingsA := Encode(ctx, inputs[0])
	embeddingsB := Encode(ctx.Reuse(), inputs[1])
	return []*Node{Similarity(ctx, embeddingsA, embeddingsB)}
}

// Encode maps a batch of images shaped `[batch_size, image_size, image_size, 1]` to embeddings shaped
// `[batch_size, embedding_dim]`, with values in (0, 1).
//
// Each convolution stage is conv (no padding) -> batch normalization -> relu, and all but the last stage
// are followed by a 2x2 max-pooling and dropout. The output of the last stage is flattened, and projected
// to the embeddings after a second dropout.
//
// Call it with ctx.Reuse() to encode more images with the same weights.
func Encode(ctx *context.Context, images *Node) *Node {
	ctx = ctx.In(EncoderScope)
	batchSize := images.Shape().Dimensions[0]
	imageSize := context.GetParamOr(ctx, ParamImageSize, dataset.ImageSize)
	images.AssertDims(batchSize, imageSize, imageSize, 1)
	if images.DType() != dtypes.Float32 {
		exceptions.Panicf("siamese encoder requires %s images, got %s", dtypes.Float32, images.DType())
	}

	channels := context.GetParamOr(ctx, ParamChannels, DefaultChannels)
	kernelSizes := context.GetParamOr(ctx, ParamKernelSizes, DefaultKernelSizes)
	if len(channels) == 0 || len(channels) != len(kernelSizes) {
		exceptions.Panicf("siamese encoder requires one kernel size per convolution stage, got channels=%v and kernel sizes=%v "+
			"(set with %q and %q)", channels, kernelSizes, ParamChannels, ParamKernelSizes)
	}
	convDropoutRate := context.GetParamOr(ctx, ParamConvDropoutRate, 0.0)
	dropoutRate := context.GetParamOr(ctx, ParamDropoutRate, 0.0)
	embeddingDim := context.GetParamOr(ctx, ParamEmbeddingDim, 4096)

	x := images
	size := imageSize
	for stage, numChannels := range channels {
		stageCtx := ctx.Inf("%03d_conv", stage)
		size -= kernelSizes[stage] - 1
		if size <= 0 {
			exceptions.Panicf("siamese encoder: images of size %d are too small for the convolution kernels %v",
				imageSize, kernelSizes)
		}
		x = layers.Convolution(stageCtx, x).Filters(numChannels).KernelSize(kernelSizes[stage]).NoPadding().Done()
		x = batchnorm.New(stageCtx, x, -1).Done()
		x = activations.Relu(x)
		if stage == len(channels)-1 {
			break
		}
		x = MaxPool(x).Window(2).Done()
		size /= 2
		if convDropoutRate > 0 {
			x = layers.DropoutStatic(stageCtx, x, convDropoutRate)
		}
	}
	x.AssertDims(batchSize, size, size, channels[len(channels)-1])

	x = Reshape(x, batchSize, -1)
	if dropoutRate > 0 {
		x = layers.DropoutStatic(ctx, x, dropoutRate)
	}
	x = layers.Dense(ctx.In("projection"), x, true, embeddingDim)
	return Sigmoid(x)
}

// Similarity maps the absolute difference of two batches of embeddings to the similarity logits,
// shaped `[batch_size, 1]`.
func Similarity(ctx *context.Context, embeddingsA, embeddingsB *Node) *Node {
	distance := Abs(Sub(embeddingsA, embeddingsB))
	return layers.Dense(ctx.In(SimilarityScope), distance, true, 1)
}

// Probability converts similarity logits to the probability that both images are of the same character.
func Probability(logits *Node) *Node {
	return Sigmoid(logits)
}

// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package siamese

import (
	"math/rand"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/omniglot/dataset"
	"github.com/gomlx/omniglot/sampler"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Corpus is a set of alphabets and where to read their images from.
type Corpus struct {
	Categories dataset.Categories
	Storage    dataset.Storage
}

// OpenCorpus scans the alphabets under root, laid out as `root/{alphabet}/{character}/{image}`, and
// validates that every character has images.
func OpenCorpus(root string) (Corpus, error) {
	categories, err := dataset.ScanCategories(root)
	if err != nil {
		return Corpus{}, err
	}
	storage := dataset.NewDirStorage(root)
	numImages, err := categories.Validate(storage)
	if err != nil {
		return Corpus{}, errors.WithMessagef(err, "invalid corpus in %q", root)
	}
	klog.Infof("corpus %q: %d alphabets, %s characters, %s images", root, len(categories),
		humanize.Comma(int64(categories.NumCharacters())), humanize.Comma(int64(numImages)))
	return Corpus{Categories: categories, Storage: storage}, nil
}

// Transform returns the image transformation matching the model input configured in ctx.
func Transform(ctx *context.Context) dataset.Transform {
	return dataset.ResizeTransform{Size: context.GetParamOr(ctx, ParamImageSize, dataset.ImageSize)}
}

// NewDatasets creates the training and validation datasets of pairs drawn from the corpus, configured
// by the hyperparameters in ctx. Both are finite: one pass yields train_size (validation_size) pairs.
//
// Batches are built in parallel, unless parallelism is set to a negative value.
func NewDatasets(ctx *context.Context, corpus Corpus) (trainDS, validationDS train.Dataset, err error) {
	seed := int64(context.GetParamOr(ctx, ParamSeed, 0))
	imageSize := context.GetParamOr(ctx, ParamImageSize, dataset.ImageSize)
	parallelism := context.GetParamOr(ctx, ParamParallelism, 0)
	bufferSize := context.GetParamOr(ctx, ParamBufferSize, 16)
	transform := Transform(ctx)

	newPairs := func(name string, sizeParam, batchSizeParam string, seed int64) (train.Dataset, error) {
		size := context.GetParamOr(ctx, sizeParam, 0)
		batchSize := context.GetParamOr(ctx, batchSizeParam, 0)
		pairs, err := sampler.NewPairSampler(corpus.Categories, corpus.Storage, transform, size, rand.New(rand.NewSource(seed)))
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to create %s pairs (set the size with %q)", name, sizeParam)
		}
		ds, err := sampler.NewPairDataset(name, pairs, batchSize, seed, imageSize)
		if err != nil {
			return nil, errors.WithMessagef(err, "set the batch size with %q", batchSizeParam)
		}
		klog.V(1).Infof("dataset %q: %d pairs in %d batches", name, size, ds.NumBatches())
		return sampler.Parallel(ds, parallelism, bufferSize), nil
	}
	if trainDS, err = newPairs("train", ParamTrainSize, ParamBatchSize, seed); err != nil {
		return nil, nil, err
	}
	if validationDS, err = newPairs("validation", ParamValidationSize, ParamEvalBatchSize, seed+1); err != nil {
		return nil, nil, err
	}
	return trainDS, validationDS, nil
}

// NewEpisodes creates the sampler of n-way one-shot episodes drawn from the corpus, configured by the
// hyperparameters in ctx.
func NewEpisodes(ctx *context.Context, corpus Corpus) (*sampler.EpisodeSampler, error) {
	seed := int64(context.GetParamOr(ctx, ParamSeed, 0))
	return sampler.NewEpisodeSampler(corpus.Categories, corpus.Storage, Transform(ctx),
		context.GetParamOr(ctx, ParamNumEpisodes, 0), context.GetParamOr(ctx, ParamNumWay, 0),
		rand.New(rand.NewSource(seed+2)))
}

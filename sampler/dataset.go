// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/omniglot/dataset"
	"github.com/pkg/errors"
)

// PairDataset implements train.Dataset over a PairSampler: each epoch covers the sampler indices
// [0, Len()) in batches, so the parity allocation of same/different class pairs holds for
// the epoch, and it yields io.EOF at the end. Reset starts a new epoch.
//
// Each batch draws from its own random number generator, seeded from the dataset seed, the epoch
// and the batch number. So Yield is safe for concurrent use, and can be parallelized with
// Parallel.
//
// Yield returns:
//
//   - spec: the dataset itself.
//   - inputs: two tensors with the first and second images of the pairs, each shaped
//     `[batch_size, height, width, channels]`.
//   - labels: one tensor with the labels, shaped `[batch_size, 1]`.
type PairDataset struct {
	name      string
	sampler   *PairSampler
	batchSize int
	seed      int64
	shape     [3]int

	// mu protects the fields below.
	mu           sync.Mutex
	epoch, batch int
	err          error
}

var _ train.Dataset = (*PairDataset)(nil)

// NewPairDataset creates a PairDataset drawing from sampler. Images are expected to be
// imageSize x imageSize with one channel, the input of the model.
func NewPairDataset(name string, sampler *PairSampler, batchSize int, seed int64, imageSize int) (*PairDataset, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("invalid batch size %d for dataset %q", batchSize, name)
	}
	return &PairDataset{
		name:      name,
		sampler:   sampler,
		batchSize: batchSize,
		seed:      seed,
		shape:     [3]int{imageSize, imageSize, 1},
	}, nil
}

// Name implements train.Dataset.
func (ds *PairDataset) Name() string { return ds.name }

// NumBatches returns the number of batches yielded per epoch.
func (ds *PairDataset) NumBatches() int {
	return (ds.sampler.Len() + ds.batchSize - 1) / ds.batchSize
}

// Err returns the first error, other than io.EOF, yielded by the dataset.
func (ds *PairDataset) Err() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.err
}

// Reset implements train.Dataset, it starts a new epoch.
func (ds *PairDataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.epoch++
	ds.batch = 0
}

// nextBatch reserves the next batch of the epoch.
func (ds *PairDataset) nextBatch() (epoch, batch int, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.batch >= ds.NumBatches() {
		return 0, 0, io.EOF
	}
	epoch, batch = ds.epoch, ds.batch
	ds.batch++
	return
}

func (ds *PairDataset) setErr(err error) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.err == nil {
		ds.err = err
	}
	return err
}

// YieldSamples draws the samples of the next batch. It returns io.EOF at the end of the epoch.
func (ds *PairDataset) YieldSamples() ([]Sample, error) {
	epoch, batch, err := ds.nextBatch()
	if err != nil {
		return nil, err
	}
	start := batch * ds.batchSize
	end := min(start+ds.batchSize, ds.sampler.Len())
	s := ds.sampler.WithRand(rand.New(rand.NewSource(batchSeed(ds.seed, epoch, batch))))
	samples := make([]Sample, 0, end-start)
	for index := start; index < end; index++ {
		sample, err := s.SampleAt(index)
		if err != nil {
			return nil, ds.setErr(errors.WithMessagef(err, "dataset %q failed to sample index %d", ds.name, index))
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// Yield implements train.Dataset.
func (ds *PairDataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	samples, err := ds.YieldSamples()
	if err != nil {
		return
	}
	imagesA := make([]dataset.Pixels, len(samples))
	imagesB := make([]dataset.Pixels, len(samples))
	labelValues := make([]float32, len(samples))
	for ii, sample := range samples {
		imagesA[ii], imagesB[ii], labelValues[ii] = sample.ImageA, sample.ImageB, sample.Label
	}
	var batchA, batchB *tensors.Tensor
	if batchA, err = PixelsToTensor(imagesA, ds.shape); err != nil {
		err = ds.setErr(err)
		return
	}
	if batchB, err = PixelsToTensor(imagesB, ds.shape); err != nil {
		err = ds.setErr(err)
		return
	}
	spec = ds
	inputs = []*tensors.Tensor{batchA, batchB}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(labelValues, len(samples), 1)}
	return
}

// PixelsToTensor stacks images into one tensor shaped `[len(images), height, width, channels]`.
// It returns a dataset.ShapeMismatchError if any image doesn't have the expected shape.
func PixelsToTensor(images []dataset.Pixels, shape [3]int) (*tensors.Tensor, error) {
	imageLen := shape[0] * shape[1] * shape[2]
	flat := make([]float32, 0, len(images)*imageLen)
	for _, img := range images {
		if img.Shape() != shape || len(img.Values) != imageLen {
			return nil, &dataset.ShapeMismatchError{Want: shape, Got: img.Shape()}
		}
		flat = append(flat, img.Values...)
	}
	return tensors.FromFlatDataAndDimensions(flat, len(images), shape[0], shape[1], shape[2]), nil
}

// batchSeed mixes the dataset seed, epoch and batch number (splitmix64 finalizer), so that
// nearby batches get unrelated random streams.
func batchSeed(seed int64, epoch, batch int) int64 {
	x := uint64(seed) ^ (uint64(epoch) << 32) ^ uint64(batch)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// ParallelPairs builds the batches of a PairDataset with parallel workers, see Parallel.
//
// Errors of the PairDataset are returned by Yield, and by Err, like the underlying dataset does.
type ParallelPairs struct {
	*data.ParallelDataset
	pairs *PairDataset
}

var _ train.Dataset = (*ParallelPairs)(nil)

// Parallel wraps ds so that batches are built by parallel workers into a buffer of
// bufferSize batches. A parallelism of 0 uses one worker per CPU, and a negative parallelism
// disables it, returning ds itself.
func Parallel(ds *PairDataset, parallelism, bufferSize int) train.Dataset {
	if parallelism < 0 {
		return ds
	}
	return &ParallelPairs{
		ParallelDataset: data.CustomParallel(ds).Parallelism(parallelism).Buffer(bufferSize).Start(),
		pairs:           ds,
	}
}

// Pairs returns the underlying PairDataset.
func (pp *ParallelPairs) Pairs() *PairDataset { return pp.pairs }

// Err returns the first error, other than io.EOF, yielded by the underlying PairDataset.
func (pp *ParallelPairs) Err() error { return pp.pairs.Err() }

// Yield implements train.Dataset.
//
// A worker failure stops the parallel dataset, and the error is recorded by the PairDataset before
// that, so it is checked after every batch.
func (pp *ParallelPairs) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec, inputs, labels, err = pp.ParallelDataset.Yield()
	if pairsErr := pp.pairs.Err(); pairsErr != nil {
		return nil, nil, nil, pairsErr
	}
	if err == nil && len(inputs) == 0 {
		err = errors.Errorf("dataset %q stopped without an error", pp.Name())
	}
	return
}

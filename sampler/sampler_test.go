// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand"
	"testing"

	"github.com/gomlx/omniglot/dataset"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImageSize = 8

// buildUniverse creates an in-memory corpus with numCategories alphabets, each with numCharacters
// characters of numInstances images. Instance ids are unique across the corpus.
func buildUniverse(numCategories, numCharacters, numInstances int) (dataset.Categories, *dataset.MemStorage) {
	storage := dataset.NewMemStorage()
	cats := make(dataset.Categories, numCategories)
	for catIdx := range numCategories {
		cats[catIdx].Name = fmt.Sprintf("alphabet%02d", catIdx)
		for charIdx := range numCharacters {
			character := fmt.Sprintf("character%02d", charIdx)
			cats[catIdx].Characters = append(cats[catIdx].Characters, character)
			for instIdx := range numInstances {
				img := image.NewGray(image.Rect(0, 0, testImageSize, testImageSize))
				img.SetGray(catIdx%testImageSize, charIdx%testImageSize, color.Gray{Y: uint8(10 * instIdx)})
				storage.Add(cats[catIdx].Name, character, fmt.Sprintf("%02d%02d_%02d.png", catIdx, charIdx, instIdx), img)
			}
		}
	}
	return cats, storage
}

var testTransform = dataset.ResizeTransform{Size: testImageSize}

func TestPairSamplerParity(t *testing.T) {
	cats, storage := buildUniverse(4, 3, 5)
	s := must.M1(NewPairSampler(cats, storage, testTransform, 1000, rand.New(rand.NewSource(42))))
	require.Equal(t, 1000, s.Len())

	var numCoincidental int
	for index := range s.Len() {
		sample, err := s.SampleAt(index)
		require.NoError(t, err)
		assert.Equal(t, [3]int{testImageSize, testImageSize, 1}, sample.ImageA.Shape())
		assert.Equal(t, [3]int{testImageSize, testImageSize, 1}, sample.ImageB.Shape())
		if index%2 == 0 {
			require.Equal(t, float32(1), sample.Label, "index %d", index)
			require.True(t, sample.A.SameClass(sample.B), "same-class pair %d has %s and %s", index, sample.A, sample.B)
		} else {
			require.Equal(t, float32(0), sample.Label, "index %d", index)
			require.NotEqual(t, sample.A.ID, sample.B.ID, "index %d", index)
			if sample.A.SameClass(sample.B) {
				numCoincidental++
			}
		}
	}
	// Both characters of different-class pairs are drawn independently: with 12 equally likely
	// characters they coincide 1/12 of the time.
	assert.Less(t, numCoincidental, 500/5, "too many different-class pairs of the same character")
	assert.Greater(t, numCoincidental, 0, "characters of different-class pairs should be drawn independently")

	_, err := s.SampleAt(1000)
	require.Error(t, err)
	_, err = s.SampleAt(-1)
	require.Error(t, err)
}

func TestPairSamplerTwoCategories(t *testing.T) {
	cats, storage := buildUniverse(2, 1, 5)
	s := must.M1(NewPairSampler(cats, storage, testTransform, 10, rand.New(rand.NewSource(1))))
	var labels []float32
	for index := range s.Len() {
		sample := must.M1(s.SampleAt(index))
		labels = append(labels, sample.Label)
	}
	assert.Equal(t, []float32{1, 0, 1, 0, 1, 0, 1, 0, 1, 0}, labels)
}

func TestPairSamplerDeterministic(t *testing.T) {
	cats, storage := buildUniverse(3, 3, 4)
	draw := func(seed int64) []Sample {
		s := must.M1(NewPairSampler(cats, storage, testTransform, 20, rand.New(rand.NewSource(seed))))
		samples := make([]Sample, s.Len())
		for ii := range samples {
			samples[ii] = must.M1(s.SampleAt(ii))
		}
		return samples
	}
	assert.Equal(t, draw(7), draw(7))
	assert.NotEqual(t, draw(7), draw(8))
}

// brokenStorage lists instances that can't be loaded.
type brokenStorage struct {
	*dataset.MemStorage
}

func (s brokenStorage) LoadImage(category, character, instance string) (image.Image, error) {
	return nil, &dataset.ImageNotFoundError{Category: category, Character: character, Instance: instance}
}

func TestSamplerErrors(t *testing.T) {
	cats, storage := buildUniverse(1, 1, 3)
	rng := rand.New(rand.NewSource(3))

	_, err := NewPairSampler(nil, storage, testTransform, 10, rng)
	require.Error(t, err)
	_, err = NewPairSampler(cats, storage, testTransform, 0, rng)
	require.Error(t, err)
	_, err = NewEpisodeSampler(cats, storage, testTransform, 10, 0, rng)
	require.Error(t, err)

	// Image that can't be loaded.
	s := must.M1(NewPairSampler(cats, brokenStorage{storage}, testTransform, 10, rng))
	_, err = s.SampleAt(0)
	var notFound *dataset.ImageNotFoundError
	require.True(t, errors.As(err, &notFound), "expected ImageNotFoundError, got %v", err)

	// Character without instances.
	emptyCats := dataset.Categories{{Name: "alphabet00", Characters: []string{"nothing"}}}
	s = must.M1(NewPairSampler(emptyCats, storage, testTransform, 10, rng))
	_, err = s.SampleAt(1)
	var empty *dataset.EmptyCharacterError
	require.True(t, errors.As(err, &empty), "expected EmptyCharacterError, got %v", err)
	assert.Equal(t, "nothing", empty.Character)

	e := must.M1(NewEpisodeSampler(emptyCats, storage, testTransform, 10, 1, rng))
	_, err = e.SampleAt(0)
	require.True(t, errors.As(err, &empty), "expected EmptyCharacterError, got %v", err)

	// A single character can't provide distractors.
	e = must.M1(NewEpisodeSampler(cats, storage, testTransform, 10, 5, rng))
	_, err = e.SampleAt(0)
	require.ErrorIs(t, err, ErrDegenerateUniverse)
}

func TestEpisodeSampler(t *testing.T) {
	const numWay = 5
	const numEpisodes = 2000
	cats, storage := buildUniverse(3, 4, 3)
	s := must.M1(NewEpisodeSampler(cats, storage, testTransform, numEpisodes, numWay, rand.New(rand.NewSource(11))))
	require.Equal(t, numWay, s.NumWay())

	counts := make([]int, numWay)
	for index := range s.Len() {
		ep, err := s.SampleAt(index)
		require.NoError(t, err)
		require.Len(t, ep.Candidates, numWay)
		require.Len(t, ep.CandidateImages, numWay)
		require.GreaterOrEqual(t, ep.MatchIndex, 0)
		require.Less(t, ep.MatchIndex, numWay)
		assert.Equal(t, [3]int{testImageSize, testImageSize, 1}, ep.QueryImage.Shape())
		numMatches := 0
		for ii, candidate := range ep.Candidates {
			if candidate.SameClass(ep.Query) {
				numMatches++
				require.Equal(t, ep.MatchIndex, ii, "episode %d: candidate %s matches query %s", index, candidate, ep.Query)
			}
		}
		require.Equal(t, 1, numMatches, "episode %d", index)
		counts[ep.MatchIndex]++
	}

	// Pearson's chi-square test for the uniformity of MatchIndex: with 4 degrees of freedom,
	// the critical value for p=0.001 is 18.47.
	expected := float64(numEpisodes) / numWay
	var chiSquare float64
	for _, count := range counts {
		diff := float64(count) - expected
		chiSquare += diff * diff / expected
	}
	assert.Less(t, chiSquare, 18.47, "MatchIndex counts %v don't look uniform", counts)
}

func TestPairDataset(t *testing.T) {
	cats, storage := buildUniverse(3, 2, 4)
	s := must.M1(NewPairSampler(cats, storage, testTransform, 10, rand.New(rand.NewSource(0))))
	ds := must.M1(NewPairDataset("train", s, 4, 17, testImageSize))
	assert.Equal(t, "train", ds.Name())
	require.Equal(t, 3, ds.NumBatches())

	var labels []float32
	for ii := range 3 {
		spec, inputs, batchLabels, err := ds.Yield()
		require.NoError(t, err, "batch %d", ii)
		require.Equal(t, ds, spec)
		require.Len(t, inputs, 2)
		require.Len(t, batchLabels, 1)
		batchSize := min(4, 10-4*ii)
		inputs[0].Shape().AssertDims(batchSize, testImageSize, testImageSize, 1)
		inputs[1].Shape().AssertDims(batchSize, testImageSize, testImageSize, 1)
		batchLabels[0].Shape().AssertDims(batchSize, 1)
		for _, row := range batchLabels[0].Value().([][]float32) {
			labels = append(labels, row[0])
		}
	}
	assert.Equal(t, []float32{1, 0, 1, 0, 1, 0, 1, 0, 1, 0}, labels)
	_, _, _, err := ds.Yield()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, ds.Err())

	// After Reset, a new epoch with new pairs.
	ds.Reset()
	samples, err := ds.YieldSamples()
	require.NoError(t, err)
	require.Len(t, samples, 4)
}

func TestPairDatasetSeed(t *testing.T) {
	cats, storage := buildUniverse(3, 3, 4)
	epochs := func(seed int64) [][]Sample {
		s := must.M1(NewPairSampler(cats, storage, testTransform, 12, rand.New(rand.NewSource(0))))
		ds := must.M1(NewPairDataset("train", s, 5, seed, testImageSize))
		var all [][]Sample
		for range 2 {
			for {
				samples, err := ds.YieldSamples()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				all = append(all, samples)
			}
			ds.Reset()
		}
		return all
	}
	first := epochs(5)
	require.Len(t, first, 6)
	assert.Equal(t, first, epochs(5))
	assert.NotEqual(t, first[:3], first[3:], "epochs should draw different pairs")
}

func TestPairDatasetShapeMismatch(t *testing.T) {
	cats, storage := buildUniverse(2, 2, 3)
	s := must.M1(NewPairSampler(cats, storage, dataset.ResizeTransform{Size: 6}, 4, rand.New(rand.NewSource(0))))
	ds := must.M1(NewPairDataset("train", s, 4, 0, testImageSize))
	_, _, _, err := ds.Yield()
	var mismatch *dataset.ShapeMismatchError
	require.True(t, errors.As(err, &mismatch), "expected ShapeMismatchError, got %v", err)
	assert.Equal(t, [3]int{testImageSize, testImageSize, 1}, mismatch.Want)
	assert.Equal(t, [3]int{6, 6, 1}, mismatch.Got)
	assert.Equal(t, err, ds.Err())
}

func TestParallel(t *testing.T) {
	cats, storage := buildUniverse(3, 2, 4)
	s := must.M1(NewPairSampler(cats, storage, testTransform, 50, rand.New(rand.NewSource(0))))
	base := must.M1(NewPairDataset("train", s, 4, 3, testImageSize))
	require.Equal(t, base, Parallel(base, -1, 0), "negative parallelism should disable it")

	ds := Parallel(base, 3, 2)
	for range 2 {
		var numSamples, numSame int
		for {
			_, _, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			for _, row := range labels[0].Value().([][]float32) {
				numSamples++
				if row[0] == 1 {
					numSame++
				}
			}
		}
		assert.Equal(t, 50, numSamples)
		assert.Equal(t, 25, numSame)
		ds.Reset()
	}
}

func TestParallelErrors(t *testing.T) {
	cats, storage := buildUniverse(2, 2, 3)
	for _, parallelism := range []int{1, 8} {
		s := must.M1(NewPairSampler(cats, brokenStorage{storage}, testTransform, 16, rand.New(rand.NewSource(0))))
		base := must.M1(NewPairDataset("train", s, 4, 0, testImageSize))
		ds := Parallel(base, parallelism, 2)
		parallelPairs, ok := ds.(*ParallelPairs)
		require.True(t, ok)
		require.Equal(t, base, parallelPairs.Pairs())

		_, inputs, labels, err := ds.Yield()
		var notFound *dataset.ImageNotFoundError
		require.True(t, errors.As(err, &notFound), "parallelism=%d: expected ImageNotFoundError, got %v", parallelism, err)
		assert.Empty(t, inputs)
		assert.Empty(t, labels)
		assert.Equal(t, base.Err(), parallelPairs.Err())
	}
}

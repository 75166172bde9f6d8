// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package sampler draws the examples used to train and evaluate the Siamese network from an
// Omniglot corpus:
//
//   - PairSampler: pairs of images labeled 1 if they are of the same character, 0 otherwise.
//     Even indices yield same-class pairs, odd indices yield different-class pairs.
//   - EpisodeSampler: n-way one-shot episodes, a query image and N candidates, exactly one of
//     which is of the query's character.
//
// Samplers draw from an explicit *rand.Rand, and are not safe for concurrent use: use WithRand to
// create copies for each goroutine. PairDataset adapts a PairSampler to a train.Dataset that
// can be safely parallelized.
package sampler

import (
	"math/rand"

	"github.com/gomlx/omniglot/dataset"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Sampler is a fixed size collection of randomly drawn examples: each call to SampleAt draws
// a fresh example, and the index only selects the kind of example drawn.
type Sampler[T any] interface {
	// Len is the number of examples in one pass over the sampler.
	Len() int

	// SampleAt draws the example for the given index in [0, Len()).
	SampleAt(index int) (T, error)
}

var (
	_ Sampler[Sample]  = (*PairSampler)(nil)
	_ Sampler[Episode] = (*EpisodeSampler)(nil)
)

// Sample is a pair of transformed images and its label: 1 if both are of the same
// (category, character), 0 otherwise.
type Sample struct {
	A, B           dataset.Instance
	ImageA, ImageB dataset.Pixels
	Label          float32
}

// Episode is an n-way one-shot evaluation example: Candidates[MatchIndex] is of the same
// (category, character) as the Query.
type Episode struct {
	Query      dataset.Instance
	QueryImage dataset.Pixels

	Candidates      []dataset.Instance
	CandidateImages []dataset.Pixels

	MatchIndex int
}

// corpus holds what is common to all samplers: the sampling universe, how to load
// images and the random number generator.
type corpus struct {
	categories dataset.Categories
	storage    dataset.Storage
	transform  dataset.Transform
	rng        *rand.Rand
}

func newCorpus(categories dataset.Categories, storage dataset.Storage, transform dataset.Transform, rng *rand.Rand) (corpus, error) {
	if len(categories) == 0 {
		return corpus{}, errors.New("sampler requires at least one category")
	}
	if storage == nil || transform == nil {
		return corpus{}, errors.New("sampler requires a storage and a transform")
	}
	if rng == nil {
		return corpus{}, errors.New("sampler requires a random number generator")
	}
	return corpus{categories: categories, storage: storage, transform: transform, rng: rng}, nil
}

// uniform returns an integer uniformly drawn from [0, n).
func uniform[I constraints.Integer](rng *rand.Rand, n I) I {
	return I(rng.Int63n(int64(n)))
}

// pickCharacter draws a category uniformly, and then a character uniformly within it.
func (c *corpus) pickCharacter() (category, character string, err error) {
	cat := c.categories[uniform(c.rng, len(c.categories))]
	if len(cat.Characters) == 0 {
		return "", "", errors.Errorf("category %q has no characters", cat.Name)
	}
	return cat.Name, cat.Characters[uniform(c.rng, len(cat.Characters))], nil
}

// pickInstance draws uniformly, with replacement, one instance of the character.
func (c *corpus) pickInstance(category, character string) (dataset.Instance, error) {
	instances, err := c.storage.ListInstances(category, character)
	if err != nil {
		return dataset.Instance{}, err
	}
	if len(instances) == 0 {
		return dataset.Instance{}, &dataset.EmptyCharacterError{Category: category, Character: character}
	}
	return dataset.Instance{
		Category:  category,
		Character: character,
		ID:        instances[uniform(c.rng, len(instances))],
	}, nil
}

// load reads and transforms the image of the instance.
func (c *corpus) load(inst dataset.Instance) (dataset.Pixels, error) {
	img, err := c.storage.LoadImage(inst.Category, inst.Character, inst.ID)
	if err != nil {
		return dataset.Pixels{}, err
	}
	pixels, err := c.transform.Apply(img)
	if err != nil {
		return dataset.Pixels{}, errors.WithMessagef(err, "failed to transform image %s", inst)
	}
	return pixels, nil
}

func checkIndex(index, size int) error {
	if index < 0 || index >= size {
		return errors.Errorf("sample index %d out of range [0, %d)", index, size)
	}
	return nil
}

// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"math/rand"

	"github.com/gomlx/omniglot/dataset"
	"github.com/pkg/errors"
)

// PairSampler draws image pairs for training the Siamese network.
//
// The parity of the index selects the kind of pair: even indices draw two instances of the same
// character (label 1), odd indices draw instances of two independently drawn characters (label 0).
// Over a full pass of Len() indices that yields balanced labels.
type PairSampler struct {
	corpus
	size int
}

// NewPairSampler creates a PairSampler with size samples per pass, drawing from the given
// categories with rng.
func NewPairSampler(categories dataset.Categories, storage dataset.Storage, transform dataset.Transform,
	size int, rng *rand.Rand) (*PairSampler, error) {
	c, err := newCorpus(categories, storage, transform, rng)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.Errorf("invalid PairSampler size %d", size)
	}
	return &PairSampler{corpus: c, size: size}, nil
}

// WithRand returns a copy of the sampler that draws from rng.
func (s *PairSampler) WithRand(rng *rand.Rand) *PairSampler {
	c := *s
	c.rng = rng
	return &c
}

// Len implements Sampler.
func (s *PairSampler) Len() int { return s.size }

// SampleAt implements Sampler.
func (s *PairSampler) SampleAt(index int) (sample Sample, err error) {
	if err = checkIndex(index, s.size); err != nil {
		return
	}
	if index%2 == 0 {
		sample, err = s.sameClass()
	} else {
		sample, err = s.differentClass()
	}
	if err != nil {
		return
	}
	if sample.ImageA, err = s.load(sample.A); err != nil {
		return
	}
	sample.ImageB, err = s.load(sample.B)
	return
}

// sameClass draws two instances, with replacement, of one character: both may be the very same
// instance.
func (s *PairSampler) sameClass() (sample Sample, err error) {
	category, character, err := s.pickCharacter()
	if err != nil {
		return
	}
	if sample.A, err = s.pickInstance(category, character); err != nil {
		return
	}
	if sample.B, err = s.pickInstance(category, character); err != nil {
		return
	}
	sample.Label = 1
	return
}

// differentClass draws two characters independently, which may coincide, and one instance of each.
//
// The second instance is redrawn while its identifier equals the first one's. Only the identifiers
// are compared: this doesn't guarantee the characters differ, and it never terminates if the
// second character has a single instance with the same identifier as the first.
func (s *PairSampler) differentClass() (sample Sample, err error) {
	category1, character1, err := s.pickCharacter()
	if err != nil {
		return
	}
	category2, character2, err := s.pickCharacter()
	if err != nil {
		return
	}
	if sample.A, err = s.pickInstance(category1, character1); err != nil {
		return
	}
	for {
		if sample.B, err = s.pickInstance(category2, character2); err != nil {
			return
		}
		if sample.B.ID != sample.A.ID {
			break
		}
	}
	sample.Label = 0
	return
}

// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"math/rand"

	"github.com/gomlx/omniglot/dataset"
	"github.com/pkg/errors"
)

// ErrDegenerateUniverse is returned by EpisodeSampler when the categories have a single character,
// so no distractor can be drawn.
var ErrDegenerateUniverse = errors.New("n-way episodes require at least 2 distinct characters")

// EpisodeSampler draws n-way one-shot episodes: a query image and NumWay candidates, one of
// them (at a uniformly drawn position) of the query's character and the others of different
// characters.
type EpisodeSampler struct {
	corpus
	size, numWay int
}

// NewEpisodeSampler creates an EpisodeSampler with size episodes of numWay candidates each.
func NewEpisodeSampler(categories dataset.Categories, storage dataset.Storage, transform dataset.Transform,
	size, numWay int, rng *rand.Rand) (*EpisodeSampler, error) {
	c, err := newCorpus(categories, storage, transform, rng)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, errors.Errorf("invalid EpisodeSampler size %d", size)
	}
	if numWay <= 0 {
		return nil, errors.Errorf("invalid number of ways %d for EpisodeSampler", numWay)
	}
	return &EpisodeSampler{corpus: c, size: size, numWay: numWay}, nil
}

// WithRand returns a copy of the sampler that draws from rng.
func (s *EpisodeSampler) WithRand(rng *rand.Rand) *EpisodeSampler {
	c := *s
	c.rng = rng
	return &c
}

// Len implements Sampler.
func (s *EpisodeSampler) Len() int { return s.size }

// NumWay is the number of candidates of each episode.
func (s *EpisodeSampler) NumWay() int { return s.numWay }

// SampleAt implements Sampler. The index doesn't change how the episode is drawn.
//
// The matching candidate is drawn from the query's character with replacement, so it may be the
// query instance itself.
func (s *EpisodeSampler) SampleAt(index int) (ep Episode, err error) {
	if err = checkIndex(index, s.size); err != nil {
		return
	}
	if s.numWay > 1 && s.categories.NumCharacters() < 2 {
		err = ErrDegenerateUniverse
		return
	}
	category, character, err := s.pickCharacter()
	if err != nil {
		return
	}
	if ep.Query, err = s.pickInstance(category, character); err != nil {
		return
	}
	if ep.QueryImage, err = s.load(ep.Query); err != nil {
		return
	}

	ep.MatchIndex = uniform(s.rng, s.numWay)
	ep.Candidates = make([]dataset.Instance, s.numWay)
	ep.CandidateImages = make([]dataset.Pixels, s.numWay)
	for ii := range s.numWay {
		var candidate dataset.Instance
		if ii == ep.MatchIndex {
			candidate, err = s.pickInstance(category, character)
		} else {
			candidate, err = s.pickDistractor(category, character)
		}
		if err != nil {
			return
		}
		ep.Candidates[ii] = candidate
		if ep.CandidateImages[ii], err = s.load(candidate); err != nil {
			return
		}
	}
	return
}

// pickDistractor draws an instance of a character other than the given one: the character
// is redrawn until it differs.
func (s *EpisodeSampler) pickDistractor(category, character string) (dataset.Instance, error) {
	for {
		otherCategory, otherCharacter, err := s.pickCharacter()
		if err != nil {
			return dataset.Instance{}, err
		}
		if otherCategory == category && otherCharacter == character {
			continue
		}
		return s.pickInstance(otherCategory, otherCharacter)
	}
}

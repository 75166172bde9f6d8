// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset describes the Omniglot image corpus: the alphabets (categories) and their
// characters, how the images are stored and how they are transformed into model inputs.
//
// The corpus is organized as `root/{alphabet}/{character}/{instance}.png`. A Categories descriptor
// defines the sampling universe, a Storage resolves instances into images, and a Transform turns
// an image into the normalized pixels fed to the model.
package dataset

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// BackgroundSet is the name of the Omniglot subset used for training (30 alphabets).
	BackgroundSet = "images_background"

	// EvaluationSet is the name of the Omniglot subset used for one-shot evaluation (20 alphabets).
	EvaluationSet = "images_evaluation"

	// ImageSize is the resolution of the original Omniglot images.
	ImageSize = 105
)

// Category is an alphabet with the ordered list of characters it contains.
type Category struct {
	Name       string
	Characters []string
}

// Categories is the ordered list of alphabets that defines the sampling universe.
type Categories []Category

// Instance identifies one image of the corpus.
type Instance struct {
	Category, Character, ID string
}

// SameClass returns whether both instances are of the same (category, character).
func (inst Instance) SameClass(other Instance) bool {
	return inst.Category == other.Category && inst.Character == other.Character
}

// String implements fmt.Stringer.
func (inst Instance) String() string {
	return inst.Category + "/" + inst.Character + "/" + inst.ID
}

// NumCharacters returns the total number of (category, character) pairs.
func (cats Categories) NumCharacters() int {
	var n int
	for _, cat := range cats {
		n += len(cat.Characters)
	}
	return n
}

// ScanCategories builds the Categories descriptor from the directory structure under root:
// each subdirectory is an alphabet, and each of its subdirectories a character.
// Alphabets and characters are sorted by name, so the result is deterministic.
func ScanCategories(root string) (Categories, error) {
	alphabets, err := subDirs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan alphabets in %q", root)
	}
	if len(alphabets) == 0 {
		return nil, errors.Errorf("no alphabets found in %q", root)
	}
	cats := make(Categories, 0, len(alphabets))
	for _, alphabet := range alphabets {
		characters, err := subDirs(filepath.Join(root, alphabet))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan characters of alphabet %q", alphabet)
		}
		if len(characters) == 0 {
			klog.Warningf("alphabet %q in %q has no characters, skipping", alphabet, root)
			continue
		}
		cats = append(cats, Category{Name: alphabet, Characters: characters})
	}
	klog.V(1).Infof("scanned %q: %d alphabets, %s characters", root, len(cats), humanize.Comma(int64(cats.NumCharacters())))
	return cats, nil
}

func subDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Validate checks that every character in the descriptor has at least one instance in storage.
// It returns the total number of instances, or an EmptyCharacterError for the first character without any.
//
// Samplers assume a validated universe: they fail on the first empty character they happen to draw.
func (cats Categories) Validate(storage Storage) (numInstances int, err error) {
	if len(cats) == 0 {
		return 0, errors.New("no categories given")
	}
	for _, cat := range cats {
		if len(cat.Characters) == 0 {
			return 0, errors.Errorf("category %q has no characters", cat.Name)
		}
		for _, character := range cat.Characters {
			instances, err := storage.ListInstances(cat.Name, character)
			if err != nil {
				return 0, err
			}
			if len(instances) == 0 {
				return 0, &EmptyCharacterError{Category: cat.Name, Character: character}
			}
			numInstances += len(instances)
		}
	}
	return numInstances, nil
}

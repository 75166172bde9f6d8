// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Storage resolves the instances of the corpus. Implementations must be safe for concurrent use,
// since batches are built by parallel workers.
type Storage interface {
	// ListInstances returns the sorted identifiers of the images available for the character.
	ListInstances(category, character string) ([]string, error)

	// LoadImage decodes one instance.
	LoadImage(category, character, instance string) (image.Image, error)
}

var (
	_ Storage = (*DirStorage)(nil)
	_ Storage = (*MemStorage)(nil)
)

// DirStorage implements Storage over the directory tree `root/{category}/{character}/{instance}`.
//
// Listings are read once per character and cached.
type DirStorage struct {
	root string

	mu       sync.Mutex
	listings map[[2]string][]string
}

// NewDirStorage creates a DirStorage rooted at the given directory.
func NewDirStorage(root string) *DirStorage {
	return &DirStorage{
		root:     root,
		listings: make(map[[2]string][]string),
	}
}

// Root directory of the storage.
func (s *DirStorage) Root() string { return s.root }

// ListInstances implements Storage.
func (s *DirStorage) ListInstances(category, character string) ([]string, error) {
	key := [2]string{category, character}
	s.mu.Lock()
	defer s.mu.Unlock()
	if instances, found := s.listings[key]; found {
		return instances, nil
	}
	entries, err := os.ReadDir(filepath.Join(s.root, category, character))
	if err != nil {
		return nil, &ImageNotFoundError{Category: category, Character: character, Err: err}
	}
	instances := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			instances = append(instances, entry.Name())
		}
	}
	sort.Strings(instances)
	s.listings[key] = instances
	return instances, nil
}

// LoadImage implements Storage.
func (s *DirStorage) LoadImage(category, character, instance string) (image.Image, error) {
	imgPath := filepath.Join(s.root, category, character, instance)
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, &ImageNotFoundError{Category: category, Character: character, Instance: instance, Err: err}
	}
	defer func() { _ = f.Close() }()
	img, err := imaging.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %q", imgPath)
	}
	return img, nil
}

// MemStorage implements Storage in memory. It's used for tests and synthetic corpora.
type MemStorage struct {
	mu     sync.RWMutex
	images map[[2]string]map[string]image.Image
}

// NewMemStorage creates an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{images: make(map[[2]string]map[string]image.Image)}
}

// Add an instance image. It overwrites a previous image with the same identifier.
func (s *MemStorage) Add(category, character, instance string, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{category, character}
	if s.images[key] == nil {
		s.images[key] = make(map[string]image.Image)
	}
	s.images[key][instance] = img
}

// ListInstances implements Storage. Characters never added have no instances.
func (s *MemStorage) ListInstances(category, character string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := s.images[[2]string{category, character}]
	instances := make([]string, 0, len(pool))
	for id := range pool {
		instances = append(instances, id)
	}
	sort.Strings(instances)
	return instances, nil
}

// LoadImage implements Storage.
func (s *MemStorage) LoadImage(category, character, instance string) (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, found := s.images[[2]string{category, character}][instance]
	if !found {
		return nil, &ImageNotFoundError{Category: category, Character: character, Instance: instance}
	}
	return img, nil
}

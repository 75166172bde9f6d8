// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// strokeImage creates a white image with a black vertical stroke at column x.
func strokeImage(size, x int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for yy := 0; yy < size; yy++ {
		for xx := 0; xx < size; xx++ {
			img.SetGray(xx, yy, color.Gray{Y: 255})
		}
		img.SetGray(x, yy, color.Gray{Y: 0})
	}
	return img
}

func writePNG(t *testing.T, filePath string, img image.Image) {
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0777))
	f := must.M1(os.Create(filePath))
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// createCorpus writes a small corpus: 2 alphabets with 2 characters each, 3 instances per character.
func createCorpus(t *testing.T) string {
	root := t.TempDir()
	for _, alphabet := range []string{"Greek", "Latin"} {
		for _, character := range []string{"character01", "character02"} {
			for ii, instance := range []string{"0001_01.png", "0001_02.png", "0001_03.png"} {
				writePNG(t, filepath.Join(root, alphabet, character, instance), strokeImage(20, ii))
			}
		}
	}
	// Stray files at the alphabet level are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("not an alphabet"), 0666))
	return root
}

func TestScanCategories(t *testing.T) {
	root := createCorpus(t)
	cats, err := ScanCategories(root)
	require.NoError(t, err)
	require.Equal(t, Categories{
		{Name: "Greek", Characters: []string{"character01", "character02"}},
		{Name: "Latin", Characters: []string{"character01", "character02"}},
	}, cats)
	assert.Equal(t, 4, cats.NumCharacters())

	_, err = ScanCategories(filepath.Join(root, "missing"))
	require.Error(t, err)
	_, err = ScanCategories(t.TempDir())
	require.Error(t, err)
}

func TestDirStorage(t *testing.T) {
	root := createCorpus(t)
	storage := NewDirStorage(root)
	instances, err := storage.ListInstances("Greek", "character02")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_01.png", "0001_02.png", "0001_03.png"}, instances)

	img, err := storage.LoadImage("Greek", "character02", "0001_02.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), img.Bounds())

	_, err = storage.LoadImage("Greek", "character02", "9999_99.png")
	var notFound *ImageNotFoundError
	require.True(t, errors.As(err, &notFound), "expected ImageNotFoundError, got %v", err)
	assert.Equal(t, "9999_99.png", notFound.Instance)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = storage.ListInstances("Klingon", "character01")
	require.True(t, errors.As(err, &notFound), "expected ImageNotFoundError, got %v", err)

	// A file that exists but isn't an image.
	corrupt := filepath.Join(root, "Greek", "character02", "0001_04.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0640))
	_, err = storage.LoadImage("Greek", "character02", "0001_04.png")
	require.ErrorContains(t, err, "failed to decode")
	assert.False(t, errors.As(err, &notFound), "a corrupt image is not a missing image")
}

func TestValidate(t *testing.T) {
	root := createCorpus(t)
	storage := NewDirStorage(root)
	cats := must.M1(ScanCategories(root))
	numInstances, err := cats.Validate(storage)
	require.NoError(t, err)
	assert.Equal(t, 12, numInstances)

	// An empty character directory.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Latin", "character03"), 0777))
	cats = must.M1(ScanCategories(root))
	_, err = cats.Validate(NewDirStorage(root))
	var empty *EmptyCharacterError
	require.True(t, errors.As(err, &empty), "expected EmptyCharacterError, got %v", err)
	assert.Equal(t, "Latin", empty.Category)
	assert.Equal(t, "character03", empty.Character)

	_, err = Categories{}.Validate(storage)
	require.Error(t, err)
}

func TestMemStorage(t *testing.T) {
	storage := NewMemStorage()
	storage.Add("Greek", "alpha", "b.png", strokeImage(8, 1))
	storage.Add("Greek", "alpha", "a.png", strokeImage(8, 2))
	assert.Equal(t, []string{"a.png", "b.png"}, must.M1(storage.ListInstances("Greek", "alpha")))
	assert.Empty(t, must.M1(storage.ListInstances("Greek", "beta")))

	_, err := storage.LoadImage("Greek", "beta", "a.png")
	var notFound *ImageNotFoundError
	require.True(t, errors.As(err, &notFound))

	_, err = Categories{{Name: "Greek", Characters: []string{"alpha", "beta"}}}.Validate(storage)
	var empty *EmptyCharacterError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, "beta", empty.Character)
}

func TestResizeTransform(t *testing.T) {
	img := strokeImage(20, 3)

	// Same size: values are exact.
	pixels, err := ResizeTransform{Size: 20}.Apply(img)
	require.NoError(t, err)
	assert.Equal(t, [3]int{20, 20, 1}, pixels.Shape())
	require.Len(t, pixels.Values, 400)
	assert.Equal(t, float32(0), pixels.Values[5*20+3])
	assert.Equal(t, float32(1), pixels.Values[5*20+4])

	// Resized: values stay in [0, 1].
	pixels, err = ResizeTransform{Size: 35}.Apply(img)
	require.NoError(t, err)
	assert.Equal(t, [3]int{35, 35, 1}, pixels.Shape())
	for _, v := range pixels.Values {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}

	// Deterministic.
	again := must.M1(ResizeTransform{Size: 35}.Apply(img))
	assert.Equal(t, pixels, again)

	_, err = ResizeTransform{}.Apply(img)
	require.Error(t, err)
}

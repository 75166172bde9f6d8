// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import "fmt"

// ImageNotFoundError is returned when an instance can't be resolved by the Storage.
type ImageNotFoundError struct {
	Category, Character, Instance string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *ImageNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("image %s/%s/%s not found", e.Category, e.Character, e.Instance)
	}
	return fmt.Sprintf("image %s/%s/%s not found: %v", e.Category, e.Character, e.Instance, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ImageNotFoundError) Unwrap() error { return e.Err }

// EmptyCharacterError is returned when a sampled (category, character) has no instances.
type EmptyCharacterError struct {
	Category, Character string
}

// Error implements error.
func (e *EmptyCharacterError) Error() string {
	return fmt.Sprintf("character %s/%s has no instances", e.Category, e.Character)
}

// ShapeMismatchError is returned when the transform output doesn't match the resolution and
// number of channels expected by the model. Shapes are given as [height, width, channels].
type ShapeMismatchError struct {
	Want, Got [3]int
}

// Error implements error.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("transformed image has shape %v, but the model expects %v (height, width, channels)", e.Got, e.Want)
}

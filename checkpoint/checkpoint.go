// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoint saves and loads the trained model: its variables (including the optimizer state),
// its hyperparameters and the validation loss it reached.
//
// A checkpoint is a directory in the GoMLX checkpoints format. Save replaces it atomically: readers see
// either the previous checkpoint or the new one, never a partially written one.
package checkpoint

import (
	"fmt"
	"math"
	"os"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ParamValidationLoss is the context parameter holding the validation loss of the saved model.
	ParamValidationLoss = "val_loss"

	// ParamVersion is the context parameter holding the version of the checkpoint layout.
	ParamVersion = "checkpoint_version"

	// Version of the checkpoints written by Save.
	Version = 1
)

// Save writes the variables and parameters of ctx, along with valLoss, to the checkpoint directory
// path, replacing any previous checkpoint there. All parameters are saved, see Load to skip some
// of them when reading.
//
// It is a no-op if path is empty.
//
// The checkpoint is first written to a temporary sibling directory, which is then renamed to path.
func Save(path string, ctx *context.Context, valLoss float64) error {
	if path == "" {
		return nil
	}
	path = data.ReplaceTildeInDir(path)
	ctx.SetParam(ParamValidationLoss, valLoss)
	ctx.SetParam(ParamVersion, Version)

	tmpDir := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	handler, err := checkpoints.Build(ctx).Dir(tmpDir).Keep(1).Done()
	if err == nil {
		err = handler.Save()
	}
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return errors.WithMessagef(err, "failed to write checkpoint to %q", tmpDir)
	}

	var oldDir string
	if _, err := os.Stat(path); err == nil {
		oldDir = fmt.Sprintf("%s.old-%s", path, uuid.NewString())
		if err := os.Rename(path, oldDir); err != nil {
			_ = os.RemoveAll(tmpDir)
			return errors.Wrapf(err, "failed to move previous checkpoint %q aside", path)
		}
	}
	if err := os.Rename(tmpDir, path); err != nil {
		if oldDir != "" {
			_ = os.Rename(oldDir, path)
		}
		_ = os.RemoveAll(tmpDir)
		return errors.Wrapf(err, "failed to move new checkpoint to %q", path)
	}
	if oldDir != "" {
		if err := os.RemoveAll(oldDir); err != nil {
			klog.Warningf("failed to remove previous checkpoint %q: %+v", oldDir, err)
		}
	}
	klog.Infof("saved checkpoint to %q (validation loss %.4f)", path, valLoss)
	return nil
}

// Load reads the checkpoint in the directory path into ctx: its parameters are set and its
// variables are created (or overwritten) with the saved values. Parameters listed in excludeParams
// are not read, and keep their current values in ctx.
//
// It returns the validation loss saved with the checkpoint. If path doesn't exist, the returned
// error wraps os.ErrNotExist.
func Load(path string, ctx *context.Context, excludeParams ...string) (valLoss float64, err error) {
	path = data.ReplaceTildeInDir(path)
	fi, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load checkpoint")
	}
	if !fi.IsDir() {
		return 0, errors.Errorf("checkpoint %q is not a directory", path)
	}
	handler, err := checkpoints.Build(ctx).Dir(path).ExcludeParams(excludeParams...).Immediate().Done()
	if err != nil {
		return 0, errors.WithMessagef(err, "failed to load checkpoint from %q", path)
	}
	if ok, err := handler.HasCheckpoints(); err != nil || !ok {
		return 0, errors.Errorf("no checkpoint found in %q", path)
	}
	if version := context.GetParamOr(ctx, ParamVersion, 0); version != Version {
		return 0, errors.Errorf("checkpoint %q has unsupported version %d, expected %d", path, version, Version)
	}
	valLoss = context.GetParamOr(ctx, ParamValidationLoss, math.NaN())
	klog.V(1).Infof("loaded checkpoint %q (validation loss %.4f)", path, valLoss)
	return valLoss, nil
}

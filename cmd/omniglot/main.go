// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// omniglot trains a Siamese network on the background alphabets of the Omniglot dataset, and evaluates
// its n-way one-shot accuracy on the evaluation alphabets.
//
// Hyperparameters are set with -set, e.g.:
//
//	$ omniglot -data=~/work/omniglot -download -checkpoint=~/work/omniglot/siamese -set="epochs=10;batch_size=64"
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/omniglot/checkpoint"
	"github.com/gomlx/omniglot/dataset"
	"github.com/gomlx/omniglot/siamese"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir    = flag.String("data", "~/work/omniglot", "Directory with the Omniglot \"images_background\" and \"images_evaluation\" sets.")
	flagDownload   = flag.Bool("download", false, "Download the Omniglot dataset into -data, if not there yet.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save the trained model to. If it already holds a model, "+
		"it is loaded first. If left empty, the model is not saved.")
	flagEvalOnly = flag.Bool("eval_only", false, "Skip training: only evaluate the model loaded from -checkpoint.")
	flagHistory  = flag.String("history", "", "If set, the per epoch metrics are saved as CSV to this file.")
	flagPlot     = flag.String("plot", "", "If set, the per epoch metrics are plotted to this file (.png or .svg).")
)

func main() {
	ctx := siamese.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if len(paramsSet) > 0 {
		klog.Infof("hyperparameters set: %s", commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	if err := run(ctx, *settings); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}

func run(ctx *context.Context, settings string) error {
	dataDir := data.ReplaceTildeInDir(*flagDataDir)
	backgroundDir := filepath.Join(dataDir, dataset.BackgroundSet)
	evaluationDir := filepath.Join(dataDir, dataset.EvaluationSet)
	if *flagDownload {
		var err error
		if backgroundDir, evaluationDir, err = dataset.Download(dataDir); err != nil {
			return err
		}
	}

	checkpointPath := data.ReplaceTildeInDir(*flagCheckpoint)
	if checkpointPath != "" && data.FileExists(checkpointPath) {
		valLoss, err := checkpoint.Load(checkpointPath, ctx, siamese.ExcludedParams...)
		if err != nil {
			return err
		}
		// Settings given in the command line take precedence over the ones loaded.
		paramsSet, err := commandline.ParseContextSettings(ctx, settings)
		if err != nil {
			return err
		}
		klog.Infof("loaded model from %q, validation loss %.4f (%d hyperparameters overridden)",
			checkpointPath, valLoss, len(paramsSet))
	} else if *flagEvalOnly {
		return errors.Errorf("-eval_only requires a saved model in -checkpoint, none found in %q", checkpointPath)
	}

	backend := backends.New()
	klog.Infof("backend: %s", backend.Name())

	if !*flagEvalOnly {
		corpus, err := siamese.OpenCorpus(backgroundDir)
		if err != nil {
			return err
		}
		trainDS, validationDS, err := siamese.NewDatasets(ctx, corpus)
		if err != nil {
			return err
		}
		history, err := siamese.Train(backend, ctx, trainDS, validationDS, siamese.TrainConfig{
			CheckpointPath: checkpointPath,
			ProgressBar:    true,
		})
		if err != nil {
			return err
		}
		if *flagHistory != "" {
			if err = history.SaveCSV(data.ReplaceTildeInDir(*flagHistory)); err != nil {
				return err
			}
		}
		if *flagPlot != "" {
			if err = history.Plot(data.ReplaceTildeInDir(*flagPlot)); err != nil {
				return err
			}
		}
	}

	corpus, err := siamese.OpenCorpus(evaluationDir)
	if err != nil {
		return err
	}
	episodes, err := siamese.NewEpisodes(ctx, corpus)
	if err != nil {
		return err
	}
	result, err := siamese.EvaluateOneShot(backend, ctx, episodes, true)
	if err != nil {
		return err
	}
	fmt.Printf("\nOne-shot evaluation on %q:\n%s\n", dataset.EvaluationSet, result)
	return nil
}

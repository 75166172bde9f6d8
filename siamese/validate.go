// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package siamese

import (
	"io"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// validator computes the validation loss and accuracy of the model in ctx, in inference mode.
type validator struct {
	exec *context.Exec
}

// newValidator creates a validator for the model in ctx. The graph is only built at the first
// evaluation, so ctx variables must exist by then.
func newValidator(backend backends.Backend, ctx *context.Context) *validator {
	exec := context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, imagesA, imagesB, labels *Node) []*Node {
		logits := ModelGraph(ctx, nil, []*Node{imagesA, imagesB})[0]
		loss := ReduceAllMean(losses.BinaryCrossentropyLogits([]*Node{labels}, []*Node{logits}))
		predictions := ConvertDType(GreaterThan(logits, ZerosLike(logits)), dtypes.Float32)
		numCorrect := ReduceAllSum(OneMinus(Abs(Sub(predictions, labels))))
		return []*Node{loss, numCorrect}
	})
	return &validator{exec: exec}
}

// validationSums accumulates the per batch results of a validation pass.
type validationSums struct {
	sumLoss, numCorrect     float64
	numBatches, numExamples int
}

func (s *validationSums) add(batchLoss, batchNumCorrect float64, batchSize int) {
	s.sumLoss += batchLoss
	s.numCorrect += batchNumCorrect
	s.numBatches++
	s.numExamples += batchSize
}

// means returns the loss averaged over batches, and the accuracy over examples.
func (s *validationSums) means() (loss, accuracy float64) {
	return s.sumLoss / float64(s.numBatches), s.numCorrect / float64(s.numExamples)
}

// evaluate runs one pass over ds, and returns the mean of the batch losses and the accuracy over
// all examples. ds is reset afterwards.
//
// A smaller last batch weighs as much as the others in the mean loss.
func (v *validator) evaluate(ds train.Dataset) (loss, accuracy float64, err error) {
	var sums validationSums
	for {
		_, inputs, labels, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			err = yieldErr
			break
		}
		if len(inputs) != 2 || len(labels) != 1 {
			err = errors.Errorf("dataset %q yielded %d inputs and %d labels, expected 2 and 1",
				ds.Name(), len(inputs), len(labels))
			break
		}
		err = exceptions.TryCatch[error](func() {
			outputs := v.exec.Call(inputs[0], inputs[1], labels[0])
			sums.add(scalarValue(outputs[0]), scalarValue(outputs[1]), labels[0].Shape().Dimensions[0])
		})
		if err != nil {
			break
		}
	}
	if dsErr := datasetErr(ds); dsErr != nil {
		err = dsErr
	}
	ds.Reset()
	if err != nil {
		return 0, 0, errors.WithMessagef(err, "failed to evaluate dataset %q", ds.Name())
	}
	if sums.numBatches == 0 {
		return 0, 0, errors.Errorf("dataset %q yielded no batches", ds.Name())
	}
	loss, accuracy = sums.means()
	return
}

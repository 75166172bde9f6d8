// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package siamese

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/omniglot/dataset"
	"github.com/gomlx/omniglot/sampler"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// OneShotResult is the outcome of an n-way one-shot evaluation.
type OneShotResult struct {
	NumWay, NumEpisodes, NumCorrect int
}

// Accuracy is the fraction of episodes where the matching candidate got the highest score.
func (r OneShotResult) Accuracy() float64 {
	if r.NumEpisodes == 0 {
		return 0
	}
	return float64(r.NumCorrect) / float64(r.NumEpisodes)
}

var (
	summaryBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	summaryKeyStyle    = lipgloss.NewStyle().Align(lipgloss.Right).PaddingRight(1).Bold(true)
	summaryValueStyle  = lipgloss.NewStyle().PaddingLeft(1)
)

// String renders the result as a table for the terminal.
func (r OneShotResult) String() string {
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(summaryBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return summaryKeyStyle
			}
			return summaryValueStyle
		})
	table.Row("Ways", fmt.Sprintf("%d", r.NumWay))
	table.Row("Episodes", humanize.Comma(int64(r.NumEpisodes)))
	table.Row("Correct", humanize.Comma(int64(r.NumCorrect)))
	table.Row("Accuracy", fmt.Sprintf("%.2f%%", 100*r.Accuracy()))
	return table.String()
}

// EvaluateOneShot runs all the episodes of the sampler with the model in ctx, and returns how many were
// answered correctly: for each episode the query image is scored against all candidates in one batch,
// and the candidate with the highest similarity is the answer.
//
// The model is run in inference mode, and ctx must already hold its variables: either trained or
// loaded from a checkpoint.
func EvaluateOneShot(backend backends.Backend, ctx *context.Context, episodes *sampler.EpisodeSampler, showProgress bool) (
	result OneShotResult, err error) {
	result.NumWay = episodes.NumWay()
	imageSize := context.GetParamOr(ctx, ParamImageSize, dataset.ImageSize)
	shape := [3]int{imageSize, imageSize, 1}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(episodes.Len(),
			progressbar.OptionSetDescription(fmt.Sprintf("%d-way one-shot", result.NumWay)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
	}

	err = exceptions.TryCatch[error](func() {
		exec := context.NewExec(backend, ctx.Reuse(), func(ctx *context.Context, queries, candidates *Node) *Node {
			logits := ModelGraph(ctx, nil, []*Node{queries, candidates})[0]
			return Reshape(logits, -1)
		})
		for index := range episodes.Len() {
			ep, err := episodes.SampleAt(index)
			if err != nil {
				panic(errors.WithMessagef(err, "failed to sample one-shot episode %d", index))
			}
			scores := scoreEpisode(exec, ep, shape)
			if argMax(scores) == ep.MatchIndex {
				result.NumCorrect++
			}
			result.NumEpisodes++
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	return
}

// scoreEpisode returns the similarity logits of the query against each candidate of the episode.
func scoreEpisode(exec *context.Exec, ep sampler.Episode, shape [3]int) []float32 {
	queries := make([]dataset.Pixels, len(ep.CandidateImages))
	for ii := range queries {
		queries[ii] = ep.QueryImage
	}
	queriesT, err := sampler.PixelsToTensor(queries, shape)
	if err != nil {
		panic(err)
	}
	candidatesT, err := sampler.PixelsToTensor(ep.CandidateImages, shape)
	if err != nil {
		panic(err)
	}
	logits := exec.Call(queriesT, candidatesT)[0]
	return logits.Value().([]float32)
}

// argMax returns the index of the largest value, the first one in case of ties.
func argMax(values []float32) int {
	best := 0
	for ii, v := range values {
		if v > values[best] {
			best = ii
		}
	}
	return best
}

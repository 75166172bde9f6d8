// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"net/url"
	"os"
	"path"

	"github.com/gomlx/gomlx/ml/data"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DownloadURL is the base URL of the Omniglot image archives.
var DownloadURL = "https://github.com/brendenlake/omniglot/raw/master/python"

// Download the background and evaluation image sets to dataDir and unzips them, if they are not
// there yet. Returns the directories of the background and the evaluation sets.
func Download(dataDir string) (backgroundDir, evaluationDir string, err error) {
	dataDir = data.ReplaceTildeInDir(dataDir)
	if err = os.MkdirAll(dataDir, 0777); err != nil {
		return "", "", errors.Wrapf(err, "failed to create data directory %q", dataDir)
	}
	dirs := make([]string, 0, 2)
	for _, set := range []string{BackgroundSet, EvaluationSet} {
		zipFile := set + ".zip"
		fileURL, err := url.JoinPath(DownloadURL, zipFile)
		if err != nil {
			return "", "", errors.Wrapf(err, "invalid download URL %q", DownloadURL)
		}
		targetDir := path.Join(dataDir, set)
		klog.V(1).Infof("making sure %q is available in %q", set, targetDir)
		err = data.DownloadAndUnzipIfMissing(fileURL, path.Join(dataDir, zipFile), dataDir, targetDir, "")
		if err != nil {
			return "", "", errors.WithMessagef(err, "failed to download Omniglot %q", set)
		}
		dirs = append(dirs, targetDir)
	}
	return dirs[0], dirs[1], nil
}

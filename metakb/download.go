package metakb

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/ixgest/collect"
)

// Download fetches and unpacks the corpus archives into dir, unless dir
// already holds corpus files. All archives are unpacked into a scratch
// directory first and only then are their *.json files moved into dir.
// Concurrent runs sharing dir should call it once up front, as Scatter does.
func Download(ctx context.Context, dir string, urls []string, client *http.Client, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	existing, err := CorpusFiles(dir)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Debugw("Corpus already present", "dir", dir, "files", len(existing))
		return nil
	}
	if len(urls) == 0 {
		return errors.WithHint(
			errors.NewNotFoundError("no corpus files in %s and no metakb_urls configured", dir),
			"set metakb_urls or copy the CDM exports into metakb_directory",
		)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	// every archive is unpacked before any file becomes visible in dir
	scratch, err := os.MkdirTemp(dir, ".download-")
	if err != nil {
		return errors.Wrap(err, "failed to create scratch directory")
	}
	defer os.RemoveAll(scratch)
	for i, u := range urls {
		logger.Infow("Downloading corpus", "url", u)
		if err := collect.Fetch(ctx, u, filepath.Join(scratch, strconv.Itoa(i)), getter.ClientModeDir, client); err != nil {
			return err
		}
	}
	if err := moveJSON(scratch, dir); err != nil {
		return err
	}

	files, err := CorpusFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.NewNotFoundError("downloaded archives contained no *.json files")
	}
	logger.Infow("Corpus ready", "dir", dir, "files", len(files))
	return nil
}

func moveJSON(from, to string) error {
	return filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		if err := os.Rename(path, filepath.Join(to, d.Name())); err != nil {
			return errors.Wrapf(err, "failed to move %s", d.Name())
		}
		return nil
	})
}

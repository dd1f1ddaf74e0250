// Package collect resolves manifest inputs (local paths and URLs) into files
// inside the work directory.
package collect

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/internal/httpclient"
	"github.com/teranos/anvil/version"
)

// Options configures Collect
type Options struct {
	WorkDir string
	// Parallelism bounds concurrent downloads; <= 0 means one at a time
	Parallelism int
	// HTTPClient overrides the download client
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
}

// Kind classifies an input
type Kind int

const (
	KindLocal Kind = iota
	KindHTTP
	KindS3
	KindGCS
)

// Classify returns the input's kind and, for local inputs, the filesystem path
func Classify(input string) (Kind, string) {
	switch {
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		return KindHTTP, ""
	case strings.HasPrefix(input, "s3://"):
		return KindS3, ""
	case strings.HasPrefix(input, "gs://"):
		return KindGCS, ""
	case strings.HasPrefix(input, "file://"):
		return KindLocal, strings.TrimPrefix(input, "file://")
	}
	return KindLocal, input
}

// Collect makes every input available in opts.WorkDir and returns the
// resulting paths in input order. Local files are symlinked; remote files are
// downloaded once and reused on later runs.
func Collect(ctx context.Context, inputs []string, opts Options) ([]string, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create work directory %s", opts.WorkDir)
	}

	paths := make([]string, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for i, input := range inputs {
		g.Go(func() error {
			kind, local := Classify(input)
			var (
				p   string
				err error
			)
			if kind == KindLocal {
				p, err = link(opts.WorkDir, local)
			} else {
				p, err = download(gctx, input, kind, opts)
			}
			if err != nil {
				return errors.Wrapf(err, "input %s", input)
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// link symlinks a local file into workDir, reusing an existing link to the same target
func link(workDir, file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", file)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(errors.ErrNotFound, "file %s does not exist", abs)
		}
		return "", errors.Wrapf(err, "failed to stat %s", abs)
	}
	if info.IsDir() {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "%s is a directory", abs)
	}

	dst := filepath.Join(workDir, filepath.Base(abs))
	if wd, err := filepath.Abs(dst); err == nil && wd == abs {
		// already collected, e.g. a scatter child manifest
		return dst, nil
	}
	if target, err := os.Readlink(dst); err == nil {
		if target == abs {
			return dst, nil
		}
		return "", errors.Newf("%s already links to %s", dst, target)
	}
	if err := os.Symlink(abs, dst); err != nil {
		if os.IsExist(err) {
			// a regular file, e.g. a previous download with the same name
			return "", errors.Newf("%s already exists and is not a link to %s", dst, abs)
		}
		return "", errors.Wrapf(err, "failed to link %s", abs)
	}
	return dst, nil
}

func download(ctx context.Context, input string, kind Kind, opts Options) (string, error) {
	u, err := url.Parse(input)
	if err != nil {
		return "", errors.Wrap(errors.ErrInvalidRequest, err.Error())
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "cannot derive a file name from %s", input)
	}
	dst := filepath.Join(opts.WorkDir, name)
	if _, err := os.Stat(dst); err == nil {
		opts.Logger.Debugw("Input already downloaded", "path", dst)
		return dst, nil
	}

	src := getterSource(u, kind)
	opts.Logger.Infow("Downloading input", "url", input, "path", dst)
	// download to a temp name so an interrupted run is not mistaken for a finished one
	tmp := dst + ".part"
	if err := Fetch(ctx, src, tmp, getter.ClientModeFile, opts.HTTPClient); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", errors.Wrapf(err, "failed to move %s into place", dst)
	}
	return dst, nil
}

// getterSource rewrites cloud URLs into go-getter's forced-getter syntax
func getterSource(u *url.URL, kind Kind) string {
	key := strings.TrimPrefix(u.Path, "/")
	switch kind {
	case KindS3:
		return "s3::https://s3.amazonaws.com/" + u.Host + "/" + key
	case KindGCS:
		return "gcs::https://www.googleapis.com/storage/v1/" + u.Host + "/" + key
	}
	return u.String()
}

// Fetch retrieves src into dst with go-getter. ClientModeFile stores the raw
// bytes (no decompression, VCF readers handle gzip themselves); ClientModeDir
// unpacks archives such as .zip into dst.
func Fetch(ctx context.Context, src, dst string, mode getter.ClientMode, client *http.Client) error {
	if client == nil {
		client = httpclient.New(httpclient.Options{UserAgent: version.UserAgent()}).Client
	}
	httpGetter := &getter.HttpGetter{Client: client}

	getters := make(map[string]getter.Getter, len(getter.Getters))
	for k, v := range getter.Getters {
		getters[k] = v
	}
	getters["http"] = httpGetter
	getters["https"] = httpGetter

	decompressors := getter.Decompressors
	if mode == getter.ClientModeFile {
		decompressors = map[string]getter.Decompressor{}
	}

	c := &getter.Client{
		Ctx:           ctx,
		Src:           src,
		Dst:           dst,
		Mode:          mode,
		Getters:       getters,
		Decompressors: decompressors,
	}
	if err := c.Get(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "failed to fetch %s", src)
	}
	return nil
}

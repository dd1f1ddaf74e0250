// Package scatter fans a manifest out to one independent annotate process
// per input file and reports on those processes afterwards. Coordination is
// entirely through files: child manifests in the work directory, a registry
// in the state directory, and each child's own log and metrics files.
package scatter

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/anvil/am"
	"github.com/teranos/anvil/annotate"
	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/ixgest/collect"
	"github.com/teranos/anvil/logger"
	"github.com/teranos/anvil/sym"
)

// Options configures Scatter
type Options struct {
	// Executable is the anvil binary children run; empty means os.Executable
	Executable string
	MaxErrors  int
	// Timestamp names the registry and child manifests; empty means now
	Timestamp string
	// Args are appended to every child's command line, e.g. -v
	Args       []string
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
	Now        func() time.Time
}

// ChildManifestName returns the path of the n-th child manifest of the
// scatter run started at timestamp by process pid
func ChildManifestName(workDir, timestamp string, pid, n int) string {
	return filepath.Join(workDir, fmt.Sprintf("manifest_%s_%d_%d.yaml", timestamp, pid, n))
}

// Scatter collects the manifest's inputs once, prepares the knowledge-base
// corpus and membership store once, writes a single-file manifest per input
// and launches one detached `annotate` child per manifest. Children only
// ever open the finished store. It does not wait for the children. The registry is written even when a launch
// fails part way, listing the children that did start.
func Scatter(ctx context.Context, m *am.Manifest, opts Options) (*Registry, string, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("scatter")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ts := opts.Timestamp
	if ts == "" {
		ts = now().Format(logger.TimestampLayout)
	}
	exe := opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, "", errors.Wrap(err, "failed to locate the anvil executable")
		}
	}
	prefix, err := shellquote.Split(m.Scatter.Command)
	if err != nil {
		return nil, "", errors.Wrapf(errors.ErrInvalidRequest, "scatter.command %q: %v", m.Scatter.Command, err)
	}

	files, err := collect.Collect(ctx, m.VCFFiles, collect.Options{
		WorkDir:     m.WorkDirectory,
		Parallelism: m.NumThreads,
		HTTPClient:  opts.HTTPClient,
		Logger:      log,
	})
	if err != nil {
		return nil, "", err
	}

	proxy, err := annotate.OpenMetaKB(ctx, m, opts.HTTPClient, log)
	if err != nil {
		return nil, "", err
	}
	proxy.Close()

	pid := os.Getpid()
	manifests := make([]string, len(files))
	for i, file := range files {
		manifests[i] = ChildManifestName(m.WorkDirectory, ts, pid, i)
		if err := m.CloneForFile(file).Save(manifests[i]); err != nil {
			return nil, "", err
		}
	}

	reg := &Registry{RunID: uuid.NewString(), CreatedAt: now().UTC(), Timestamp: ts, PID: pid}
	var launchErr error
	for i, file := range files {
		args := append([]string{}, prefix...)
		args = append(args, exe, "annotate",
			"--manifest", manifests[i],
			"--max-errors", strconv.Itoa(opts.MaxErrors),
			"--timestamp", ts,
		)
		args = append(args, opts.Args...)

		childPID, err := launch(args, manifests[i])
		if err != nil {
			launchErr = errors.Wrapf(err, "failed to launch child for %s", file)
			break
		}
		log.Infow(sym.Scatter+" Launched child", "pid", childPID, "file", file, "manifest", manifests[i])
		reg.Processes = append(reg.Processes, Entry{PID: childPID, Manifest: manifests[i], File: file})
	}

	path := RegistryFileName(m.StateDirectory, ts, pid)
	if err := reg.Write(path); err != nil {
		return reg, "", errors.Join(launchErr, err)
	}
	return reg, path, launchErr
}

// launch starts args detached, sending its stderr next to its manifest, and
// reaps it in the background
func launch(args []string, manifest string) (int, error) {
	stderr, err := os.Create(manifest + ".stderr")
	if err != nil {
		return 0, errors.Wrap(err, "failed to create child stderr file")
	}
	defer stderr.Close()

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = os.Environ()
	cmd.Stderr = stderr
	cmd.SysProcAttr = detached()
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	go cmd.Wait()
	return cmd.Process.Pid, nil
}

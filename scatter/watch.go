package scatter

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/anvil/errors"
)

// WatchOptions tunes Watch
type WatchOptions struct {
	// Debounce coalesces bursts of file events; 0 means 250ms
	Debounce time.Duration
	// Refresh re-renders without file events so CPU and memory stay current; 0 means 2s
	Refresh time.Duration
}

// Watch renders the status of reg whenever the state directory changes and
// on a refresh interval, until every process has finished or ctx is done.
// The final render always shows the finished state.
func Watch(ctx context.Context, stateDir string, reg *Registry, opts WatchOptions, render func([]ProcessStatus) error) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 250 * time.Millisecond
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 2 * time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create state directory watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(stateDir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", stateDir)
	}

	update := func() (bool, error) {
		statuses := Status(stateDir, reg)
		if err := render(statuses); err != nil {
			return false, err
		}
		return AllDone(statuses), nil
	}

	if done, err := update(); err != nil || done {
		return err
	}

	refresh := time.NewTicker(opts.Refresh)
	defer refresh.Stop()
	debounce := time.NewTimer(opts.Debounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			debounce.Reset(opts.Debounce)
			continue
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "state directory watcher failed")
		case <-debounce.C:
		case <-refresh.C:
		}

		if done, err := update(); err != nil || done {
			return err
		}
	}
}

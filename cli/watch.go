package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opal-lang/beast/core/config"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/runtime/loader"
)

// debounce is how long the watcher waits for a burst of events to settle.
const debounce = 150 * time.Millisecond

// watchTargets lists the directories to watch: the parents of the given
// files, or the project directory with its include and lib paths.
func watchTargets(a *app, files []string) []string {
	if len(files) > 0 {
		var dirs []string
		for _, f := range files {
			dir := filepath.Dir(f)
			if !slices.Contains(dirs, dir) {
				dirs = append(dirs, dir)
			}
		}
		return dirs
	}

	dirs := []string{a.dir}
	cfg, err := config.Load(os.DirFS(a.dir))
	if err != nil {
		cfg = config.Default()
	}
	for _, d := range append(slices.Clone(cfg.Compilation.Include), cfg.Compilation.Lib...) {
		dirs = appendTree(dirs, filepath.Join(a.dir, d))
	}
	return dirs
}

// appendTree adds root and its subdirectories. fsnotify watches are not
// recursive.
func appendTree(dirs []string, root string) []string {
	_ = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && !slices.Contains(dirs, p) {
			dirs = append(dirs, p)
		}
		return nil
	})
	return dirs
}

// relevant reports whether a change to name should trigger a re-run.
func relevant(name string) bool {
	if base := filepath.Base(name); base == config.FileName || base == config.YAMLFileName {
		return true
	}
	ext := filepath.Ext(name)
	return slices.Contains(loader.SourceExts, ext) || slices.Contains(loader.LibraryExts, ext)
}

// watch runs run once, then again after every relevant change in dirs until
// ctx is cancelled. Failures of run are printed, not returned.
func (a *app) watch(ctx context.Context, dirs []string, run func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
		a.logger.Debug("watching", "dir", d)
	}

	rerun := func() {
		if err := run(ctx); err != nil {
			FormatError(a.stderr, err, a.useColor())
		}
		_, _ = fmt.Fprintln(a.stdout, diag.Colorize("watching for changes...", diag.ColorGray, a.useColor()))
	}
	rerun()

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.Add(ev.Name)
				}
			}
			if !relevant(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			a.logger.Debug("change", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", "error", err)
		case <-timer.C:
			rerun()
		}
	}
}

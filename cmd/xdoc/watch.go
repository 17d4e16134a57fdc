package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"xdao.co/xdoc/document"
)

func cmdWatch(args []string, out io.Writer, errOut io.Writer) int {
	fset := flag.NewFlagSet("watch", flag.ContinueOnError)
	fset.SetOutput(errOut)
	var dir, pattern string
	fset.StringVar(&dir, "dir", ".", "Directory to watch (recursively)")
	fset.StringVar(&pattern, "glob", "**/*.json", "Files to hash, relative to --dir")
	if err := fset.Parse(args); err != nil {
		return 2
	}
	if !doublestar.ValidatePattern(pattern) {
		fmt.Fprintf(errOut, "invalid --glob %q\n", pattern)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := watch(ctx, dir, pattern, out, errOut); err != nil {
		fmt.Fprintf(errOut, "watch: %v\n", err)
		return 1
	}
	return 0
}

// watcher prints "<digest>  <path>" for every matching document when first
// seen and again whenever its digest changes. Removed files print
// "removed  <path>".
type watcher struct {
	dir     string
	pattern string
	out     io.Writer
	errOut  io.Writer
	last    map[string]document.Digest
}

func watch(ctx context.Context, dir, pattern string, out, errOut io.Writer) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	w := &watcher{dir: dir, pattern: pattern, out: out, errOut: errOut, last: map[string]document.Digest{}}
	if err := w.addTree(fsw, dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(errOut, "fsnotify: %v\n", err)
		}
	}
}

// addTree watches root and every directory below it, hashing matching files
// already present.
func (w *watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		w.rehash(path)
		return nil
	})
}

func (w *watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(fsw, ev.Name); err != nil {
				fmt.Fprintln(w.errOut, err)
			}
			return
		}
		w.rehash(ev.Name)
	case ev.Has(fsnotify.Write):
		w.rehash(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		rel, ok := w.match(ev.Name)
		if !ok {
			return
		}
		if _, seen := w.last[rel]; seen {
			delete(w.last, rel)
			_, _ = fmt.Fprintf(w.out, "removed  %s\n", rel)
		}
	}
}

func (w *watcher) match(path string) (string, bool) {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	ok, err := doublestar.Match(w.pattern, rel)
	return rel, err == nil && ok
}

func (w *watcher) rehash(path string) {
	rel, ok := w.match(path)
	if !ok {
		return
	}
	d, err := hashFile(path)
	if err != nil {
		// Partial writes are common; the next event will retry.
		fmt.Fprintln(w.errOut, err)
		return
	}
	if prev, seen := w.last[rel]; seen && prev == d {
		return
	}
	w.last[rel] = d
	_, _ = fmt.Fprintf(w.out, "%s  %s\n", d, rel)
}

// Package reload rebuilds the pattern registry when catalog files change
// and installs it through a scan.Handle. A failed rebuild leaves the
// serving registry in place.
package reload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

// DefaultDebounce coalesces the burst of events a single save produces
const DefaultDebounce = 250 * time.Millisecond

// Loader returns the full set of specs to build the next registry from
type Loader func() ([]scan.PatternSpec, error)

// Result describes one reload attempt
type Result struct {
	Swapped     bool
	Patterns    int
	Skipped     int
	Fingerprint uint64
	Generation  uint64
	Err         error
}

// Option configures a Watcher
type Option func(*Watcher)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period before a reload runs
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithBuildOptions are passed to scan.Build on every reload
func WithBuildOptions(opts ...scan.BuildOption) Option {
	return func(w *Watcher) {
		w.buildOpts = append(w.buildOpts, opts...)
	}
}

// OnReload registers a callback invoked after every attempt
func OnReload(fn func(Result)) Option {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher watches catalog paths and swaps in rebuilt registries
type Watcher struct {
	handle    *scan.Handle
	load      Loader
	buildOpts []scan.BuildOption
	debounce  time.Duration
	logger    *zap.Logger
	onReload  func(Result)

	fsw  *fsnotify.Watcher
	dirs []string

	mu        sync.Mutex // serializes reloads
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a watcher over the directories that hold paths. paths
// accepts the same forms as the pattern loader: files, directories and
// doublestar globs.
func New(handle *scan.Handle, load Loader, paths []string, opts ...Option) (*Watcher, error) {
	if handle == nil || load == nil {
		return nil, fmt.Errorf("reload: handle and loader are required")
	}

	w := &Watcher{
		handle:   handle,
		load:     load,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw

	for _, dir := range watchDirs(paths) {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("cannot watch pattern directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		w.dirs = append(w.dirs, dir)
	}
	if len(w.dirs) == 0 && len(paths) > 0 {
		fsw.Close()
		return nil, fmt.Errorf("reload: none of %v can be watched", paths)
	}

	return w, nil
}

// Dirs returns the directories being watched
func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Start runs the event loop until ctx is done or Close is called
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Close stops the event loop and releases the file watcher
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

// Reload loads and builds a new registry now. It swaps only when the build
// succeeds and the catalog actually changed.
func (w *Watcher) Reload() Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	res := w.reload()
	if w.onReload != nil {
		w.onReload(res)
	}
	return res
}

func (w *Watcher) reload() Result {
	specs, err := w.load()
	if err != nil {
		w.logger.Error("pattern reload failed; keeping current registry", zap.Error(err))
		return Result{Err: fmt.Errorf("loading patterns: %w", err), Generation: w.handle.Generation()}
	}

	next, err := scan.Build(specs, append([]scan.BuildOption{scan.WithBuildLogger(w.logger)}, w.buildOpts...)...)
	if err != nil {
		w.logger.Error("pattern reload failed; keeping current registry", zap.Error(err))
		return Result{Err: fmt.Errorf("building registry: %w", err), Generation: w.handle.Generation()}
	}

	res := Result{
		Patterns:    next.Len(),
		Skipped:     len(next.Skipped()),
		Fingerprint: next.Fingerprint(),
	}

	if cur := w.handle.Current(); cur != nil && cur.Fingerprint() == next.Fingerprint() {
		w.logger.Debug("pattern catalog unchanged", zap.Uint64("fingerprint", next.Fingerprint()))
		res.Generation = w.handle.Generation()
		return res
	}

	if _, err := w.handle.Swap(next); err != nil {
		res.Err = err
		return res
	}
	res.Swapped = true
	res.Generation = w.handle.Generation()

	w.logger.Info("pattern registry swapped",
		zap.Int("patterns", res.Patterns),
		zap.Int("skipped", res.Skipped),
		zap.Uint64("generation", res.Generation))
	return res
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("pattern file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.Reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// relevant keeps content changes to catalog files
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext == ".yaml" || ext == ".yml"
}

// watchDirs maps configured paths to the directories to watch. Files are
// watched through their parent so that editors replacing the file are seen.
func watchDirs(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(d string) {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}

	for _, p := range paths {
		if strings.ContainsAny(p, "*?[{") {
			base, _ := doublestar.SplitPattern(filepath.ToSlash(p))
			addTree(filepath.FromSlash(base), add)
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			add(filepath.Dir(p))
			continue
		}
		if info.IsDir() {
			addTree(p, add)
		} else {
			add(filepath.Dir(p))
		}
	}
	return dirs
}

// addTree adds root and every directory below it; fsnotify is not recursive
func addTree(root string, add func(string)) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			add(path)
		}
		return nil
	})
}

package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tributary-ai-services/datadetector/pkg/config"
	"github.com/Tributary-ai-services/datadetector/pkg/scan"
)

const catalogV1 = `namespace: acme
patterns:
  - id: employee
    category: other
    pattern: 'EMP-\d{6}'
`

const catalogV2 = `namespace: acme
patterns:
  - id: employee
    category: other
    pattern: 'EMP-\d{6}'
  - id: badge
    category: other
    pattern: 'BDG\d{4}'
`

const catalogBroken = `namespace: acme
patterns:
  - id: employee
    category: other
    pattern: 'EMP-(\d{6}'
`

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setup(t *testing.T, opts ...Option) (*Watcher, *scan.Handle, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.yaml")
	writeCatalog(t, path, catalogV1)

	specs, err := config.LoadPatternFile(path)
	require.NoError(t, err)
	reg, err := scan.Build(specs)
	require.NoError(t, err)
	handle := scan.NewHandle(reg)

	load := func() ([]scan.PatternSpec, error) {
		return config.LoadPatternPaths([]string{dir})
	}
	w, err := New(handle, load, []string{dir}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, handle, path
}

func TestReload_SwapsChangedCatalog(t *testing.T) {
	w, handle, path := setup(t)
	before := handle.Current()

	writeCatalog(t, path, catalogV2)
	res := w.Reload()
	require.NoError(t, res.Err)
	assert.True(t, res.Swapped)
	assert.Equal(t, 2, res.Patterns)
	assert.Equal(t, uint64(1), res.Generation)

	_, ok := handle.Current().Lookup("acme/badge")
	assert.True(t, ok)
	assert.Equal(t, 1, before.Len(), "the old snapshot is untouched")
}

func TestReload_UnchangedCatalogIsNotSwapped(t *testing.T) {
	w, handle, _ := setup(t)
	before := handle.Current()

	res := w.Reload()
	require.NoError(t, res.Err)
	assert.False(t, res.Swapped)
	assert.Same(t, before, handle.Current())
	assert.Zero(t, handle.Generation())
}

func TestReload_FailureKeepsCurrentRegistry(t *testing.T) {
	w, handle, path := setup(t)
	before := handle.Current()

	writeCatalog(t, path, catalogBroken)
	res := w.Reload()
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, scan.ErrEmptyRegistry)
	assert.False(t, res.Swapped)
	assert.Same(t, before, handle.Current())

	writeCatalog(t, path, "- not a mapping\n")
	res = w.Reload()
	assert.Error(t, res.Err)
	assert.Same(t, before, handle.Current())
}

func TestReload_LoaderError(t *testing.T) {
	handle := scan.NewHandle(nil)
	boom := errors.New("disk on fire")

	w, err := New(handle, func() ([]scan.PatternSpec, error) { return nil, boom }, nil)
	require.NoError(t, err)
	defer w.Close()

	res := w.Reload()
	assert.ErrorIs(t, res.Err, boom)
	assert.Nil(t, handle.Current())
}

func TestReload_IntoEmptyHandle(t *testing.T) {
	handle := scan.NewHandle(nil)
	specs, err := config.ParsePatternFile([]byte(catalogV1), "inline")
	require.NoError(t, err)

	w, err := New(handle, func() ([]scan.PatternSpec, error) { return specs, nil }, nil)
	require.NoError(t, err)
	defer w.Close()

	res := w.Reload()
	require.NoError(t, res.Err)
	assert.True(t, res.Swapped)
	require.NotNil(t, handle.Current())
	assert.Equal(t, 1, handle.Current().Len())
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	var mu sync.Mutex
	var results []Result
	w, handle, path := setup(t,
		WithDebounce(20*time.Millisecond),
		OnReload(func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	writeCatalog(t, path, catalogV2)

	require.Eventually(t, func() bool {
		_, ok := handle.Current().Lookup("acme/badge")
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, results)
	assert.True(t, results[len(results)-1].Swapped || handle.Generation() > 0)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	reloads := make(chan Result, 10)
	w, _, path := setup(t,
		WithDebounce(10*time.Millisecond),
		OnReload(func(r Result) { reloads <- r }),
	)
	w.Start(context.Background())

	writeCatalog(t, filepath.Join(filepath.Dir(path), "notes.txt"), "hello")

	select {
	case r := <-reloads:
		t.Fatalf("unexpected reload: %+v", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchDirs(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "eu", "de")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	file := filepath.Join(root, "comm.yaml")
	writeCatalog(t, file, catalogV1)

	dirs := watchDirs([]string{file, root, filepath.Join(root, "**", "*.yaml")})
	assert.ElementsMatch(t, []string{root, filepath.Join(root, "eu"), nested}, dirs)
}

func TestCloseIsIdempotent(t *testing.T) {
	w, _, _ := setup(t)
	w.Start(context.Background())
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

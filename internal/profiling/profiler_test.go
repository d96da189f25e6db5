package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size(), path)
}

func TestSession_WritesRequestedProfiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Trace: filepath.Join(dir, "trace.out"),
	}
	require.True(t, opts.Enabled())

	s, err := Start(opts)
	require.NoError(t, err)

	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += i
	}
	_ = sum

	require.NoError(t, s.Stop())
	nonEmpty(t, opts.CPU)
	nonEmpty(t, opts.Heap)
	nonEmpty(t, opts.Trace)

	assert.NoError(t, s.Stop(), "second stop is a no-op")
}

func TestSession_Empty(t *testing.T) {
	assert.False(t, Options{}.Enabled())

	s, err := Start(Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}

func TestStart_BadPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no", "such", "dir")

	_, err := Start(Options{CPU: filepath.Join(missing, "cpu.prof")})
	assert.ErrorContains(t, err, "CPU profile")

	_, err = Start(Options{Trace: filepath.Join(missing, "trace.out")})
	assert.ErrorContains(t, err, "trace")
}

func TestSession_BadHeapPath(t *testing.T) {
	s, err := Start(Options{Heap: filepath.Join(t.TempDir(), "no", "heap.prof")})
	require.NoError(t, err)

	assert.ErrorContains(t, s.Stop(), "heap profile")
}

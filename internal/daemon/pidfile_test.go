package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_Write(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nested", "test.pid")

	pf := NewPIDFile(pidPath)
	require.NoError(t, pf.Write())

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.Equal(t, pidPath, pf.Path())
}

func TestPIDFile_Read(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("12345\n"), 0644))

	pid, err := NewPIDFile(pidPath).Read()

	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewPIDFile(filepath.Join(dir, "missing.pid")).Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)

	for _, content := range []string{"not-a-pid", "-4", ""} {
		path := filepath.Join(dir, "bad.pid")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err := NewPIDFile(path).Read()
		assert.Error(t, err, "content %q", content)
	}
}

func TestPIDFile_Remove(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(pidPath)
	require.NoError(t, pf.Write())

	require.NoError(t, pf.Remove())
	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, pf.Remove(), "removing twice is fine")
}

func TestPIDFile_IsRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(pidPath)
	assert.False(t, pf.IsRunning())

	require.NoError(t, pf.Write())
	assert.True(t, pf.IsRunning())

	// PIDs this high are never handed out
	require.NoError(t, os.WriteFile(pidPath, []byte("99999999"), 0644))
	assert.False(t, pf.IsRunning())
}

func TestPIDFile_Acquire(t *testing.T) {
	dir := t.TempDir()

	t.Run("fresh", func(t *testing.T) {
		pf := NewPIDFile(filepath.Join(dir, "fresh.pid"))
		require.NoError(t, pf.Acquire())
		pid, err := pf.Read()
		require.NoError(t, err)
		assert.Equal(t, os.Getpid(), pid)
	})

	t.Run("stale pid replaced", func(t *testing.T) {
		path := filepath.Join(dir, "stale.pid")
		require.NoError(t, os.WriteFile(path, []byte("99999999"), 0644))
		require.NoError(t, NewPIDFile(path).Acquire())
	})

	t.Run("garbage replaced", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.pid")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
		require.NoError(t, NewPIDFile(path).Acquire())
	})

	t.Run("live owner", func(t *testing.T) {
		// The parent (go test) is alive and owned by the same user.
		path := filepath.Join(dir, "live.pid")
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0644))
		err := NewPIDFile(path).Acquire()
		assert.ErrorIs(t, err, ErrAlreadyRunning)
	})
}

func TestPIDFile_Signal(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "test.pid"))
	assert.Error(t, pf.Signal(syscall.Signal(0)), "no pid file")

	require.NoError(t, pf.Write())
	assert.NoError(t, pf.Signal(syscall.Signal(0)))
}

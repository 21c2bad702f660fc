package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter(t *testing.T) {
	t.Run("creates directory", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "nested", "a.log")
		rw, err := NewRotatingWriter(logFile, 1, 0, false)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})

	t.Run("rotates past max size", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "a.log")
		rw, err := NewRotatingWriter(logFile, 1, 0, true)
		require.NoError(t, err)
		defer rw.Close()

		chunk := bytes.Repeat([]byte("x"), 700*1024)
		_, err = rw.Write(chunk)
		require.NoError(t, err)
		_, err = rw.Write(chunk)
		require.NoError(t, err)

		matches, err := filepath.Glob(logFile + ".*.gz")
		require.NoError(t, err)
		assert.Len(t, matches, 1)

		info, err := os.Stat(logFile)
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunk)), info.Size())
	})

	t.Run("oversized first write is kept", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "a.log")
		rw, err := NewRotatingWriter(logFile, 1, 0, false)
		require.NoError(t, err)
		defer rw.Close()

		n, err := rw.Write(bytes.Repeat([]byte("y"), 2*1024*1024))
		require.NoError(t, err)
		assert.Equal(t, 2*1024*1024, n)
	})

	t.Run("removes expired rotations", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "a.log")
		old := logFile + ".20200101-000000.000.gz"
		fresh := logFile + ".20990101-000000.000.gz"
		require.NoError(t, os.WriteFile(old, []byte("old"), 0644))
		require.NoError(t, os.WriteFile(fresh, []byte("new"), 0644))
		past := time.Now().AddDate(0, 0, -30)
		require.NoError(t, os.Chtimes(old, past, past))

		rw, err := NewRotatingWriter(logFile, 1, 7, false)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(old)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(fresh)
		assert.NoError(t, err)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), 1, 0, false)
		require.NoError(t, err)
		assert.NoError(t, rw.Close())
		assert.NoError(t, rw.Close())
	})
}

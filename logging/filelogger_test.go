package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCycleLogger(t *testing.T) {
	_, err := NewCycleLogger(t.TempDir(), "", log.New())
	require.Error(t, err)

	_, err = NewCycleLogger("", "run", log.New())
	require.Error(t, err)

	base := t.TempDir()
	l, err := NewCycleLogger(base, "abc", log.New())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "cycle-abc"), l.Dir())
	assert.DirExists(t, l.Dir())
}

func TestCaseLoggerIsolation(t *testing.T) {
	var parentBuf strings.Builder
	parent := log.NewLogger(log.NewTerminalHandlerWithLevel(&parentBuf, log.LevelTrace, false))

	l, err := NewCycleLogger(t.TempDir(), "run1", parent)
	require.NoError(t, err)

	first, err := l.OpenCase(1, "BVT VERIFY")
	require.NoError(t, err)
	second, err := l.OpenCase(2, "DISK/SETUP")
	require.NoError(t, err)

	first.Log.Info("deploying target", "key", "vm-1")
	_, err = first.Output().Write([]byte("\x1b[32mRESULT: PASS\x1b[0m\n"))
	require.NoError(t, err)
	second.Log.Warn("disk missing")

	firstText, err := first.Text()
	require.NoError(t, err)
	secondText, err := second.Text()
	require.NoError(t, err)

	assert.Contains(t, firstText, "deploying target")
	assert.Contains(t, firstText, "RESULT: PASS")
	assert.NotContains(t, firstText, "\x1b[")
	assert.NotContains(t, firstText, "disk missing")
	assert.Contains(t, secondText, "disk missing")
	assert.NotContains(t, secondText, "deploying target")

	assert.Equal(t, filepath.Join(l.Dir(), "001-BVT_VERIFY", CaseLogFilename), first.Path)
	assert.Equal(t, filepath.Join(l.Dir(), "002-DISK_SETUP"), second.Dir)

	// records also reach the cycle logger
	assert.Contains(t, parentBuf.String(), "deploying target")
	assert.Contains(t, parentBuf.String(), "disk missing")

	// closing twice is fine
	require.NoError(t, first.Close())
}

func TestWriteFile(t *testing.T) {
	l, err := NewCycleLogger(t.TempDir(), "run1", log.New())
	require.NoError(t, err)

	path, err := l.WriteFile("summary.log", []byte("part one\n"))
	require.NoError(t, err)
	_, err = l.WriteFile("summary.log", []byte("part two\n"))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "part one\npart two\n", string(data))
}

func TestAsyncFileClosed(t *testing.T) {
	af, err := NewAsyncFile(filepath.Join(t.TempDir(), "x.log"))
	require.NoError(t, err)
	require.NoError(t, af.Close())
	_, err = af.Write([]byte("late"))
	assert.Error(t, err)
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "simple"},
		{"with space", "with_space"},
		{"a/b\\c", "a_b_c"},
		{"what?*", "what__"},
		{"trail...", "trail"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeFilename(tt.input))
		})
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "Green text", StripANSI("\x1b[32mGreen text\x1b[0m"))
	assert.Equal(t, "Bold Green normal", StripANSI("\x1b[1m\x1b[32mBold Green\x1b[0m normal"))
}

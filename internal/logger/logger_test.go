package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitialize(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "raffle.log")
	errorFile := filepath.Join(dir, "error.log")

	require.NoError(t, Initialize(Configuration{
		LogFile:   logFile,
		ErrorFile: errorFile,
		Level:     "debug",
	}))
	t.Cleanup(func() { log = zap.NewNop() })

	Debug("ticket sold", zap.String("raffle", "r-1"))
	Error("claim failed", zap.String("raffle", "r-1"))
	Sync()

	all, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(all), "ticket sold")
	require.Contains(t, string(all), "claim failed")

	errorsOnly, err := os.ReadFile(errorFile)
	require.NoError(t, err)
	require.NotContains(t, string(errorsOnly), "ticket sold")
	require.Contains(t, string(errorsOnly), "claim failed")
}

func TestInitializeUnwritableFile(t *testing.T) {
	err := Initialize(Configuration{LogFile: filepath.Join(t.TempDir(), "missing", "raffle.log")})
	require.Error(t, err)
}

func TestInitializeClosesLogFileWhenErrorFileFails(t *testing.T) {
	var closed []string
	closeFile = func(file *os.File) error {
		closed = append(closed, file.Name())
		return file.Close()
	}
	t.Cleanup(func() {
		closeFile = func(file *os.File) error { return file.Close() }
	})

	dir := t.TempDir()
	logFile := filepath.Join(dir, "raffle.log")

	err := Initialize(Configuration{
		LogFile:   logFile,
		ErrorFile: filepath.Join(dir, "missing", "error.log"),
	})
	require.Error(t, err)
	require.Equal(t, []string{logFile}, closed)
}

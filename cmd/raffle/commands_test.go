package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"raffle/internal/raffle"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(append([]string{"raffle", "--env", filepath.Join(t.TempDir(), "absent.env")}, args...))
	return out.String(), err
}

func TestCommandsSellTickets(t *testing.T) {
	t.Setenv("RAFFLE_DB_PATH", filepath.Join(t.TempDir(), "raffle.db"))
	t.Setenv("RAFFLE_LOG_CONSOLE", "false")

	out, err := run(t, "fund", "--account", "alice", "--amount", "250")
	require.NoError(t, err)
	require.Equal(t, "alice=250\n", out)

	out, err = run(t, "create", "--id", "r-1", "--admin", "admin", "--creator", "carol", "--fee", "100", "--ends-in", "1h")
	require.NoError(t, err)
	require.Contains(t, out, "id=r-1 status=Active tickets=0/100 entry_fee=100")

	out, err = run(t, "buy", "--id", "r-1", "--buyer", "alice")
	require.NoError(t, err)
	require.Contains(t, out, "tickets=1/100")

	out, err = run(t, "balance", "--account", "raffle:r-1")
	require.NoError(t, err)
	require.Equal(t, "raffle:r-1=100\n", out)

	_, err = run(t, "buy", "--id", "r-1", "--buyer", "carol")
	require.ErrorIs(t, err, raffle.ErrCreatorCannotParticipate)

	_, err = run(t, "select", "--id", "r-1", "--ref", "not-a-ref")
	require.ErrorIs(t, err, raffle.ErrRaffleNotEnded)

	out, err = run(t, "close", "--id", "r-1", "--caller", "admin")
	require.NoError(t, err)
	require.Equal(t, "swept=100\n", out)

	_, err = run(t, "status", "--id", "r-1")
	require.ErrorIs(t, err, raffle.ErrNotFound)
}

func TestCommandsCommit(t *testing.T) {
	t.Setenv("RAFFLE_DB_PATH", filepath.Join(t.TempDir(), "raffle.db"))
	t.Setenv("RAFFLE_LOG_CONSOLE", "false")

	out, err := run(t, "commit", "--reveal-in", "0s")
	require.NoError(t, err)
	require.Contains(t, out, "ref=")
	require.Contains(t, out, "digest=")
}

func TestCommandsListAndHistory(t *testing.T) {
	t.Setenv("RAFFLE_DB_PATH", filepath.Join(t.TempDir(), "raffle.db"))
	t.Setenv("RAFFLE_LOG_CONSOLE", "false")

	out, err := run(t, "list")
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = run(t, "fund", "--account", "alice", "--amount", "250")
	require.NoError(t, err)
	for _, id := range []string{"r-2", "r-1"} {
		_, err = run(t, "create", "--id", id, "--admin", "admin", "--creator", "carol", "--fee", "100", "--ends-in", "1h")
		require.NoError(t, err)
	}
	_, err = run(t, "buy", "--id", "r-1", "--buyer", "alice")
	require.NoError(t, err)

	out, err = run(t, "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[0], "id=r-1 status=Active tickets=1/100"))
	require.True(t, strings.HasPrefix(lines[1], "id=r-2 status=Active tickets=0/100"))

	out, err = run(t, "ended")
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = run(t, "history", "--account", "alice")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], " deposit -> alice 250"))
	require.True(t, strings.HasSuffix(lines[1], " alice -> raffle:r-1 100"))

	out, err = run(t, "history", "--account", "nobody")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestCommandsCommitForRaffle(t *testing.T) {
	t.Setenv("RAFFLE_DB_PATH", filepath.Join(t.TempDir(), "raffle.db"))
	t.Setenv("RAFFLE_LOG_CONSOLE", "false")

	_, err := run(t, "create", "--id", "r-1", "--admin", "admin", "--creator", "carol", "--fee", "1", "--ends-in", "2h")
	require.NoError(t, err)

	out, err := run(t, "commit", "--id", "r-1", "--reveal-in", "0s")
	require.NoError(t, err)
	require.Contains(t, out, "ref=")

	_, err = run(t, "commit", "--id", "missing")
	require.ErrorIs(t, err, raffle.ErrNotFound)
}

func TestHelpDoesNotOpenDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raffle.db")
	t.Setenv("RAFFLE_DB_PATH", path)
	t.Setenv("RAFFLE_LOG_CONSOLE", "false")

	for _, args := range [][]string{nil, {"help"}, {"help", "create"}, {"--help"}} {
		t.Run(fmt.Sprint(args), func(t *testing.T) {
			_, err := run(t, args...)
			require.NoError(t, err)

			_, err = os.Stat(path)
			require.True(t, errors.Is(err, os.ErrNotExist), "database created by %v", args)
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown", errors.New("boom"), exitFailure},
		{"validation", raffle.ErrRaffleNotEnded, exitValidation},
		{"wrapped validation", fmt.Errorf("select: %w", raffle.ErrNotFound), exitValidation},
		{"resource", raffle.ErrOverflow, exitResource},
		{"dependency", raffle.ErrRandomnessUnavailable, exitDependency},
		{"authorization", raffle.ErrNotWinner, exitAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

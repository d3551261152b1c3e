package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deckstream/internal/testserver"
	"github.com/taskdeck/deckstream/internal/version"
	"github.com/taskdeck/deckstream/pkg/api"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestCLI_RequiresProcessID(t *testing.T) {
	_, err := runCLI(t, "watch")
	assert.Error(t, err)

	_, err = runCLI(t, "logs")
	assert.Error(t, err)
}

func TestCLI_Logs(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	srv.SetHistory([]api.LogEntry{
		{Sequence: 1, Level: "stdout", Content: "build started"},
		{Sequence: 2, Level: "stdout", Content: "build finished"},
	})
	t.Setenv("DECKSTREAM_URL", srv.URL())

	out, err := runCLI(t, "logs", "proc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "build started")
	assert.Contains(t, out, "build finished")
}

func TestCLI_RejectsBadServerURL(t *testing.T) {
	t.Setenv("DECKSTREAM_URL", "ftp://deck.example.com")

	_, err := runCLI(t, "logs", "proc-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

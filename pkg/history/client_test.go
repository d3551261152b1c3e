package history_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/deckstream/internal/testserver"
	"github.com/taskdeck/deckstream/pkg/api"
	"github.com/taskdeck/deckstream/pkg/errors"
	"github.com/taskdeck/deckstream/pkg/history"
)

func historyEntries(from, to int64) []api.LogEntry {
	var out []api.LogEntry
	for seq := from; seq <= to; seq++ {
		out = append(out, api.LogEntry{
			Sequence: seq,
			Level:    "info",
			Content:  fmt.Sprintf("line %d", seq),
		})
	}
	return out
}

func sequences(entries []api.LogEntry) []int64 {
	var out []int64
	for _, e := range entries {
		out = append(out, e.Sequence)
	}
	return out
}

func TestClient_Logs_BackwardPaging(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	srv.SetHistory(historyEntries(1, 25))

	client, err := history.NewClient(srv.URL(), "")
	require.NoError(t, err)

	// No cursor: the newest page.
	page, err := client.Logs(context.Background(), "proc-1", 10, "", history.Backward)
	require.NoError(t, err)
	assert.Equal(t, []int64{16, 17, 18, 19, 20, 21, 22, 23, 24, 25}, sequences(page.Entries))
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, int64(25), *page.TotalCount)

	// Following the cursor yields the next older page.
	page, err = client.Logs(context.Background(), "proc-1", 10, page.NextCursor, history.Backward)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, sequences(page.Entries))
	assert.True(t, page.HasMore)

	// The final page is short and reports no more history.
	page, err = client.Logs(context.Background(), "proc-1", 10, page.NextCursor, history.Backward)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, sequences(page.Entries))
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestClient_Logs_ForwardPaging(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	srv.SetHistory(historyEntries(1, 12))

	client, err := history.NewClient(srv.URL(), "")
	require.NoError(t, err)

	page, err := client.Logs(context.Background(), "proc-1", 5, "", history.Forward)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, sequences(page.Entries))
	assert.True(t, page.HasMore)

	page, err = client.Logs(context.Background(), "proc-1", 5, page.NextCursor, history.Forward)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7, 8, 9, 10}, sequences(page.Entries))
}

func TestClient_Logs_InvalidCursor(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	srv.SetHistory(historyEntries(1, 5))

	client, err := history.NewClient(srv.URL(), "")
	require.NoError(t, err)

	_, err = client.Logs(context.Background(), "proc-1", 10, "not-a-cursor", history.Backward)
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeRequest))
	assert.Contains(t, err.Error(), "invalid cursor")
}

func TestClient_Logs_Auth(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	srv.SetToken("secret")
	srv.SetHistory(historyEntries(1, 3))

	unauthed, err := history.NewClient(srv.URL(), "")
	require.NoError(t, err)
	_, err = unauthed.Logs(context.Background(), "proc-1", 10, "", history.Backward)
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeRequest))

	authed, err := history.NewClient(srv.URL(), "secret")
	require.NoError(t, err)
	page, err := authed.Logs(context.Background(), "proc-1", 10, "", history.Backward)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 3)
}

func TestClient_Logs_RequiresProcessID(t *testing.T) {
	client, err := history.NewClient("http://127.0.0.1:0", "")
	require.NoError(t, err)

	_, err = client.Logs(context.Background(), "", 10, "", history.Backward)
	require.Error(t, err)
	assert.True(t, errors.HasType(err, errors.ErrorTypeRequest))
}

func TestClient_Logs_EmptyHistory(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	client, err := history.NewClient(srv.URL(), "")
	require.NoError(t, err)

	page, err := client.Logs(context.Background(), "proc-1", 10, "", history.Backward)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.False(t, page.HasMore)
}

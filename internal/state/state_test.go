package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *JSONStore {
	t.Helper()
	js, err := NewJSONStore(filepath.Join(t.TempDir(), "nested", "repo_state.json"))
	require.NoError(t, err)
	return js
}

func TestGetAbsentIsNotAnError(t *testing.T) {
	js := newStore(t)
	_, ok := js.Get("t1")
	assert.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	js := newStore(t)
	want := TaskState{RepoName: "llm-app-t1", RepoURL: "https://github.com/octo/llm-app-t1"}
	require.NoError(t, js.Put("t1", want))

	got, ok := js.Get("t1")
	require.True(t, ok)
	assert.Equal(t, want, got)

	reopened, err := NewJSONStore(js.Path())
	require.NoError(t, err)
	got, ok = reopened.Get("t1")
	require.True(t, ok, "state is durable across store instances")
	assert.Equal(t, want, got)
}

func TestPutOverwrites(t *testing.T) {
	js := newStore(t)
	require.NoError(t, js.Put("t1", TaskState{RepoName: "a", RepoURL: "u1"}))
	require.NoError(t, js.Put("t1", TaskState{RepoName: "b", RepoURL: "u2"}))

	got, ok := js.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "b", got.RepoName)
}

func TestDocumentLayout(t *testing.T) {
	js := newStore(t)
	require.NoError(t, js.Put("t1", TaskState{RepoName: "r", RepoURL: "u"}))

	data, err := os.ReadFile(js.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"t1":{"repo_name":"r","repo_url":"u"}}`, string(data))
}

func TestConcurrentPutsKeepEveryTask(t *testing.T) {
	js := newStore(t)
	const n = 32

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("task-%d", i)
			assert.NoError(t, js.Put(id, TaskState{RepoName: id, RepoURL: "u/" + id}))
		}(i)
	}
	wg.Wait()

	all, err := js.All()
	require.NoError(t, err)
	assert.Len(t, all, n)
}

func TestCorruptDocumentReadsAsAbsent(t *testing.T) {
	js := newStore(t)
	require.NoError(t, os.WriteFile(js.Path(), []byte("{not json"), 0o600))

	_, ok := js.Get("t1")
	assert.False(t, ok)

	require.NoError(t, js.Put("t2", TaskState{RepoName: "r2", RepoURL: "u2"}))
	got, ok := js.Get("t2")
	require.True(t, ok)
	assert.Equal(t, "r2", got.RepoName)
}

func TestPutKeepsDocumentOnReadFailure(t *testing.T) {
	js := newStore(t)
	// A directory at the state path fails to read without being corrupt.
	require.NoError(t, os.Mkdir(js.Path(), 0o755))
	marker := filepath.Join(js.Path(), "keep")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o600))

	err := js.Put("t1", TaskState{RepoName: "r1", RepoURL: "u1"})
	require.ErrorIs(t, err, ErrUnreadable)

	info, statErr := os.Stat(js.Path())
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
	assert.FileExists(t, marker)
}

func TestPutRejectsEmptyID(t *testing.T) {
	js := newStore(t)
	require.Error(t, js.Put("", TaskState{}))
}

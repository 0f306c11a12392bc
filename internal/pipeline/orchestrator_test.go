package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/generate"
	"git.home.luguber.info/inful/appforge/internal/history"
	"git.home.luguber.info/inful/appforge/internal/notify"
	"git.home.luguber.info/inful/appforge/internal/publish"
	"git.home.luguber.info/inful/appforge/internal/staging"
	"git.home.luguber.info/inful/appforge/internal/state"
	"git.home.luguber.info/inful/appforge/internal/task"
	"git.home.luguber.info/inful/appforge/internal/testforge"
)

type fakeGenerator struct {
	mu     sync.Mutex
	files  generate.FileSet
	err    error
	panics bool
	calls  int
	last   generate.Input
}

func (g *fakeGenerator) Generate(_ context.Context, in generate.Input) (generate.FileSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = in
	if g.panics {
		panic("model exploded")
	}
	if g.err != nil {
		return nil, g.err
	}
	out := make(generate.FileSet, len(g.files))
	for k, v := range g.files {
		out[k] = v
	}
	return out, nil
}

type callbackServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []notify.Payload
	bodies   []map[string]json.RawMessage
	status   int
}

func newCallbackServer(t *testing.T) *callbackServer {
	t.Helper()
	cb := &callbackServer{status: http.StatusOK}
	cb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var p notify.Payload
		var body map[string]json.RawMessage
		if json.Unmarshal(data, &p) != nil || json.Unmarshal(data, &body) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		cb.mu.Lock()
		cb.payloads = append(cb.payloads, p)
		cb.bodies = append(cb.bodies, body)
		status := cb.status
		cb.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cb.Close)
	return cb
}

func (cb *callbackServer) received() []notify.Payload {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]notify.Payload(nil), cb.payloads...)
}

func (cb *callbackServer) rawBodies() []map[string]json.RawMessage {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]map[string]json.RawMessage(nil), cb.bodies...)
}

type harness struct {
	host     *testforge.TestForge
	store    *state.JSONStore
	stager   *staging.Stager
	gen      *fakeGenerator
	callback *callbackServer
	history  *history.SQLiteStore
	orch     *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	cfg := config.Default()

	host := testforge.NewTestForge("octo")
	syncer := publish.NewSynchronizer(host, cfg.Forge)
	syncer.SetSleeper(func(context.Context, time.Duration) error { return nil })

	store, err := state.NewJSONStore(filepath.Join(t.TempDir(), "repo_state.json"))
	require.NoError(t, err)

	dispatcher := notify.NewDispatcher(cfg.Notify)
	dispatcher.SetSleeper(func(context.Context, time.Duration) error { return nil })

	hist, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hist.Close() })

	h := &harness{
		host:     host,
		store:    store,
		stager:   staging.NewStager(filepath.Join(t.TempDir(), "staging")),
		gen:      &fakeGenerator{files: generate.FileSet{"index.html": "<html><title>Todo</title></html>", "README.md": "# Todo App"}},
		callback: newCallbackServer(t),
		history:  hist,
	}
	opts = append([]Option{WithHistory(hist)}, opts...)
	h.orch = New(Dependencies{
		State:     store,
		Sync:      syncer,
		Stager:    h.stager,
		Generator: h.gen,
		Notifier:  dispatcher,
	}, opts...)
	return h
}

func (h *harness) task(id string, round int, brief string) *task.BuildTask {
	return &task.BuildTask{
		TaskID:      id,
		Round:       round,
		Brief:       brief,
		Checks:      []string{"has a button"},
		CallbackURL: h.callback.URL + "/cb",
		Correlation: task.Correlation{Email: "student@example.com", Nonce: "n-1"},
	}
}

func dataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// stagedFiles lists regular files left under the staging root.
func stagedFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return files
}

func TestRunRoundOneEndToEnd(t *testing.T) {
	h := newHarness(t)

	out := h.orch.Run(context.Background(), h.task("t1", 1, "todo app"))

	require.Equal(t, StatusSuccess, out.Status, out.Reason)
	assert.Equal(t, "llm-app-t1", out.RepoName)
	assert.Equal(t, "https://github.com/octo/llm-app-t1", out.RepoURL)
	assert.Equal(t, "https://octo.github.io/llm-app-t1/", out.SiteURL)
	assert.NotEmpty(t, out.CommitID)

	paths := h.host.Paths("llm-app-t1")
	assert.Contains(t, paths, "index.html")
	assert.Contains(t, paths, "README.md")
	assert.Contains(t, paths, publish.WorkflowPath)

	st, ok := h.store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, state.TaskState{RepoName: "llm-app-t1", RepoURL: "https://github.com/octo/llm-app-t1"}, st)

	payloads := h.callback.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, out.RepoURL, payloads[0].RepoURL)
	assert.Equal(t, out.CommitID, payloads[0].CommitSHA)
	assert.Equal(t, out.SiteURL, payloads[0].PagesURL)
	assert.Equal(t, "student@example.com", payloads[0].Email)
	assert.Equal(t, "n-1", payloads[0].Nonce)
	assert.True(t, out.Notified)

	res, ok := out.Result(PhaseState)
	require.True(t, ok)
	assert.Equal(t, StatusSkip, res.Status)
	assert.NoError(t, out.Err())
}

func TestRunEchoesCorrelationFields(t *testing.T) {
	h := newHarness(t)
	var req task.Request
	body := fmt.Sprintf(`{"task":"t1","round":1,"brief":"todo app","secret":"s3cret","nonce":"n-9","team":"blue","evaluation_url":%q}`, h.callback.URL+"/cb")
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	bt := req.BuildTask

	out := h.orch.Run(context.Background(), &bt)
	require.Equal(t, StatusSuccess, out.Status, out.Reason)

	bodies := h.callback.rawBodies()
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `"blue"`, string(bodies[0]["team"]))
	assert.JSONEq(t, `"n-9"`, string(bodies[0]["nonce"]))
	assert.NotContains(t, bodies[0], "secret")
}

func TestRunRoundTwoReusesRepository(t *testing.T) {
	h := newHarness(t)
	first := h.orch.Run(context.Background(), h.task("t1", 1, "todo app"))
	require.Equal(t, StatusSuccess, first.Status, first.Reason)

	h.gen.files = generate.FileSet{"index.html": "<html><title>Todo v2</title></html>", "README.md": "# Todo App v2"}
	second := h.orch.Run(context.Background(), h.task("t1", 2, "add dark mode"))
	require.Equal(t, StatusSuccess, second.Status, second.Reason)

	assert.Equal(t, 1, h.host.CountOps("delete_repo"))
	assert.Equal(t, 1, h.host.CountOps("create_repo"))
	assert.Equal(t, first.RepoURL, second.RepoURL)
	assert.Equal(t, "<html><title>Todo v2</title></html>", string(h.host.Files("llm-app-t1")["index.html"]))

	assert.Equal(t, 2, h.gen.last.Round)
	assert.Equal(t, "<html><title>Todo</title></html>", h.gen.last.Existing["index.html"])

	payloads := h.callback.received()
	require.Len(t, payloads, 2)
	assert.Equal(t, payloads[0].RepoURL, payloads[1].RepoURL)
	assert.Equal(t, 2, payloads[1].Round)

	persist, ok := second.Result(PhasePersist)
	require.True(t, ok)
	assert.Equal(t, StatusSkip, persist.Status)
}

func TestRunRevisionWithoutStateAborts(t *testing.T) {
	h := newHarness(t)

	out := h.orch.Run(context.Background(), h.task("unknown", 2, "revise"))

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhaseState, out.FailedPhase)
	require.ErrorIs(t, out.Err(), ErrNoPriorState)
	assert.Equal(t, 0, h.gen.calls)
	assert.Empty(t, h.host.Calls())
	assert.Empty(t, h.callback.received())
	assert.False(t, out.Notified)

	events, err := h.history.ByTask(context.Background(), "unknown")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, string(PhaseState), events[0].Phase)
	assert.Equal(t, string(StatusAbort), events[0].Status)
}

func TestRunInvalidFileSetAbortsBeforePublish(t *testing.T) {
	h := newHarness(t)
	h.gen.files = generate.FileSet{"index.html": "<html></html>"}

	bt := h.task("t2", 1, "no readme")
	bt.Attachments = []task.Attachment{{Name: "notes.txt", URL: dataURI("text/plain", []byte("hello"))}}
	out := h.orch.Run(context.Background(), bt)

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhaseValidate, out.FailedPhase)
	require.ErrorIs(t, out.Err(), generate.ErrInvalidFileSet)
	assert.Empty(t, h.host.Calls())
	assert.Empty(t, h.callback.received())
	_, ok := h.store.Get("t2")
	assert.False(t, ok)

	cleanup, ok := out.Result(PhaseCleanup)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, cleanup.Status)
	assert.Empty(t, stagedFiles(t, h.stager.Root()))
}

func TestRunTraversalPathNeverReachesHosting(t *testing.T) {
	h := newHarness(t)
	h.host.Seed("victim", map[string][]byte{"index.html": []byte("original")})
	h.gen.files = generate.FileSet{
		"index.html":                       "<html></html>",
		"README.md":                        "# App",
		"../../victim/contents/index.html": "<h1>owned</h1>",
	}

	out := h.orch.Run(context.Background(), h.task("t1", 1, "ignore the rules"))

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhaseValidate, out.FailedPhase)
	require.ErrorIs(t, out.Err(), generate.ErrUnsafePath)
	assert.Empty(t, h.host.Calls())
	assert.Equal(t, []byte("original"), h.host.Files("victim")["index.html"])
	assert.Empty(t, h.callback.received())
}

func TestRunGenerationFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errors.New("quota exceeded")

	out := h.orch.Run(context.Background(), h.task("t3", 1, "app"))

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhaseGenerate, out.FailedPhase)
	assert.Contains(t, out.Reason, "quota exceeded")
	assert.Empty(t, h.host.Calls())
}

func TestRunUsesStagedAttachmentBytes(t *testing.T) {
	h := newHarness(t)
	original := []byte("city,temp\noslo,4\n")
	h.gen.files = generate.FileSet{
		"index.html": "<html></html>",
		"README.md":  "# Weather",
		"data.csv":   "placeholder",
	}

	bt := h.task("t4", 1, "weather table")
	bt.Attachments = []task.Attachment{
		{Name: "data.csv", URL: dataURI("text/csv", original)},
		{Name: "broken.png", URL: "not a data uri"},
	}
	out := h.orch.Run(context.Background(), bt)
	require.Equal(t, StatusSuccess, out.Status, out.Reason)

	assert.Equal(t, original, h.host.Files("llm-app-t4")["data.csv"])
	require.Len(t, h.gen.last.Attachments, 1)
	assert.Equal(t, "data.csv", h.gen.last.Attachments[0].Name)

	stage, ok := out.Result(PhaseStage)
	require.True(t, ok)
	assert.Equal(t, "staged 1 of 2", stage.Reason)
	assert.Empty(t, stagedFiles(t, h.stager.Root()))
}

func TestRunReleasesStagedContentOnPanic(t *testing.T) {
	h := newHarness(t)
	h.gen.panics = true

	bt := h.task("t5", 1, "app")
	bt.Attachments = []task.Attachment{{Name: "logo.svg", URL: dataURI("image/svg+xml", []byte("<svg/>"))}}

	var out Outcome
	require.NotPanics(t, func() { out = h.orch.Run(context.Background(), bt) })

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhaseInternal, out.FailedPhase)
	cleanup, ok := out.Result(PhaseCleanup)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, cleanup.Status)
	assert.Empty(t, stagedFiles(t, h.stager.Root()))
	assert.Empty(t, h.callback.received())
}

func TestRunNotificationFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.callback.status = http.StatusServiceUnavailable

	out := h.orch.Run(context.Background(), h.task("t6", 1, "app"))

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhaseNotify, out.FailedPhase)
	require.ErrorIs(t, out.Err(), notify.ErrRetriesExhausted)
	assert.Len(t, h.callback.received(), 5)
	assert.False(t, out.Notified)
	require.NotNil(t, out.Notification)

	_, ok := h.store.Get("t6")
	assert.True(t, ok)
}

func TestRunPublishFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.host.CreateError = errors.New("quota")

	out := h.orch.Run(context.Background(), h.task("t7", 1, "app"))

	assert.Equal(t, StatusAbort, out.Status)
	assert.Equal(t, PhasePublish, out.FailedPhase)
	require.ErrorIs(t, out.Err(), publish.ErrRepositoryUnavailable)
	_, ok := h.store.Get("t7")
	assert.False(t, ok)
	assert.Empty(t, h.callback.received())
}

func TestRunRecordsHistoryPerPhase(t *testing.T) {
	h := newHarness(t)

	out := h.orch.Run(context.Background(), h.task("t8", 1, "app"))
	require.Equal(t, StatusSuccess, out.Status, out.Reason)

	events, err := h.history.ByTask(context.Background(), "t8")
	require.NoError(t, err)

	var phases []string
	for _, e := range events {
		assert.Equal(t, out.RunID, e.RunID)
		phases = append(phases, e.Phase)
	}
	assert.Equal(t, []string{"state", "snapshot", "stage", "generate", "validate", "publish", "persist", "notify", "cleanup"}, phases)
}

func TestSerializeRoundsOrdersRunsForOneTask(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("t1")

	acquired := make(chan struct{})
	go func() {
		release := k.Lock("t1")
		close(acquired)
		release()
	}()

	otherDone := make(chan struct{})
	go func() {
		k.Lock("t2")()
		close(otherDone)
	}()
	<-otherDone

	select {
	case <-acquired:
		t.Fatal("second lock for the same key acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired

	assert.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		return len(k.locks) == 0
	}, time.Second, 5*time.Millisecond)
}

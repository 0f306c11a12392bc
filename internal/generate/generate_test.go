package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appforge/internal/config"
	derrors "git.home.luguber.info/inful/appforge/internal/foundation/errors"
	"git.home.luguber.info/inful/appforge/internal/staging"
	"git.home.luguber.info/inful/appforge/internal/task"
)

func TestValidate(t *testing.T) {
	fs := FileSet{"index.html": "<html></html>", "README.md": "# X"}
	require.NoError(t, fs.Validate())

	for _, drop := range []string{"index.html", "README.md"} {
		partial := FileSet{"index.html": "<html></html>", "README.md": "# X"}
		delete(partial, drop)
		err := partial.Validate()
		require.ErrorIs(t, err, ErrInvalidFileSet, drop)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryValidation))
	}
}

func TestValidateRejectsUnsafePaths(t *testing.T) {
	for _, p := range []string{
		"../../victim/contents/index.html",
		"/etc/passwd",
		"css//site.css",
		"./app.js",
		"js/..",
		"win\\path.js",
		"nul\x00.js",
		"page.html?ref=x",
		"page.html#top",
		"",
	} {
		fs := FileSet{"index.html": "<html></html>", "README.md": "# X", p: "x"}
		err := fs.Validate()
		require.ErrorIs(t, err, ErrUnsafePath, "%q", p)
		assert.False(t, SafePath(p), "%q", p)
	}

	for _, p := range []string{"index.html", ".github/workflows/deploy.yml", "assets/img/logo 1.png", "a..b.js"} {
		assert.True(t, SafePath(p), p)
	}
}

func TestParseResponseStripsPreambleAndTrailer(t *testing.T) {
	text := "Sure! Here is your app:\n```json\n" +
		`{"index.html": "<h1>\"hi\"</h1>", "README.md": "# App\nline", "package.json": {"name": "app"}}` +
		"\n```\nEnjoy."
	fs, err := ParseResponse(text)
	require.NoError(t, err)

	assert.Equal(t, `<h1>"hi"</h1>`, fs["index.html"])
	assert.Equal(t, "# App\nline", fs["README.md"])
	assert.Equal(t, `{"name":"app"}`, fs["package.json"])
	require.NoError(t, fs.Validate())
	assert.Equal(t, []string{"README.md", "index.html", "package.json"}, fs.Paths())
}

func TestParseResponseFailures(t *testing.T) {
	for _, text := range []string{"no json here", `{"index.html": `, "[1,2]"} {
		_, err := ParseResponse(text)
		require.ErrorIs(t, err, ErrNoJSONObject, text)
	}
}

func stage(t *testing.T, atts ...task.Attachment) []staging.Staged {
	t.Helper()
	s := staging.NewStager(t.TempDir())
	staged := s.Stage("t1", atts)
	t.Cleanup(func() { s.Release(staged) })
	return staged
}

func dataURI(mt, body string) string {
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "No attachments provided.\n", Summarize(nil))

	long := strings.Repeat("a", 600)
	staged := stage(t,
		task.Attachment{Name: "data.csv", URL: dataURI("text/csv", long)},
		task.Attachment{Name: "logo.png", URL: dataURI("image/png", "\x89PNG")},
		task.Attachment{Name: "page.html", URL: dataURI("text/html", "<html><style>p{}</style><body><p>Hello  there</p></body></html>")},
	)
	require.Len(t, staged, 3)

	summary := Summarize(staged)
	assert.Contains(t, summary, "- Filename: 'data.csv'. Content preview: '"+strings.Repeat("a", 500)+"...'")
	assert.NotContains(t, summary, strings.Repeat("a", 501))
	assert.Contains(t, summary, `<img src="logo.png" alt="Logo">`)
	assert.Contains(t, summary, "Content preview: 'Hello there...'")
}

func TestBuildPromptRevisionExcludesWorkflow(t *testing.T) {
	prompt := BuildPrompt(Input{
		Brief:  "add dark mode",
		Checks: []string{"has a toggle", "persists choice"},
		Round:  2,
		Existing: map[string]string{
			"index.html":                   "<html>old</html>",
			".github/workflows/deploy.yml": "name: Deploy",
		},
	})
	assert.Contains(t, prompt, "add dark mode")
	assert.Contains(t, prompt, "- has a toggle\n- persists choice\n")
	assert.Contains(t, prompt, "This is a revision request")
	assert.Contains(t, prompt, "--- START FILE: index.html ---\n<html>old</html>\n--- END FILE: index.html ---")
	assert.NotContains(t, prompt, "deploy.yml")

	first := BuildPrompt(Input{Brief: "todo app", Round: 1, Existing: map[string]string{"index.html": "x"}})
	assert.NotContains(t, first, "revision request")
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "a", truncate("aé", 2), "multi-byte rune is not split")
	assert.Equal(t, "abc", truncate("abc", 10))
}

func TestGeminiClientGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		reply := `Here you go {"index.html": "<html></html>", "README.md": "# X"}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"parts": []any{map[string]any{"text": reply}}},
				"finishReason": "STOP",
			}},
		})
	}))
	defer srv.Close()

	c := NewGeminiClient(config.GenerationConfig{APIURL: srv.URL + "/v1beta/", APIKey: "k", Model: "gemini-2.5-flash", Timeout: time.Second})
	fs, err := c.Generate(context.Background(), Input{Brief: "todo app", Round: 1})
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", gotPath)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMimeType)
	require.Len(t, gotBody.Contents, 1)
	assert.Contains(t, gotBody.Contents[0].Parts[0].Text, "todo app")
	assert.Equal(t, FileSet{"index.html": "<html></html>", "README.md": "# X"}, fs)
}

func TestGeminiClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeminiClient(config.GenerationConfig{APIURL: srv.URL, APIKey: "k", Model: "m", Timeout: time.Second})
	_, err := c.Generate(context.Background(), Input{Brief: "x"})
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryGeneration))

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer empty.Close()
	c = NewGeminiClient(config.GenerationConfig{APIURL: empty.URL, APIKey: "k", Model: "m", Timeout: time.Second})
	_, err = c.Generate(context.Background(), Input{Brief: "x"})
	require.Error(t, err)
}

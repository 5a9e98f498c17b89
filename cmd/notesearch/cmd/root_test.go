package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/notesearch/internal/errors"
	"github.com/Aman-CERP/notesearch/internal/guard"
	"github.com/Aman-CERP/notesearch/pkg/version"
)

// testEnv isolates configuration and the index location for one test.
type testEnv struct {
	configDir string
	userDir   string
	notesDir  string
}

func newTestEnv(t *testing.T, backend string) testEnv {
	t.Helper()
	env := testEnv{
		configDir: t.TempDir(),
		userDir:   t.TempDir(),
		notesDir:  t.TempDir(),
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NOTESEARCH_USER_DIR", env.userDir)
	t.Setenv("NOTESEARCH_BACKEND", backend)
	t.Setenv("NOTESEARCH_ANALYZER", "")
	t.Setenv("NOTESEARCH_PERMITS", "")
	t.Setenv("NOTESEARCH_ACQUIRE_TIMEOUT", "")
	t.Setenv("NOTESEARCH_LOG_LEVEL", "error")

	write := func(rel, content string) {
		abs := filepath.Join(env.notesDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	write("inbox.md", "# Inbox\nmilk")
	write("work/standup.md", "# Standup\nparser done")
	write("ideas.txt", "compile notes to html")
	return env
}

func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := e.runCapture(t, args...)
	return out, err
}

// runCapture runs the command and returns stdout and stderr separately.
func (e testEnv) runCapture(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config-dir", e.configDir}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e testEnv) stats(t *testing.T) StatsOutput {
	t.Helper()
	out, err := e.run(t, "stats", "--json")
	require.NoError(t, err)
	var s StatsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	return s
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"index", "watch", "delete", "clear", "optimize", "stats", "config", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, root.PersistentFlags().Lookup("config-dir"))
}

func TestVersionCmd(t *testing.T) {
	// Given: a config dir with an invalid config, which version ignores
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".notesearch.yaml"), []byte("index: [broken"), 0o644))
	env := testEnv{configDir: dir}

	out, err := env.run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)

	out, err = env.run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestIndexStatsDeleteClear(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			env := newTestEnv(t, backend)

			// When: indexing the notes directory
			out, err := env.run(t, "index", env.notesDir)
			require.NoError(t, err)
			assert.Contains(t, out, "Indexed 3 notes")

			// Then: stats reports the documents and the index location
			s := env.stats(t)
			assert.Equal(t, 3, s.Documents)
			assert.Equal(t, backend, s.Backend)
			assert.Equal(t, 5, s.Permits)

			// When: a note is deleted by path
			_, err = env.run(t, "delete", "work/standup.md")
			require.NoError(t, err)
			assert.Equal(t, 2, env.stats(t).Documents)

			// When: the index is optimized and cleared
			_, err = env.run(t, "optimize")
			require.NoError(t, err)
			_, err = env.run(t, "clear")
			require.NoError(t, err)
			assert.Equal(t, 0, env.stats(t).Documents)
		})
	}
}

func TestIndexCmd_TraceWritesToStderr(t *testing.T) {
	for _, backend := range []string{"bleve", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			env := newTestEnv(t, backend)

			out, errOut, err := env.runCapture(t, "index", "--trace", env.notesDir)

			require.NoError(t, err)
			assert.Contains(t, out, "Indexed 3 notes")
			assert.Contains(t, errOut, "msg=update_document")
			assert.Contains(t, errOut, "msg=commit")
			assert.Contains(t, errOut, "backend="+backend)
		})
	}
}

func TestIndexCmd_NoTraceByDefault(t *testing.T) {
	env := newTestEnv(t, "sqlite")

	_, errOut, err := env.runCapture(t, "index", env.notesDir)

	require.NoError(t, err)
	assert.NotContains(t, errOut, "update_document")
}

func TestIndexCmd_RebuildJSON(t *testing.T) {
	env := newTestEnv(t, "sqlite")
	_, err := env.run(t, "index", env.notesDir)
	require.NoError(t, err)

	out, err := env.run(t, "index", "--rebuild", "--json", env.notesDir)
	require.NoError(t, err)

	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats["indexed"])
	assert.Equal(t, 3, env.stats(t).Documents)
}

func TestIndexCmd_MissingDirectory(t *testing.T) {
	env := newTestEnv(t, "bleve")

	_, err := env.run(t, "index", filepath.Join(env.notesDir, "nope"))

	assert.Error(t, err)
}

func TestRootCmd_InvalidConfigIsConfigError(t *testing.T) {
	env := newTestEnv(t, "lucene")

	_, err := env.run(t, "stats")

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, errors.FormatForCLI(err), "Hint:")
}

func TestConfigCmd_ShowAndInit(t *testing.T) {
	env := newTestEnv(t, "sqlite")

	out, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: sqlite")

	out, err = env.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, ".notesearch.yaml")
	assert.FileExists(t, filepath.Join(env.configDir, ".notesearch.yaml"))

	_, err = env.run(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = env.run(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := guard.NewMetrics(reg)
	m.Commits.Add(2)

	srv, err := serveMetrics("127.0.0.1:0", reg, quietLogger())
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + srv.Addr + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "notesearch_index_writer_commits_total 2")
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemirror/internal/config"
	"github.com/JakeFAU/sitemirror/internal/mirror"
)

func TestMain(m *testing.M) {
	newLogger = func(config.LoggingConfig) (*zap.Logger, error) {
		return zap.NewNop(), nil
	}
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><head><link rel="stylesheet" href="/style.css"></head>`+
			`<body><a href="/about">About</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><body><a href="/">Home</a></body></html>`)
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = fmt.Fprint(w, `body { color: black; }`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailure, exitCode(errors.New("boom")))
	malformed := fmt.Errorf("init: %w", &mirror.MalformedInputError{Input: "x", Reason: "no scheme"})
	assert.Equal(t, exitMalformedInput, exitCode(malformed))
}

func TestMirrorRejectsMalformedBase(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"", "ftp://example.com/", "https://", "not a url"} {
		t.Run(base, func(t *testing.T) {
			t.Parallel()
			out := t.TempDir()
			code, _, stderr := execute(t, "mirror", "--base", base, "--out", out)
			assert.Equal(t, exitMalformedInput, code)
			assert.Contains(t, stderr, "Error:")

			entries, err := os.ReadDir(out)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestMirrorRequiresOutputDir(t *testing.T) {
	t.Parallel()

	code, _, stderr := execute(t, "mirror", "--base", "https://example.com/")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, config.ErrMissingOutputDir.Error())
}

func TestRewriteRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	code, _, stderr := execute(t, "rewrite", "--dir", t.TempDir(), "--mode", "shiny")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "rewrite.mode")
}

func TestRewriteRequiresExistingDir(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope")
	code, _, stderr := execute(t, "rewrite", "--dir", missing)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "does not exist")
	assert.NoDirExists(t, missing)
}

func TestMirrorThenRewrite(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	out := t.TempDir()

	code, stdout, stderr := execute(t, "mirror",
		"--base", srv.URL+"/",
		"--out", out,
		"--delay", "0s",
		"--concurrency", "2",
		"--metrics-addr", "127.0.0.1:0",
		"--progress",
	)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Done. Pages: 2, Assets: 1")
	assert.Contains(t, stderr, "pages")
	assert.FileExists(t, filepath.Join(out, "index.html"))
	assert.FileExists(t, filepath.Join(out, "about.html"))
	assert.FileExists(t, filepath.Join(out, "style.css"))
	assert.FileExists(t, filepath.Join(out, mirror.ManifestName))

	code, stdout, stderr = execute(t, "rewrite", "--dir", out, "--mode", "localize")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Mode: localize")

	// #nosec G304 -- test reads from the controlled temp directory.
	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.NotContains(t, string(index), `href="/about"`)
	assert.NotContains(t, string(index), `href="/style.css"`)
	assert.Contains(t, string(index), "about.html")
	assert.Contains(t, string(index), "style.css")
}

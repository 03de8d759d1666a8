package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pokerjest/acms/internal/config"
	"github.com/pokerjest/acms/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = bytes.Repeat([]byte("0123456789"), 1000)

func newTestDownloader() *HTTPDownloader {
	return NewHTTPDownloader(config.DownloadConfig{Timeout: 5 * time.Second, UserAgent: "acms-test"}, logger.Nop())
}

func contentServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "old" {
			http.Error(w, "token expired", http.StatusForbidden)
			return
		}
		if r.URL.Path == "/forbidden" {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		w.Header().Set("X-Seen-Debug", r.Header.Get("X-Debug-Mode"))
		http.ServeContent(w, r, "001.mp4", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFull(t *testing.T) {
	srv := contentServer(t)
	dest := filepath.Join(t.TempDir(), "videos", "001.mp4")

	var last int64
	res, err := newTestDownloader().Fetch(context.Background(), srv.URL+"/001.mp4", dest, Options{
		Progress: func(downloaded, total int64) { last = downloaded },
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), res.TotalSize)
	assert.Equal(t, int64(len(payload)), last)
	assert.False(t, res.Resumed)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchResumesPartialFile(t *testing.T) {
	srv := contentServer(t)
	dest := filepath.Join(t.TempDir(), "001.mp4")
	require.NoError(t, os.WriteFile(dest, payload[:4000], 0644))

	res, err := newTestDownloader().Fetch(context.Background(), srv.URL+"/001.mp4", dest, Options{})
	require.NoError(t, err)
	assert.True(t, res.Resumed)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchExpiredTokenizedLink(t *testing.T) {
	srv := contentServer(t)
	dest := filepath.Join(t.TempDir(), "001.mp4")

	_, err := newTestDownloader().Fetch(context.Background(), srv.URL+"/001.mp4?token=old&hash=abc", dest, Options{})
	require.Error(t, err)
	assert.True(t, IsExpired(err))
	assert.True(t, strings.HasPrefix(Message("video", err), ExpiredPrefix))
}

func TestFetchForbiddenPlainLinkIsNotExpiry(t *testing.T) {
	srv := contentServer(t)
	_, err := newTestDownloader().Fetch(context.Background(), srv.URL+"/forbidden", filepath.Join(t.TempDir(), "x"), Options{})
	require.Error(t, err)
	assert.False(t, IsExpired(err))

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, KindHTTP, de.Kind)
	assert.Equal(t, http.StatusForbidden, de.StatusCode)
}

func TestClassify(t *testing.T) {
	tok := "https://dl.example.com/a.mp4?token=t&hash=h"
	plain := "https://dl.example.com/a.mp4"

	assert.Equal(t, KindLinkExpired, classify(tok, 410, nil).Kind)
	assert.Equal(t, KindLinkExpired, classify(tok, 404, errors.New("bad token")).Kind)
	assert.Equal(t, KindHTTP, classify(tok, 404, errors.New("not found")).Kind)
	assert.Equal(t, KindLinkExpired, classify(tok, 0, errors.New("Signature mismatch")).Kind)
	assert.Equal(t, KindNetwork, classify(plain, 0, errors.New("connection reset")).Kind)
	assert.Equal(t, KindHTTP, classify(plain, 401, nil).Kind)
}

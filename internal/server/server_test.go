package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"document-processor/internal/chunker"
	"document-processor/internal/config"
	"document-processor/internal/jobs"
	"document-processor/internal/llmservice"
	"document-processor/internal/llmservice/llmtest"
	"document-processor/internal/pricing"
	"document-processor/internal/processor"
	"document-processor/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv     *Server
	manager *jobs.Manager
	fake    *llmtest.Fake
	cfg     *config.Config
}

func newTestServer(t *testing.T, factory jobs.ClientFactory) testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StateDir = filepath.Join(dir, "states")
	cfg.ChunkDir = filepath.Join(dir, "chunks")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.Server.MaxUploadMB = 1

	table := pricing.Default()
	store, err := state.NewStore(cfg.StateDir, table)
	require.NoError(t, err)
	cache, err := chunker.NewCache(cfg.ChunkDir, 4)
	require.NoError(t, err)

	fake := llmtest.New()
	if factory == nil {
		factory = func(string, llmservice.Options) (llmservice.Client, error) { return fake, nil }
	}
	manager, err := jobs.NewManager(cfg, processor.NewPipeline(cache, store, 10), jobs.NewRegistry(), jobs.Deps{NewClient: factory})
	require.NoError(t, err)

	srv, err := New(cfg, manager, table)
	require.NoError(t, err)
	return testServer{srv: srv, manager: manager, fake: fake, cfg: cfg}
}

func uploadRequest(t *testing.T, name string, body []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUploadProcessDownload(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(uploadRequest(t, "report.txt", []byte("first part\n\nsecond part"), map[string]string{
		"model":      "gpt-4o-mini",
		"api_key":    "sk-test",
		"chunk_size": "12",
		"prompt":     "Summarize: {chunk_text}",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[jobResponse](t, rec)
	require.NotEmpty(t, resp.JobID)

	ts.manager.Wait()

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/status/"+resp.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[jobs.Snapshot](t, rec)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)
	assert.Equal(t, "report.txt", snap.FileName)
	assert.Equal(t, 2, snap.TotalChunks)
	assert.Equal(t, 2, snap.ProcessedChunks)

	reqs := ts.fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "Summarize: first part", reqs[0].Messages[0].Text)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/download/"+resp.JobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="report_results.json"`)
	assert.Contains(t, rec.Body.String(), `"response 1"`)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]jobs.Snapshot](t, rec), 1)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/pause/"+resp.JobID, nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadRejects(t *testing.T) {
	ts := newTestServer(t, llmservice.New)

	tests := []struct {
		name   string
		file   string
		fields map[string]string
		code   int
		errMsg string
	}{
		{"no file", "", nil, http.StatusBadRequest, "no file provided"},
		{"bad extension", "virus.exe", map[string]string{"api_key": "k"}, http.StatusBadRequest, "unsupported file type"},
		{"missing credentials", "a.txt", map[string]string{"model": "claude-haiku-4"}, http.StatusBadRequest, "missing api credentials"},
		{"unknown model", "a.txt", map[string]string{"model": "gpt-2", "api_key": "k"}, http.StatusBadRequest, "unknown model"},
		{"bad overlap", "a.txt", map[string]string{"chunk_size": "10", "chunk_overlap": "10"}, http.StatusBadRequest, "overlap"},
		{"overlap beyond default size", "a.txt", map[string]string{"chunk_overlap": "90000", "api_key": "k"}, http.StatusBadRequest, "overlap"},
		{"bad number", "a.txt", map[string]string{"max_output": "lots"}, http.StatusBadRequest, "max_output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(uploadRequest(t, tt.file, []byte("hello"), tt.fields))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, strings.ToLower(rec.Body.String()), tt.errMsg)
		})
	}

	files, err := filepath.Glob(filepath.Join(ts.cfg.UploadDir, "*"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(uploadRequest(t, "big.txt", bytes.Repeat([]byte("x"), 2<<20), map[string]string{"api_key": "k"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestJobControlErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/cancel/nope", "/pause/nope", "/resume/nope"} {
		rec := ts.do(httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/status/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/download/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadBeforeCompletion(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.fake.FailOn = 0

	rec := ts.do(uploadRequest(t, "a.md", []byte("# Title\n\nBody"), map[string]string{"model": "gpt-4o", "api_key": "k"}))
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[jobResponse](t, rec).JobID
	ts.manager.Wait()

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/download/"+id, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/status/"+id, nil))
	snap := decode[jobs.Snapshot](t, rec)
	assert.Equal(t, jobs.StatusFailed, snap.Status)
	assert.NotEmpty(t, snap.Error)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/cancel/"+id, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/status/"+id, nil))
	assert.Equal(t, jobs.StatusCancelled, decode[jobs.Snapshot](t, rec).Status)
}

func TestModelsAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]pricing.Entry](t, rec)
	assert.Len(t, entries, len(pricing.Default().Models()))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

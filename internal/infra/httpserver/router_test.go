package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appscans "github.com/bryanwahyu/sonarscan-api/internal/application/scans"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/report"
	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
	"github.com/bryanwahyu/sonarscan-api/internal/middleware"
)

// fakeBackend knows a set of projects; indexed controls whether the
// quality gate has left NONE.
type fakeBackend struct {
	mu      sync.Mutex
	known   map[string]bool
	indexed bool
}

func (b *fakeBackend) add(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.known[key] = true
}

func (b *fakeBackend) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.known[key]
}

func (b *fakeBackend) Component(ctx context.Context, key, token string) report.Result[report.Component] {
	if !b.has(key) {
		return report.Fail[report.Component]("GET /api/components/show: 404 Not Found")
	}
	return report.Ok(report.Component{Key: key, Name: "Demo"})
}

func (b *fakeBackend) LatestAnalysis(ctx context.Context, key, token string) report.Result[[]report.Analysis] {
	return report.Ok([]report.Analysis{{Key: "AX1", Date: "2024-01-01T00:00:00+0000"}})
}

func (b *fakeBackend) Measures(ctx context.Context, key, token string) report.Result[[]report.Measure] {
	return report.Ok([]report.Measure{{Metric: "bugs", Value: []byte(`"1"`)}})
}

func (b *fakeBackend) Issues(ctx context.Context, key, token string) report.Result[[]report.RawIssue] {
	return report.Ok([]report.RawIssue{{Key: "I1", Type: "BUG", Message: "x < y && y > z"}})
}

func (b *fakeBackend) QualityGate(ctx context.Context, key, token string) report.Result[report.ProjectStatus] {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := report.StatusNone
	if b.indexed {
		status = "OK"
	}
	return report.Ok(report.ProjectStatus{Status: status})
}

type fakeWorkspaces struct {
	mu   sync.Mutex
	last domain.ScanRequest
	body string
}

func (f *fakeWorkspaces) Prepare(ctx context.Context, key string, req domain.ScanRequest) (*domain.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = req
	if req.Archive != nil {
		if len(req.Archive.Parts) > 1 {
			return nil, domain.ErrTooManyFiles
		}
		rc, err := req.Archive.Parts[0].Open()
		if err != nil {
			return nil, err
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		f.body = string(b)
	}
	mode, _ := req.Mode()
	return domain.NewWorkspace("/tmp/ws_"+key, mode, nil), nil
}

func (f *fakeWorkspaces) seen() (domain.ScanRequest, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.body
}

// fakeRunner registers the project with the backend, as a real scan would.
type fakeRunner struct {
	backend *fakeBackend
	out     domain.ScanOutcome
}

func (f *fakeRunner) Run(ctx context.Context, req domain.RunRequest) (domain.ScanOutcome, error) {
	if f.out.Succeeded {
		f.backend.add(req.Identity.Key)
	}
	return f.out, nil
}

type harness struct {
	srv     *httptest.Server
	backend *fakeBackend
	ws      *fakeWorkspaces
	runner  *fakeRunner
}

func newHarness(t *testing.T, maxUpload int64) *harness {
	t.Helper()
	backend := &fakeBackend{known: map[string]bool{}, indexed: true}
	h := &harness{
		backend: backend,
		ws:      &fakeWorkspaces{},
		runner: &fakeRunner{backend: backend, out: domain.ScanOutcome{
			Succeeded: true,
			Stdout:    "INFO: ANALYSIS SUCCESSFUL",
		}},
	}
	svc := &appscans.Service{
		Workspaces: h.ws,
		Runner:     h.runner,
		Backend:    backend,
		Retry:      appscans.RetryPolicy{Interval: time.Millisecond, MaxWait: 5 * time.Millisecond},
	}
	h.srv = httptest.NewServer(NewRouter(Deps{
		Scans:          svc,
		SonarHost:      "http://sonar:9000",
		MaxUploadBytes: maxUpload,
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, contentType string, body io.Reader) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set(middleware.TokenHeader, "squ_token")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (h *harness) postJSON(t *testing.T, body string) (*http.Response, map[string]any) {
	return h.do(t, http.MethodPost, "/scan", "application/json", strings.NewReader(body))
}

func TestRouter_TestEndpointIsOpen(t *testing.T) {
	h := newHarness(t, 0)
	resp, err := http.Get(h.srv.URL + "/test")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Sonar API is running!", body["message"])
	assert.Equal(t, "http://sonar:9000", body["sonar_host"])
}

func TestRouter_MissingTokenHeader(t *testing.T) {
	h := newHarness(t, 0)
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/scan"},
		{http.MethodGet, "/report/x"},
		{http.MethodGet, "/report/x/insights"},
		{http.MethodGet, "/scans"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, h.srv.URL+tt.path, strings.NewReader(`{}`))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			raw, _ := io.ReadAll(resp.Body)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.JSONEq(t, `{"error":"`+domain.MsgMissingHeader+`"}`, string(raw))
		})
	}
}

func TestRouter_OperationalEndpointsAreOpen(t *testing.T) {
	h := newHarness(t, 0)
	for _, path := range []string{"/health", "/livez", "/metrics"} {
		resp, err := http.Get(h.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRouter_ScanInlineReady(t *testing.T) {
	h := newHarness(t, 0)
	h.runner.out.Stderr = "WARN: deprecated property"

	resp, body := h.postJSON(t, `{"code":"print(1)","filename":"main.py","project_key":"demo","project_name":"Demo"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	for _, k := range []string{"project", "metrics_summary", "issues", "quality_gate_status"} {
		assert.Contains(t, body, k)
	}
	assert.Equal(t, "WARN: deprecated property", body["scanner_stderr_warnings"])
	assert.NotContains(t, body, "warning")

	project := body["project"].(map[string]any)
	assert.Equal(t, "AX1", project["analysis_id"])
	last, _ := h.ws.seen()
	require.NotNil(t, last.Inline)
	assert.Equal(t, "main.py", last.Inline.Filename)
}

func TestRouter_ScanNotIndexedIsAccepted(t *testing.T) {
	h := newHarness(t, 0)
	h.backend.indexed = false

	resp, body := h.postJSON(t, `{"code":"x","project_key":"slow","project_name":"Slow"}`)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, domain.MsgStillProcessing, body["warning"])
	assert.NotContains(t, body, "scanner_stderr_warnings")
}

func TestRouter_ScanDuplicateProject(t *testing.T) {
	h := newHarness(t, 0)
	h.backend.add("demo")

	resp, body := h.postJSON(t, `{"code":"x","project_key":"demo","project_name":"Demo"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Project 'demo' already exists. Please use a different project_key.", body["error"])
}

func TestRouter_ScanRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"not json", `git_url=x`, domain.MsgInvalidRequest},
		{"no source", `{"project_key":"a","project_name":"A"}`, domain.MsgInvalidPayload},
		{"missing name", `{"code":"x","project_key":"a"}`, domain.MsgMissingName},
		{"option injection", `{"git_url":"--upload-pack=touch","project_name":"A"}`, "invalid git_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			resp, body := h.postJSON(t, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestRouter_ScanFailureCarriesScannerOutput(t *testing.T) {
	h := newHarness(t, 0)
	h.runner.out = domain.ScanOutcome{Stdout: "ERROR: boom", Stderr: "trace"}

	resp, body := h.postJSON(t, `{"code":"x","project_key":"bad","project_name":"Bad"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, domain.MsgScanFailed, body["error"])
	assert.Equal(t, "ERROR: boom", body["scanner_stdout"])
	assert.Equal(t, "trace", body["scanner_stderr"])
}

func TestRouter_ScanFailureKeepsEmptyStream(t *testing.T) {
	h := newHarness(t, 0)
	h.runner.out = domain.ScanOutcome{Stderr: "boom\n", ExitCode: 1}

	resp, body := h.postJSON(t, `{"code":"x","project_key":"quiet","project_name":"Quiet"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, body, "scanner_stdout")
	assert.Equal(t, "", body["scanner_stdout"])
	assert.Equal(t, "boom\n", body["scanner_stderr"])
}

func TestDomainError_CloneFailedCarriesBothStreams(t *testing.T) {
	status, body := domainError(domain.CloneFailed("", "fatal: repository not found", errors.New("exit status 128")))

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{
		"error": "Failed to clone git repository",
		"details": "fatal: repository not found",
		"scanner_stdout": "",
		"scanner_stderr": "fatal: repository not found"
	}`, string(raw))
}

func TestDomainError_ValidationHasNoStreams(t *testing.T) {
	_, body := domainError(domain.Validation(domain.MsgMissingName))

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"`+domain.MsgMissingName+`"}`, string(raw))
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte(content))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestRouter_ScanUpload(t *testing.T) {
	h := newHarness(t, 0)
	buf, ct := multipartBody(t, map[string]string{"project_name": "Upload"}, map[string]string{"bundle.zip": "PK-zip-bytes"})

	resp, _ := h.do(t, http.MethodPost, "/scan", ct, buf)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	last, content := h.ws.seen()
	require.NotNil(t, last.Archive)
	require.Len(t, last.Archive.Parts, 1)
	assert.Equal(t, "bundle.zip", last.Archive.Parts[0].Filename)
	assert.Equal(t, "PK-zip-bytes", content)
	assert.True(t, h.backend.has("bundle"))
}

func TestRouter_ScanUploadTwoFiles(t *testing.T) {
	h := newHarness(t, 0)
	buf, ct := multipartBody(t, map[string]string{"project_key": "two", "project_name": "Two"},
		map[string]string{"a.zip": "a", "b.zip": "b"})

	resp, body := h.do(t, http.MethodPost, "/scan", ct, buf)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.MsgTooManyFiles, body["error"])
}

func TestRouter_ScanUploadEmptyFilename(t *testing.T) {
	h := newHarness(t, 0)
	buf, ct := multipartBody(t, map[string]string{"project_key": "k", "project_name": "K", "file": ""}, nil)

	resp, body := h.do(t, http.MethodPost, "/scan", ct, buf)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, domain.MsgNoFileSelected, body["error"])
}

func TestRouter_ScanUploadTooLarge(t *testing.T) {
	h := newHarness(t, 64)
	buf, ct := multipartBody(t, map[string]string{"project_name": "Big"},
		map[string]string{"big.zip": strings.Repeat("x", 4096)})

	resp, _ := h.do(t, http.MethodPost, "/scan", ct, buf)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRouter_Report(t *testing.T) {
	h := newHarness(t, 0)

	resp, body := h.do(t, http.MethodGet, "/report/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, domain.MsgReportNotFound, body["error"])

	h.backend.add("demo")
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/report/demo", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.TokenHeader, "squ_token")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	// HTML escaping is off
	assert.Contains(t, string(raw), `"message":"x < y && y > z"`)
}

func TestRouter_InsightsDisabled(t *testing.T) {
	h := newHarness(t, 0)
	resp, _ := h.do(t, http.MethodGet, "/report/demo/insights", "", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestRouter_HistoryWithoutDatabase(t *testing.T) {
	h := newHarness(t, 0)
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/scans?limit=5", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.TokenHeader, "squ_token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newHarness(t, 0)
	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/scan", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", middleware.TokenHeader)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

package sonarqube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second)
}

func TestClient_BasicAuthWithEmptyPassword(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "squ_token" || pass != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"component":{"key":"demo","name":"Demo","qualifier":"TRK"}}`))
	})

	res := c.Component(context.Background(), "demo", "squ_token")
	require.True(t, res.OK(), res.Err)
	assert.Equal(t, "Demo", res.Value.Name)
}

func TestClient_QueryParameters(t *testing.T) {
	seen := map[string]string{}
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Path] = r.URL.RawQuery
		switch r.URL.Path {
		case "/api/project_analyses/search":
			_, _ = w.Write([]byte(`{"analyses":[{"key":"AX1","date":"2024-01-01T00:00:00+0000"}]}`))
		case "/api/measures/component":
			_, _ = w.Write([]byte(`{"component":{"measures":[{"metric":"bugs","value":"3"}]}}`))
		case "/api/issues/search":
			_, _ = w.Write([]byte(`{"issues":[{"key":"I1","type":"BUG","line":4}]}`))
		case "/api/qualitygates/project_status":
			_, _ = w.Write([]byte(`{"projectStatus":{"status":"OK","conditions":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	analyses := c.LatestAnalysis(ctx, "demo", "t")
	require.True(t, analyses.OK(), analyses.Err)
	assert.Equal(t, "AX1", analyses.Value[0].Key)

	measures := c.Measures(ctx, "demo", "t")
	require.True(t, measures.OK(), measures.Err)
	assert.JSONEq(t, `"3"`, string(measures.Value[0].Value))

	issues := c.Issues(ctx, "demo", "t")
	require.True(t, issues.OK(), issues.Err)
	require.NotNil(t, issues.Value[0].Line)
	assert.Equal(t, 4, *issues.Value[0].Line)

	gate := c.QualityGate(ctx, "demo", "t")
	require.True(t, gate.OK(), gate.Err)
	assert.Equal(t, "OK", gate.Value.Status)

	assert.Equal(t, "project=demo&ps=1", seen["/api/project_analyses/search"])
	assert.Equal(t, "component=demo&metricKeys=bugs%2Cvulnerabilities%2Ccode_smells%2Cduplicated_lines_density%2Ccoverage%2Cncloc%2Csqale_index",
		seen["/api/measures/component"])
	assert.Equal(t, "componentKeys=demo&ps=500", seen["/api/issues/search"])
	assert.Equal(t, "projectKey=demo", seen["/api/qualitygates/project_status"])
}

func TestClient_NotFoundCarriesBackendMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"msg":"Component key 'demo' not found"}]}`))
	})

	res := c.Component(context.Background(), "demo", "t")
	assert.False(t, res.OK())
	assert.Contains(t, res.Err, "404")
	assert.Contains(t, res.Err, "Component key 'demo' not found")
}

func TestClient_EmptyComponentIsFailure(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	res := c.Component(context.Background(), "demo", "t")
	assert.False(t, res.OK())
}

func TestClient_TimeoutIsFailureNotPanic(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewClient(srv.URL, 50*time.Millisecond)
	res := c.QualityGate(context.Background(), "demo", "t")
	assert.False(t, res.OK())
	assert.NotEmpty(t, res.Err)
}

func TestClient_MalformedBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	res := c.Issues(context.Background(), "demo", "t")
	assert.False(t, res.OK())
	assert.Contains(t, res.Err, "decode /api/issues/search")
}

func TestClient_Check(t *testing.T) {
	var status atomic.Value
	status.Store("UP")
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/system/status", r.URL.Path)
		_, _, hasAuth := r.BasicAuth()
		assert.False(t, hasAuth)
		_, _ = w.Write([]byte(`{"status":"` + status.Load().(string) + `"}`))
	})

	assert.NoError(t, c.Check(context.Background()))
	status.Store("STARTING")
	assert.EqualError(t, c.Check(context.Background()), "sonarqube status STARTING")
}

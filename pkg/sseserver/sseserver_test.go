package sseserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/forge/internal/config"
	"github.com/ternarybob/forge/pkg/appfsm"
	"github.com/ternarybob/forge/pkg/toolproc"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.AuthToken = ""
	cfg.Security.CORSEnabled = false
	return cfg
}

func TestUnifiedDiffFilesProducesGitStyleHeader(t *testing.T) {
	before := map[string]string{"src/a.ts": "line1\nline2\n"}
	after := map[string]string{"src/a.ts": "line1\nline2\nline3\n"}

	diff := unifiedDiffFiles(before, after)
	assert.Contains(t, diff, "diff --git a/src/a.ts b/src/a.ts")
	assert.Contains(t, diff, "+line3")
}

func TestUnifiedDiffFilesSkipsUnchangedFiles(t *testing.T) {
	same := map[string]string{"README.md": "hello\n"}
	diff := unifiedDiffFiles(same, same)
	assert.Empty(t, diff)
}

func TestDiffStatCountsInsertionsAndDeletions(t *testing.T) {
	before := map[string]string{"a.ts": "one\ntwo\n"}
	after := map[string]string{"a.ts": "one\nthree\n"}

	stats := diffStat(unifiedDiffFiles(before, after))
	require.Len(t, stats, 1)
	assert.Equal(t, "a.ts", stats[0].Path)
	assert.Positive(t, stats[0].Insertions)
	assert.Positive(t, stats[0].Deletions)
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(testConfig(), toolproc.NewRegistry(func() appfsm.Actors { return appfsm.Actors{} }), nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	cfg := testConfig()
	cfg.API.AuthToken = "secret"
	s := NewServer(cfg, toolproc.NewRegistry(func() appfsm.Actors { return appfsm.Actors{} }), nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/message", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAllowsHealthWithoutToken(t *testing.T) {
	cfg := testConfig()
	cfg.API.AuthToken = "secret"
	s := NewServer(cfg, toolproc.NewRegistry(func() appfsm.Actors { return appfsm.Actors{} }), nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveSessionCreatesNewSession(t *testing.T) {
	registry := toolproc.NewRegistry(func() appfsm.Actors { return appfsm.Actors{} })
	s := &Server{cfg: testConfig(), registry: registry}

	sess, isNew, err := s.resolveSession(Request{ApplicationID: "app-1", TraceID: "trace-1"})
	require.NoError(t, err)
	assert.True(t, isNew)
	require.NotNil(t, sess)

	sess2, isNew2, err := s.resolveSession(Request{ApplicationID: "app-1", TraceID: "trace-1"})
	require.NoError(t, err)
	assert.False(t, isNew2)
	assert.Same(t, sess, sess2)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", bearerToken(req))

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", bearerToken(req2))
}

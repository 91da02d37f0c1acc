package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HanTheDev/relationship-coach-api/internal/auth"
	"github.com/HanTheDev/relationship-coach-api/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:       "0",
		BackendProvider:  config.ProviderOpenAI,
		OpenAIAPIKey:     "sk-test",
		OpenAIBaseURL:    "http://127.0.0.1:1/v1/",
		BackendTimeout:   time.Second,
		BackendMaxTokens: 100,
		UsageLimit:       10,
		UsageWindow:      time.Hour,
		SweepSchedule:    "@every 1h",
		HistoryLimit:     10,
		HistoryContext:   3,
		AdminJWTSecret:   "secret",
		AdminAPIKey:      "key",
	}
}

func TestBuildApp_Routes(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.close()

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/usage/k1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.GenerateToken("ops", "secret", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/admin/usage/k1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The backend address refuses connections, so analysis falls back offline.
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{"text":"hey","key":"k1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	a.handler.Wait()
}

func TestBuildApp_AdminDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AdminJWTSecret, cfg.AdminAPIKey = "", ""
	a, err := buildApp(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.close()

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/usage/k1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildApp_BadPromptsFile(t *testing.T) {
	cfg := testConfig()
	cfg.PromptsFile = "/does/not/exist.yaml"
	_, err := buildApp(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, version+"\n", out.String())
}

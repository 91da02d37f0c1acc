package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/HanTheDev/relationship-coach-api/internal/analysis"
	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

func TestStubCompletionParses(t *testing.T) {
	for _, m := range []models.Mode{models.ModeMessage, models.ModeConcern} {
		t.Run(string(m), func(t *testing.T) {
			s := &stub{mode: m, synth: analysis.NewSynthesizer(nil), logger: zaptest.NewLogger(t)}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
				strings.NewReader(`{"model":"gpt-test","messages":[{"role":"system","content":"s"},{"role":"user","content":"hello there"}]}`))
			s.complete(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			content := gjson.Get(rec.Body.String(), "choices.0.message.content").String()
			_, err := analysis.Parse(content, m)
			assert.NoError(t, err)
		})
	}
}

func TestStubBadBody(t *testing.T) {
	s := &stub{mode: models.ModeMessage, synth: analysis.NewSynthesizer(nil), logger: zaptest.NewLogger(t)}
	rec := httptest.NewRecorder()
	s.complete(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_error", gjson.Get(rec.Body.String(), "error.type").String())
}

func TestFailType(t *testing.T) {
	assert.Equal(t, "rate_limit_exceeded", failType(http.StatusTooManyRequests))
	assert.Equal(t, "insufficient_quota", failType(http.StatusPaymentRequired))
	assert.Equal(t, "server_error", failType(http.StatusBadGateway))
}

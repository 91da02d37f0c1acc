package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/HanTheDev/relationship-coach-api/internal/backend"
	"github.com/HanTheDev/relationship-coach-api/internal/history"
	"github.com/HanTheDev/relationship-coach-api/internal/models"
	"github.com/HanTheDev/relationship-coach-api/internal/prompt"
	"github.com/HanTheDev/relationship-coach-api/internal/ratelimit"
)

func TestMain(m *testing.M) {
	// opencensus, pulled in by genai, starts a worker in init that never exits.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeBackend struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, p prompt.Payload) (string, error)
	payloads []prompt.Payload
}

func (f *fakeBackend) Complete(ctx context.Context, p prompt.Payload) (string, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	return f.fn(ctx, p)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func (c *memoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memoryCache) Put(ctx context.Context, key, raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

type harness struct {
	orch    *Orchestrator
	limiter *ratelimit.RateLimiter
	history *history.Store
	backend *fakeBackend
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, fn func(ctx context.Context, p prompt.Payload) (string, error), opts ...func(*Config)) *harness {
	t.Helper()
	tpl, err := prompt.DefaultTemplates()
	require.NoError(t, err)

	now := func() time.Time { return epoch }
	h := &harness{
		limiter: ratelimit.NewRateLimiter(ratelimit.Options{Limit: 10, Window: 24 * time.Hour, Now: now}),
		history: history.NewStore(10),
		backend: &fakeBackend{fn: fn},
	}
	cfg := Config{
		Limiter:     h.limiter,
		History:     h.history,
		Assembler:   prompt.NewAssembler(tpl),
		Backend:     h.backend,
		Synthesizer: NewSynthesizer(fixedRand{v: 4}),
		Logger:      zaptest.NewLogger(t),
		Timeout:     time.Second,
		Now:         now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.orch, err = NewOrchestrator(cfg)
	require.NoError(t, err)
	return h
}

func replyWith(t *testing.T, mode models.Mode) func(context.Context, prompt.Payload) (string, error) {
	body := "```json\n" + fixtureJSON(t, mode) + "\n```"
	return func(context.Context, prompt.Payload) (string, error) { return body, nil }
}

func requireError(t *testing.T, err error, typ ErrorType) *Error {
	t.Helper()
	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, typ, aerr.Type)
	return aerr
}

func TestAnalyze_LiveResult(t *testing.T) {
	h := newHarness(t, replyWith(t, models.ModeMessage))

	out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "are you free saturday?", Key: "k1"})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeLive, out.Source)
	assert.Equal(t, models.ModeMessage, out.Result.Mode())
	assert.Equal(t, 9, out.Remaining)
	assert.Equal(t, 10, out.Limit)
	assert.Equal(t, epoch.Add(24*time.Hour), out.ResetAt)

	recent := h.history.Recent("k1", 10)
	require.Len(t, recent, 1)
	assert.Equal(t, out.Result.SummaryLine(), recent[0].SummaryLine)
	assert.Equal(t, "are you free saturday?", recent[0].InputDigest)
	assert.Equal(t, epoch, recent[0].Timestamp)
}

func TestAnalyze_QuotaExceededAfterTen(t *testing.T) {
	h := newHarness(t, replyWith(t, models.ModeMessage))

	for i := 1; i <= 10; i++ {
		out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: fmt.Sprintf("message %d", i), Key: "k1"})
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, 10-i, out.Remaining)
	}

	_, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "one more", Key: "k1"})
	aerr := requireError(t, err, ErrorRateLimit)
	assert.Equal(t, epoch.Add(24*time.Hour), aerr.ResetAt)
	assert.Equal(t, 0, h.limiter.Peek("k1").Remaining)
	assert.Equal(t, 10, h.backend.calls())
	assert.Len(t, h.history.Recent("k1", 20), 10)
}

func TestAnalyze_TimeoutFallsBack(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ prompt.Payload) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, func(c *Config) { c.Timeout = 20 * time.Millisecond })

	out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "hey", Mode: models.ModeMessage, Key: "k1"})
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFallback, out.Source)
	require.NoError(t, out.Result.Validate())
	msg := out.Result.(*models.MessageAnalysis)
	assert.Equal(t, ConfidenceLow, msg.ConfidenceLevel)
	assert.NotEmpty(t, msg.TheirProfile.UncertaintyNote)
	assert.Len(t, h.history.Recent("k1", 10), 1)
}

func TestAnalyze_UnparseableOutputFallsBack(t *testing.T) {
	replies := []string{
		"I'm sorry, I can't produce JSON today.",
		"```json\n{\"confidence_level\": \"high\"",
		`{"confidence_level":"high","emotion":"calm"}`,
	}
	for _, raw := range replies {
		h := newHarness(t, func(context.Context, prompt.Payload) (string, error) { return raw, nil })

		out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "we keep fighting", Mode: models.ModeConcern, Key: "k1"})
		require.NoError(t, err, raw)
		assert.Equal(t, models.OutcomeFallback, out.Source)
		assert.Equal(t, models.ModeConcern, out.Result.Mode())
		assert.NoError(t, out.Result.Validate())
	}
}

func TestAnalyze_ConnectionFailureFallsBack(t *testing.T) {
	h := newHarness(t, func(context.Context, prompt.Payload) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	})

	out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "hello there", Key: "k1"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFallback, out.Source)
}

func TestAnalyze_PolicyFailuresSurface(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		typ    ErrorType
		status int
	}{
		{"billing", fmt.Errorf("%w: openai status 429", backend.ErrQuotaExhausted), ErrorQuotaExhausted, http.StatusPaymentRequired},
		{"throttled", fmt.Errorf("%w: openai status 429", backend.ErrUpstreamRateLimited), ErrorUpstreamRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(context.Context, prompt.Payload) (string, error) { return "", tt.err })

			out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "hello", Key: "k1"})
			assert.Nil(t, out)
			aerr := requireError(t, err, tt.typ)
			assert.Equal(t, tt.status, aerr.Type.StatusCode())
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, h.history.Recent("k1", 10))
		})
	}
}

func TestAnalyze_ValidationConsumesNothing(t *testing.T) {
	h := newHarness(t, replyWith(t, models.ModeMessage))

	tests := []models.AnalysisRequest{
		{Text: "   ", Key: "k1"},
		{Text: "hi", Key: "k1", Mode: "gossip"},
		{Text: "hi", Key: "k1", ToneMode: "sarcastic"},
		{Text: "hi"},
	}
	for _, req := range tests {
		_, err := h.orch.Analyze(context.Background(), req)
		requireError(t, err, ErrorValidation)
	}
	assert.Equal(t, 0, h.limiter.Peek("k1").Count)
	assert.Equal(t, 0, h.backend.calls())
	assert.Empty(t, h.history.Recent("k1", 10))
}

func TestAnalyze_CallerGoneRecordsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, func(ctx context.Context, _ prompt.Payload) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})

	out, err := h.orch.Analyze(ctx, models.AnalysisRequest{Text: "hello", Key: "k1"})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)
	var aerr *Error
	assert.False(t, errors.As(err, &aerr))
	assert.Empty(t, h.history.Recent("k1", 10))
	assert.Equal(t, 1, h.limiter.Peek("k1").Count)
}

func TestAnalyze_HistoryFeedsNextPrompt(t *testing.T) {
	h := newHarness(t, replyWith(t, models.ModeMessage))

	first, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "first message", Key: "k1"})
	require.NoError(t, err)
	_, err = h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "second message", Key: "k1"})
	require.NoError(t, err)

	require.Equal(t, 2, h.backend.calls())
	assert.NotContains(t, h.backend.payloads[0].User, first.Result.SummaryLine())
	assert.Contains(t, h.backend.payloads[1].User, "first message")
	assert.Contains(t, h.backend.payloads[1].User, first.Result.SummaryLine())
}

func TestAnalyze_CacheHitSkipsBackend(t *testing.T) {
	c := &memoryCache{values: map[string]string{}}
	h := newHarness(t, replyWith(t, models.ModeMessage), func(cfg *Config) { cfg.Cache = c })

	req := models.AnalysisRequest{Text: "same question", Key: "a"}
	out, err := h.orch.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLive, out.Source)
	assert.Len(t, c.values, 1)

	req.Key = "b"
	out, err = h.orch.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCache, out.Source)
	assert.Equal(t, 9, out.Remaining)
	assert.Equal(t, 1, h.backend.calls())
	assert.Len(t, h.history.Recent("b", 10), 1)
}

func TestAnalyze_CacheErrorIsMiss(t *testing.T) {
	c := &memoryCache{values: map[string]string{}, getErr: errors.New("redis down")}
	h := newHarness(t, replyWith(t, models.ModeMessage), func(cfg *Config) { cfg.Cache = c })

	out, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "hello", Key: "a"})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLive, out.Source)
}

func TestAnalyze_FallbackIsNotCached(t *testing.T) {
	c := &memoryCache{values: map[string]string{}}
	h := newHarness(t, func(context.Context, prompt.Payload) (string, error) { return "nope", nil },
		func(cfg *Config) { cfg.Cache = c })

	_, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "hello", Key: "a"})
	require.NoError(t, err)
	assert.Empty(t, c.values)
}

func TestAnalyze_ConcurrentKeysIndependent(t *testing.T) {
	h := newHarness(t, replyWith(t, models.ModeMessage))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d", i)
			for j := 0; j < 3; j++ {
				_, err := h.orch.Analyze(context.Background(), models.AnalysisRequest{Text: "ping", Key: key})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		assert.Equal(t, 3, h.limiter.Peek(fmt.Sprintf("user-%d", i)).Count)
	}
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator(Config{})
	require.Error(t, err)
	for _, dep := range []string{"limiter", "history", "assembler", "backend"} {
		assert.True(t, strings.Contains(err.Error(), dep), dep)
	}
}

func TestErrorType_StatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrorValidation.StatusCode())
	assert.Equal(t, http.StatusTooManyRequests, ErrorRateLimit.StatusCode())
	assert.Equal(t, http.StatusPaymentRequired, ErrorQuotaExhausted.StatusCode())
	assert.Equal(t, http.StatusTooManyRequests, ErrorUpstreamRateLimited.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, ErrorServer.StatusCode())
}

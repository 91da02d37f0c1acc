// Package analysis turns an inbound request into a result: it enforces the
// usage quota, calls the backend once under a timeout, and substitutes an
// offline result whenever the backend is unavailable or its output unusable.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HanTheDev/relationship-coach-api/internal/backend"
	"github.com/HanTheDev/relationship-coach-api/internal/cache"
	"github.com/HanTheDev/relationship-coach-api/internal/models"
	"github.com/HanTheDev/relationship-coach-api/internal/prompt"
	"github.com/HanTheDev/relationship-coach-api/internal/ratelimit"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultHistoryContext = 3

	historyDigestRunes = 200
	logTextRunes       = 50
)

type ErrorType string

const (
	ErrorValidation          ErrorType = "validation"
	ErrorRateLimit           ErrorType = "rate_limit"
	ErrorQuotaExhausted      ErrorType = "quota_exhausted"
	ErrorUpstreamRateLimited ErrorType = "upstream_rate_limited"
	ErrorServer              ErrorType = "server_error"
)

// StatusCode maps the error type to its HTTP status.
func (t ErrorType) StatusCode() int {
	switch t {
	case ErrorValidation:
		return http.StatusBadRequest
	case ErrorRateLimit, ErrorUpstreamRateLimited:
		return http.StatusTooManyRequests
	case ErrorQuotaExhausted:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// Error is a terminal, caller-visible failure.
type Error struct {
	Type    ErrorType
	Message string
	// Limit and ResetAt are set for ErrorRateLimit.
	Limit   int
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UsageChecker admits or rejects one request for a key.
type UsageChecker interface {
	Check(key string) ratelimit.Decision
}

// HistoryRecorder keeps the per-key log used for prompt continuity.
type HistoryRecorder interface {
	Append(key string, e models.HistoryEntry)
	Recent(key string, n int) []models.HistoryEntry
}

// ResponseCache stores backend text that parsed successfully.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, raw string) error
}

// Outcome is a successful analysis.
type Outcome struct {
	Result    models.AnalysisResult
	Source    models.Outcome
	Remaining int
	Limit     int
	ResetAt   time.Time
}

type Config struct {
	Limiter     UsageChecker
	History     HistoryRecorder
	Assembler   *prompt.Assembler
	Backend     backend.Backend
	Synthesizer *Synthesizer
	// Cache is optional.
	Cache          ResponseCache
	Logger         *zap.Logger
	Timeout        time.Duration
	HistoryContext int
	Now            func() time.Time
}

type Orchestrator struct {
	limiter        UsageChecker
	history        HistoryRecorder
	assembler      *prompt.Assembler
	backend        backend.Backend
	synth          *Synthesizer
	cache          ResponseCache
	logger         *zap.Logger
	timeout        time.Duration
	historyContext int
	now            func() time.Time
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	var missing []string
	if cfg.Limiter == nil {
		missing = append(missing, "limiter")
	}
	if cfg.History == nil {
		missing = append(missing, "history")
	}
	if cfg.Assembler == nil {
		missing = append(missing, "assembler")
	}
	if cfg.Backend == nil {
		missing = append(missing, "backend")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("analysis: missing %s", strings.Join(missing, ", "))
	}

	o := &Orchestrator{
		limiter:        cfg.Limiter,
		history:        cfg.History,
		assembler:      cfg.Assembler,
		backend:        cfg.Backend,
		synth:          cfg.Synthesizer,
		cache:          cfg.Cache,
		logger:         cfg.Logger,
		timeout:        cfg.Timeout,
		historyContext: cfg.HistoryContext,
		now:            cfg.Now,
	}
	if o.synth == nil {
		o.synth = NewSynthesizer(nil)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.historyContext <= 0 {
		o.historyContext = DefaultHistoryContext
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Analyze runs one request. Validation and quota failures return before the
// backend is touched. Backend unavailability and unusable output are replaced
// by offline synthesis; only policy failures from the backend surface as
// errors. A request whose caller went away returns ctx's error and records no
// history.
func (o *Orchestrator) Analyze(ctx context.Context, req models.AnalysisRequest) (*Outcome, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, &Error{Type: ErrorValidation, Message: err.Error()}
	}
	arrived := o.now()

	decision := o.limiter.Check(req.Key)
	if !decision.Allowed {
		return nil, &Error{
			Type:    ErrorRateLimit,
			Message: "usage limit reached; try again after the window resets",
			Limit:   decision.Limit,
			ResetAt: decision.ResetAt,
		}
	}

	payload, err := o.assembler.Build(req, o.history.Recent(req.Key, o.historyContext))
	if err != nil {
		return nil, &Error{Type: ErrorServer, Message: "failed to assemble prompt", Err: err}
	}

	result, source, err := o.resolve(ctx, req, payload)
	if err != nil {
		return nil, err
	}

	o.history.Append(req.Key, models.HistoryEntry{
		Mode:        req.Mode,
		InputDigest: models.TruncateRunes(req.Text, historyDigestRunes),
		SummaryLine: result.SummaryLine(),
		Timestamp:   arrived,
	})

	return &Outcome{
		Result:    result,
		Source:    source,
		Remaining: decision.Remaining,
		Limit:     decision.Limit,
		ResetAt:   decision.ResetAt,
	}, nil
}

func (o *Orchestrator) resolve(ctx context.Context, req models.AnalysisRequest, payload prompt.Payload) (models.AnalysisResult, models.Outcome, error) {
	log := o.logger.With(
		zap.String("key", req.Key),
		zap.String("mode", string(req.Mode)),
		zap.String("text", models.TruncateRunes(req.Text, logTextRunes)),
	)

	cacheKey := ""
	if o.cache != nil {
		cacheKey = cache.Key(req.Mode, payload)
		raw, hit, err := o.cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			log.Warn("response cache read failed", zap.Error(err))
		case hit:
			if result, err := Parse(raw, req.Mode); err == nil {
				return result, models.OutcomeCache, nil
			}
			log.Warn("discarding unusable cached response")
		}
	}

	raw, err := o.invoke(ctx, payload)
	if err != nil {
		if backend.IsPolicyError(err) {
			log.Error("backend policy failure", zap.String("backend", o.backend.Name()), zap.Error(err))
			return nil, "", policyError(err)
		}
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("analysis: caller gone: %w", ctx.Err())
		}
		log.Warn("backend unavailable; using offline result", zap.String("backend", o.backend.Name()), zap.Error(err))
		return o.synth.Build(req), models.OutcomeFallback, nil
	}

	result, err := Parse(raw, req.Mode)
	if err != nil {
		log.Warn("backend output unusable; using offline result", zap.Error(err))
		return o.synth.Build(req), models.OutcomeFallback, nil
	}

	if o.cache != nil {
		if err := o.cache.Put(ctx, cacheKey, raw); err != nil {
			log.Warn("response cache write failed", zap.Error(err))
		}
	}
	return result, models.OutcomeLive, nil
}

func (o *Orchestrator) invoke(ctx context.Context, payload prompt.Payload) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.backend.Complete(callCtx, payload)
}

func policyError(err error) *Error {
	if errors.Is(err, backend.ErrQuotaExhausted) {
		return &Error{Type: ErrorQuotaExhausted, Message: "backend credit or quota is exhausted", Err: err}
	}
	return &Error{Type: ErrorUpstreamRateLimited, Message: "backend is rate limiting this service", Err: err}
}

func normalize(req models.AnalysisRequest) (models.AnalysisRequest, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return req, errors.New("text is required")
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		return req, errors.New("client key is required")
	}
	mode, err := models.ParseMode(string(req.Mode))
	if err != nil {
		return req, err
	}
	tone, err := models.ParseToneMode(string(req.ToneMode))
	if err != nil {
		return req, err
	}
	req.Mode, req.ToneMode = mode, tone
	req.SelfTrait = strings.TrimSpace(req.SelfTrait)
	req.OtherTrait = strings.TrimSpace(req.OtherTrait)
	return req, nil
}

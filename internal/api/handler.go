// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/HanTheDev/relationship-coach-api/internal/analysis"
	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

const (
	MaxBodyBytes = 64 << 10

	// statusClientClosed is recorded when the caller disconnects mid-request.
	statusClientClosed = 499
	outcomeCanceled    = "canceled"
	accessLogTimeout   = 5 * time.Second
)

type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*analysis.Outcome, error)
}

type AccessLogger interface {
	LogAccess(ctx context.Context, log *models.AccessLog) error
}

type Options struct {
	// TrustProxy takes the client key from X-Forwarded-For when the body has none.
	TrustProxy bool
	// AccessLog is optional.
	AccessLog AccessLogger
	Logger    *zap.Logger
}

type Handler struct {
	analyzer   Analyzer
	accessLog  AccessLogger
	trustProxy bool
	logger     *zap.Logger
	pending    sync.WaitGroup
}

func NewHandler(analyzer Analyzer, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		analyzer:   analyzer,
		accessLog:  opts.AccessLog,
		trustProxy: opts.TrustProxy,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/analyze", h.Analyze).Methods("POST")
}

// Wait blocks until queued access log writes finish.
func (h *Handler) Wait() { h.pending.Wait() }

// analyzeRequest accepts both the current field names and the older client
// names (message, myMBTI, theirMBTI, userId).
type analyzeRequest struct {
	Text       string `json:"text"`
	Message    string `json:"message"`
	Mode       string `json:"mode"`
	ToneMode   string `json:"toneMode"`
	SelfTrait  string `json:"selfTrait"`
	MyMBTI     string `json:"myMBTI"`
	OtherTrait string `json:"otherTrait"`
	TheirMBTI  string `json:"theirMBTI"`
	Key        string `json:"key"`
	UserID     string `json:"userId"`
}

func (a analyzeRequest) toModel() models.AnalysisRequest {
	return models.AnalysisRequest{
		Text:       firstNonEmpty(a.Text, a.Message),
		Mode:       models.Mode(strings.TrimSpace(a.Mode)),
		ToneMode:   models.ToneMode(strings.TrimSpace(a.ToneMode)),
		SelfTrait:  firstNonEmpty(a.SelfTrait, a.MyMBTI),
		OtherTrait: firstNonEmpty(a.OtherTrait, a.TheirMBTI),
		Key:        firstNonEmpty(a.Key, a.UserID),
	}
}

type errorBody struct {
	Type      analysis.ErrorType `json:"type"`
	Message   string             `json:"message"`
	ResetAt   *time.Time         `json:"resetAt,omitempty"`
	Remaining *int               `json:"remaining,omitempty"`
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := newResponseRecorder(w)
	requestID := RequestIDFromContext(r.Context())

	var body analyzeRequest
	req := models.AnalysisRequest{}
	outcome := ""

	if err := json.NewDecoder(http.MaxBytesReader(rec, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		msg := "request body must be a JSON object"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		h.writeError(rec, &analysis.Error{Type: analysis.ErrorValidation, Message: msg})
		outcome = string(analysis.ErrorValidation)
	} else {
		req = body.toModel()
		if req.Key == "" {
			req.Key = h.clientAddr(r)
		}

		out, err := h.analyzer.Analyze(r.Context(), req)
		switch {
		case err == nil:
			h.writeOutcome(rec, req, out)
			outcome = string(out.Source)
		case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
			rec.WriteHeader(statusClientClosed)
			outcome = outcomeCanceled
		default:
			outcome = string(h.writeError(rec, err))
		}
	}

	elapsed := time.Since(start)
	h.logger.Info("analyze",
		zap.String("request_id", requestID),
		zap.String("key", req.Key),
		zap.String("mode", string(req.Mode)),
		zap.String("tone", string(req.ToneMode)),
		zap.String("outcome", outcome),
		zap.Int("status", rec.statusCode),
		zap.Duration("latency", elapsed),
	)
	h.logAccess(r.Context(), &models.AccessLog{
		RequestID:      requestID,
		ClientKey:      req.Key,
		Mode:           req.Mode,
		ToneMode:       req.ToneMode,
		Outcome:        outcome,
		StatusCode:     rec.statusCode,
		ResponseTimeMs: int(elapsed.Milliseconds()),
		RequestSize:    max(r.ContentLength, 0),
		ResponseSize:   int64(rec.size),
		Timestamp:      start,
	})
}

func (h *Handler) writeOutcome(w http.ResponseWriter, req models.AnalysisRequest, out *analysis.Outcome) {
	payload, err := json.Marshal(out.Result)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "mode", string(out.Result.Mode()))
	}
	if err == nil {
		payload, err = sjson.SetBytes(payload, "remaining", out.Remaining)
	}
	if err != nil {
		h.logger.Error("failed to encode result", zap.String("key", req.Key), zap.Error(err))
		h.writeError(w, &analysis.Error{Type: analysis.ErrorServer, Message: "failed to encode result", Err: err})
		return
	}

	setRateHeaders(w.Header(), out.Limit, out.Remaining, out.ResetAt)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// writeError writes err as a typed error body and returns its type. Errors
// that are not *analysis.Error are reported as server errors without detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) analysis.ErrorType {
	var aerr *analysis.Error
	if !errors.As(err, &aerr) {
		h.logger.Error("unexpected analyze failure", zap.Error(err))
		aerr = &analysis.Error{Type: analysis.ErrorServer, Message: "internal server error"}
	}

	body := errorBody{Type: aerr.Type, Message: aerr.Message}
	if aerr.Type == analysis.ErrorServer && aerr.Err != nil {
		h.logger.Error("analyze server error", zap.Error(aerr.Err))
	}
	if aerr.Type == analysis.ErrorRateLimit {
		resetAt := aerr.ResetAt
		remaining := 0
		body.ResetAt = &resetAt
		body.Remaining = &remaining
		setRateHeaders(w.Header(), aerr.Limit, 0, resetAt)
		retry := int(math.Ceil(time.Until(resetAt).Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(retry, 0)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(aerr.Type.StatusCode())
	json.NewEncoder(w).Encode(map[string]errorBody{"error": body})
	return aerr.Type
}

func setRateHeaders(hdr http.Header, limit, remaining int, resetAt time.Time) {
	hdr.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	hdr.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	hdr.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// clientAddr identifies a caller that did not supply a key.
func (h *Handler) clientAddr(r *http.Request) string {
	if h.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) logAccess(ctx context.Context, entry *models.AccessLog) {
	if h.accessLog == nil {
		return
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), accessLogTimeout)
		defer cancel()
		if err := h.accessLog.LogAccess(ctx, entry); err != nil {
			h.logger.Warn("failed to write access log", zap.String("request_id", entry.RequestID), zap.Error(err))
		}
	}()
}

// Health reports liveness.
func Health(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": version,
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

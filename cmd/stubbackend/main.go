// Command stubbackend serves an OpenAI-compatible chat completions endpoint
// for local runs. Point OPENAI_BASE_URL at http://localhost:9000/v1/.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HanTheDev/relationship-coach-api/internal/analysis"
	"github.com/HanTheDev/relationship-coach-api/internal/logging"
	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

var (
	port       int
	delay      time.Duration
	failStatus int
	mode       string
)

var rootCmd = &cobra.Command{
	Use:   "stubbackend",
	Short: "Fake chat completions backend",
	Long: `Answers every chat completion with a fenced JSON analysis built offline.
--delay exercises the caller's timeout and --fail returns an error status.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().IntVar(&port, "port", 9000, "Listen port")
	rootCmd.Flags().DurationVar(&delay, "delay", 0, "Delay before each response")
	rootCmd.Flags().IntVar(&failStatus, "fail", 0, "Respond with this HTTP status instead of a completion")
	rootCmd.Flags().StringVar(&mode, "mode", string(models.ModeMessage), "Result variant to return: message or concern")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	m, err := models.ParseMode(mode)
	if err != nil {
		return err
	}
	logger, err := logging.New("info", "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	s := &stub{mode: m, synth: analysis.NewSynthesizer(nil), logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.complete)

	addr := fmt.Sprintf(":%d", port)
	logger.Info("stub backend starting", zap.String("addr", addr), zap.String("mode", string(m)))
	return http.ListenAndServe(addr, mux)
}

type stub struct {
	mode   models.Mode
	synth  *analysis.Synthesizer
	logger *zap.Logger
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *stub) complete(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	s.logger.Info("completion requested", zap.String("model", req.Model), zap.Int("messages", len(req.Messages)))

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failStatus != 0 {
		writeError(w, failStatus, failType(failStatus), "stub failure")
		return
	}

	user := ""
	for _, m := range req.Messages {
		if m.Role == "user" {
			user = m.Content
		}
	}
	result := s.synth.Build(models.AnalysisRequest{Text: user, Mode: s.mode})
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	content := "Here is the analysis:\n```json\n" + string(body) + "\n```"

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      fmt.Sprintf("chatcmpl-stub-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func failType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	case http.StatusPaymentRequired:
		return "insufficient_quota"
	}
	return "server_error"
}

func writeError(w http.ResponseWriter, status int, typ, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": typ, "code": typ},
	})
}

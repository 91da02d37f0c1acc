package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type contextKey string

const OperatorContextKey contextKey = "operator"

type Middleware struct {
	jwtSecret string
}

func NewMiddleware(jwtSecret string) *Middleware {
	return &Middleware{jwtSecret: jwtSecret}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateToken(parts[1], m.jwtSecret)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), OperatorContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetOperatorFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(OperatorContextKey).(*Claims)
	return claims, ok
}

// TokenHandler exchanges the operator API key for a signed token.
func TokenHandler(apiKey, secret string, ttl time.Duration, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			APIKey  string `json:"api_key"`
			Subject string `json:"subject"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(apiKey)) != 1 {
			logger.Warn("rejected operator token request", zap.String("remote", r.RemoteAddr))
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		if req.Subject == "" {
			req.Subject = "operator"
		}

		token, err := GenerateToken(req.Subject, secret, ttl)
		if err != nil {
			logger.Error("failed to sign operator token", zap.Error(err))
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      token,
			"expires_in": int(ttl.Seconds()),
		})
	}
}

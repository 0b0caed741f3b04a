// Package auth resolves the operator performing a request.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// OperatorHeader carries the operator id when no token validator is
// configured.
const OperatorHeader = "X-Operator-ID"

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	OperatorID string
	Name       string
	JTI        string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// Operator puts the operator id into the request context. With a validator
// every request must carry a valid bearer token and the subject becomes the
// operator. Without one the optional X-Operator-ID header is trusted.
func Operator(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			if validator == nil {
				if raw := strings.TrimSpace(r.Header.Get(OperatorHeader)); raw != "" {
					operatorID, err := id.ParseUserID(raw)
					if err != nil {
						writeJSONError(w, http.StatusBadRequest, "bad_request", "Invalid X-Operator-ID header")
						return
					}
					ctx = requestcontext.WithOperatorID(ctx, operatorID)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			ctx = requestcontext.WithOperatorID(ctx, id.UserID(claims.OperatorID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

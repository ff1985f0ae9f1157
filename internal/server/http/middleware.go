package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	HeaderSessionToken = "X-Session-Token"
	HeaderRequestID    = "X-Request-ID"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	callerKey
)

// Caller is who a request acts for. Either field may be empty; an account
// request also carries the session it started as so that session's data can be
// merged.
type Caller struct {
	SessionToken string
	UserID       string
}

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	UserID(token string) (string, error)
}

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityMiddleware resolves the session token and bearer token into a Caller.
// A bearer token that is present but invalid is rejected here; a request with
// no identity at all is left for the handler to reject.
func IdentityMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := Caller{SessionToken: strings.TrimSpace(r.Header.Get(HeaderSessionToken))}

			if authz := r.Header.Get("Authorization"); authz != "" {
				token, ok := strings.CutPrefix(authz, "Bearer ")
				if !ok {
					respondError(w, http.StatusUnauthorized, "unauthorized", "authorization must be a bearer token")
					return
				}
				userID, err := verifier.UserID(token)
				if err != nil {
					respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
					return
				}
				caller.UserID = userID
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLogMiddleware logs one line per request.
func AccessLogMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", getRequestID(r.Context()),
			)
		})
	}
}

// MaxBodyMiddleware caps request bodies at limit bytes.
func MaxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getCaller(ctx context.Context) Caller {
	caller, _ := ctx.Value(callerKey).(Caller)
	return caller
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

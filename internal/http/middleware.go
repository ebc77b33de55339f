package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SessionCookie = "tranex_sid"

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	requestIDKey
)

// SessionMiddleware gives every browser a stable session id through a cookie,
// the server-side stand-in for the browser's local storage scope.
func SessionMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(SessionCookie); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					sid = c.Value
				}
			}
			if sid == "" {
				sid = uuid.NewString()
			}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sid,
				Path:     "/",
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := context.WithValue(r.Context(), sessionIDKey, sid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware writes one structured line per request.
func LoggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", getRequestID(r.Context())),
			)
		})
	}
}

func getSessionID(ctx context.Context) string {
	if sid, ok := ctx.Value(sessionIDKey).(string); ok {
		return sid
	}
	return ""
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

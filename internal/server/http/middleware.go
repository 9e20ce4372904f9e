package httpserver

import (
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/service"
)

// Logging logs one line per request with metadata only, never bodies.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Recover turns handler panics into a 500 reply.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeMessage(w, http.StatusInternalServerError, "internal")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records request counts and latency labelled by route pattern.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.HTTPRequest(r.Method, path, strconv.Itoa(status), time.Since(start).Seconds())
		})
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}

// WithAuth requires a valid session token carrying role.
func WithAuth(auth service.AuthService, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			claims, err := auth.ParseToken(tok)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "Authentication failed")
				return
			}
			if claims.Role != role {
				writeMessage(w, http.StatusForbidden, "Not allowed")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Subject, claims.Role)))
		})
	}
}

// OptionalAuth attaches the identity of a valid token and lets anonymous requests through.
func OptionalAuth(auth service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok, ok := bearerToken(r); ok {
				if claims, err := auth.ParseToken(tok); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), claims.Subject, claims.Role))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// VisitorHeader carries the browser-generated id that scopes state kept before sign-in.
const VisitorHeader = "X-Visitor-ID"

func visitorID(r *http.Request) string {
	return r.Header.Get(VisitorHeader)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func mustSubject(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub, ok := SubjectFromCtx(r.Context())
	if !ok {
		WriteError(w, r, errs.ErrUnauthorized, nil)
	}
	return sub, ok
}

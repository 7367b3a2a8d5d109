package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meshai-dev/mcp-edge/internal/auth"
	customerrors "github.com/meshai-dev/mcp-edge/internal/errors"
	"github.com/meshai-dev/mcp-edge/internal/logging"
	"github.com/meshai-dev/mcp-edge/internal/ratelimit"
)

type contextKey int

const (
	userContextKey contextKey = iota
	rateInfoKey
)

// publicPaths are served without authentication.
var publicPaths = map[string]bool{
	"/":             true,
	"/health":       true,
	"/docs":         true,
	"/redoc":        true,
	"/openapi.json": true,
	"/favicon.ico":  true,
}

// userFromContext returns the authenticated caller, if any.
func userFromContext(ctx context.Context) (*auth.UserContext, bool) {
	u, ok := ctx.Value(userContextKey).(*auth.UserContext)
	return u, ok
}

// rateInfoFromContext returns the caller's rate limit standing, if known.
func rateInfoFromContext(ctx context.Context) (ratelimit.Info, bool) {
	info, ok := ctx.Value(rateInfoKey).(ratelimit.Info)
	return info, ok
}

// authMiddleware authenticates the caller, enforces both limiters, and
// attaches the user context to the request.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		ctx := logging.ContextWithClientIP(r.Context(), ip)

		if !s.attempts.Allow(ip) {
			s.metrics.RateLimitRejectsTotal.WithLabelValues("attempts").Inc()
			reset := s.attempts.ResetTime(ip)
			if !reset.IsZero() {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(reset)))
			}
			writeDetail(w, http.StatusTooManyRequests, "Too many authentication attempts")
			return
		}

		token := extractToken(r)
		validation := s.auth.ValidateToken(ctx, token)
		if !validation.Valid {
			s.attempts.RecordFailure(ip)
			s.rejectAuth(w, validation, ip)
			return
		}

		user := auth.NewUserContext(validation, s.cfg.Auth.DefaultRateLimit)
		user.Metadata["client_ip"] = ip
		user.Metadata["user_agent"] = r.UserAgent()

		allowed, info, err := s.limiter.Allow(ctx, user.UserID.String(), "mcp", user.RateLimit)
		if err != nil {
			s.logger.Error("rate limit check failed", zap.Error(err))
			writeDetail(w, http.StatusServiceUnavailable, "Rate limiting unavailable")
			return
		}
		setRateLimitHeaders(w, info)
		if !allowed {
			s.metrics.RateLimitRejectsTotal.WithLabelValues("user").Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(info.ResetTime)))
			writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		ctx = logging.ContextWithUserInfo(ctx, user.UserID.String(), tenantString(user))
		ctx = context.WithValue(ctx, userContextKey, user)
		ctx = context.WithValue(ctx, rateInfoKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rejectAuth(w http.ResponseWriter, v auth.TokenValidation, ip string) {
	kind := auth.ErrInvalidToken
	message := "Authentication failed"
	if v.Err != nil {
		kind = v.Err.Kind
		message = v.Err.Message
	}
	s.metrics.AuthFailuresTotal.WithLabelValues(string(kind)).Inc()

	gwErr := authFailure(kind, message)
	s.logger.Warn("authentication rejected",
		append(logging.WithError(gwErr), zap.String("client_ip", ip))...)
	writeDetail(w, customerrors.GetHTTPStatus(gwErr), message)
}

// authFailure classifies an auth rejection so the HTTP status and log fields
// follow the shared error taxonomy.
func authFailure(kind auth.ErrorKind, message string) *customerrors.GatewayError {
	switch kind {
	case auth.ErrRateLimitExceeded:
		return customerrors.NewRateLimitError(message).WithComponent("auth")
	case auth.ErrServiceUnavailable:
		return customerrors.NewUnavailableError("auth").WithComponent("auth")
	default:
		return customerrors.NewUnauthorizedError(message).WithComponent("auth")
	}
}

// extractToken pulls the bearer token from the Authorization header. A raw
// token without the Bearer prefix is accepted for older clients.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return strings.TrimSpace(header)
}

// clientIP resolves the caller address, preferring the first entry of
// X-Forwarded-For set by the load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
}

func retryAfterSeconds(reset time.Time) int {
	secs := int(time.Until(reset).Seconds()) + 1
	if secs < 1 {
		return 1
	}
	return secs
}

func tenantString(u *auth.UserContext) string {
	if u.TenantID == nil {
		return ""
	}
	return u.TenantID.String()
}

package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/guardflux/internal/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter returns a Huma middleware that evaluates each request against
// limiter. Limits come from the operation's ratelimit.EndpointConfig, or from
// defaults when the operation has none. A nil defaults lets unconfigured
// operations through untouched.
//
// The client identity is a hash of client IP and User-Agent; the counted
// route is the operation's path template, so "/items/{id}" shares one counter
// per client.
func RateLimiter(
	api huma.API,
	limiter ratelimit.Limiter,
	defaults *ratelimit.EndpointConfig,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		cfg := ratelimit.GetEndpointConfig(ctx)
		if cfg == nil {
			cfg = defaults
		}

		if cfg == nil || cfg.Disabled {
			next(ctx)

			return
		}

		path := operationPath(ctx)
		opts := cfg.Options(path)

		d, err := limiter.Evaluate(ctx.Context(), clientKey(ctx), opts, nil)
		if err != nil {
			logger.Error("rate limit evaluation failed", zap.String("path", path), zap.Error(err))
			_ = huma.WriteErr(api, ctx, http.StatusInternalServerError, "internal server error", err)

			return
		}

		if d.Reason != ratelimit.ReasonStoreUnavailable {
			ctx.SetHeader("X-RateLimit-Limit", strconv.FormatInt(opts.MaxRequests, 10))
			ctx.SetHeader("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
		}

		switch {
		case d.Allowed:
			next(ctx)
		case d.Reason == ratelimit.ReasonStoreUnavailable:
			_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, "rate limit store unavailable")
		default:
			logger.Warn("rate limit exceeded",
				zap.String("path", path),
				zap.String("method", ctx.Method()),
				zap.Int64("count", d.Count),
				zap.Int64("max", opts.MaxRequests),
				zap.Int64("cycleTime", opts.CycleTime),
				zap.String("client_ip", clientIP(ctx)),
			)

			ctx.SetHeader("Retry-After", strconv.FormatInt(opts.CycleTime, 10))

			msg := fmt.Sprintf("rate limit exceeded: %d/%d requests in %ds", d.Count, opts.MaxRequests, opts.CycleTime)
			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, msg)
		}
	}
}

func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ctx.URL().Path
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		// First entry is the original client.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if addr == "" {
		addr = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}

package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/textgate/textgate/internal/model"
	"github.com/textgate/textgate/internal/service"
)

type contextKeyUsage string

// UsageCountsKey is the context key for the per-request token counter.
const UsageCountsKey contextKeyUsage = "usage_counts"

// UsageCounts is a mutable per-request holder that proxy handlers fill in
// with the token accounting reported by the upstream.
type UsageCounts struct {
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// GetUsageCounts returns the request's token counter, or nil when the
// usage middleware is not in the chain.
func GetUsageCounts(ctx context.Context) *UsageCounts {
	if c, ok := ctx.Value(UsageCountsKey).(*UsageCounts); ok {
		return c
	}
	return nil
}

// Usage returns an HTTP middleware that records one usage log entry per
// authenticated request after the response is written. It must be used
// after Authenticate in the middleware chain. Recording happens on a
// detached context so a client disconnect cannot abort the write, and is
// best effort either way.
func Usage(usageSvc *service.UsageService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			counts := &UsageCounts{}
			ctx := context.WithValue(r.Context(), UsageCountsKey, counts)
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r.WithContext(ctx))

			principal := GetPrincipal(ctx)
			if principal == nil {
				return
			}

			entry := &model.UsageLog{
				UserID:           principal.User.ID,
				Endpoint:         r.URL.Path,
				Method:           r.Method,
				Model:            counts.Model,
				PromptTokens:     counts.PromptTokens,
				CompletionTokens: counts.CompletionTokens,
				TotalTokens:      counts.PromptTokens + counts.CompletionTokens,
				LatencyMs:        float64(time.Since(start).Microseconds()) / 1000.0,
				StatusCode:       ww.status,
				IPAddress:        clientIP(r),
				UserAgent:        r.UserAgent(),
			}
			if principal.Key != nil {
				id := principal.Key.ID
				entry.APIKeyID = &id
			}

			usageSvc.Record(context.WithoutCancel(ctx), entry)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	limiterhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/edvin/timeoff/internal/api/response"
)

// RateLimit returns middleware allowing each user rate requests, formatted
// like "10-M". Requests are keyed on the authenticated user, falling back to
// the client address.
func RateLimit(rate string) (func(http.Handler) http.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}

	instance := limiter.New(memory.NewStore(), r)
	mw := limiterhttp.NewMiddleware(instance,
		limiterhttp.WithKeyGetter(func(r *http.Request) string {
			if claims := GetClaims(r.Context()); claims != nil {
				return "user:" + claims.UserID
			}
			return "ip:" + r.RemoteAddr
		}),
		limiterhttp.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			response.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
		}),
		limiterhttp.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			response.WriteServiceError(w, r, fmt.Errorf("rate limiter: %w", err))
		}),
	)
	return mw.Handler, nil
}

package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/relay/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter throttles a route per client IP with a token bucket. Refused
// requests get a 429 in the structured error format and a Retry-After of one
// token interval.
func newRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(1 / perSecond)))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return HandleError(c, apperrors.ValidationError("cannot identify client"))
		},
		DenyHandler: func(c echo.Context, client string, _ error) error {
			c.Response().Header().Set(echo.HeaderRetryAfter, retryAfter)
			return HandleError(c, apperrors.RateLimitedError("rate limit exceeded").WithField("client", client))
		},
	})
}

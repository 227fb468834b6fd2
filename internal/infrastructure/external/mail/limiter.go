package mail

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/garyjia/mutation-workflow/internal/application/port"
)

// RateLimitedMailer throttles outbound messages of a channel with a token
// bucket. Send blocks until a token is available or ctx is done.
type RateLimitedMailer struct {
	next    port.Mailer
	limiter *rate.Limiter
}

// NewRateLimitedMailer wraps next. perMinute <= 0 disables throttling.
func NewRateLimitedMailer(next port.Mailer, perMinute, burst int) port.Mailer {
	if perMinute <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedMailer{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst),
	}
}

// Channel returns the wrapped channel name
func (m *RateLimitedMailer) Channel() string {
	return m.next.Channel()
}

// Send waits for a token then delegates
func (m *RateLimitedMailer) Send(ctx context.Context, msg *port.Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit: %w", m.next.Channel(), err)
	}
	return m.next.Send(ctx, msg)
}

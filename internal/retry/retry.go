package retry

import (
	"context"
	"errors"
	"time"

	"bumpin-grid-bot-go/internal/models"

	"go.uber.org/zap"
)

// Policy wraps a single API call with bounded retry on transient
// failure. The delay between attempts is fixed by design: call volume
// is already globally throttled, so exponential backoff buys nothing.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *zap.SugaredLogger
}

// New creates a Policy with the given attempt budget and fixed delay.
func New(maxAttempts int, delay time.Duration, logger *zap.SugaredLogger) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{MaxAttempts: maxAttempts, Delay: delay, Logger: logger}
}

// Do invokes op up to MaxAttempts times, sleeping Delay between
// attempts. An error or a rate-limit response (models.APIError with
// code 429) triggers a retry; the final attempt's failure propagates
// to the caller unmodified. Do is a pure control wrapper: it has no
// side effects beyond op's own.
func Do[T any](ctx context.Context, p *Policy, name string, op func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err = op()
		if err == nil {
			return result, nil
		}
		if attempt == p.MaxAttempts {
			break
		}

		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.IsRateLimited() {
			p.Logger.Infof("API限流 (429), %v 后重试 (%d/%d): %s", p.Delay, attempt, p.MaxAttempts, name)
		} else {
			p.Logger.Warnf("API请求失败, %v 后重试 (%d/%d): %s: %v", p.Delay, attempt, p.MaxAttempts, name, err)
		}

		if sleepErr := sleep(ctx, p.Delay); sleepErr != nil {
			return result, sleepErr
		}
	}

	return result, err
}

// sleep blocks for d or until ctx is canceled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Timeout       time.Duration
	MaxJitter     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
		Timeout:       30 * time.Second,
		MaxJitter:     time.Second,
	}
}

// terminalSubstrings classifies errors that retrying cannot fix: constraint
// violations, authorization failures, and malformed input. Matching is
// case-insensitive substring search over the error text because transport
// layers flatten typed errors into strings.
var terminalSubstrings = []string{
	"duplicate key",
	"unique constraint",
	"violates",
	"constraint",
	"not-null",
	"permission denied",
	"unauthorized",
	"forbidden",
	"invalid input",
	"malformed",
	"invalid row",
	"invalid record",
	"customer required",
	"not found locally",
}

func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range terminalSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// Recorder receives one performance sample per executed operation. The
// status publisher implements it; a nil recorder disables sampling.
type Recorder interface {
	RecordSample(operation string, duration time.Duration, success bool, errMsg string, retries int)
}

// Retrier wraps remote operations with bounded exponential backoff, jitter
// and a per-attempt timeout. Terminal errors abort immediately.
type Retrier struct {
	cfg      RetryConfig
	logger   *logrus.Logger
	recorder Recorder

	// injectable for deterministic tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func NewRetrier(cfg RetryConfig, logger *logrus.Logger, recorder Recorder) *Retrier {
	r := &Retrier{cfg: cfg, logger: logger, recorder: recorder}
	r.sleep = sleepContext
	r.jitter = func() time.Duration {
		if cfg.MaxJitter <= 0 {
			return 0
		}
		return time.Duration(rand.Int63n(int64(cfg.MaxJitter) + 1))
	}
	return r
}

// Do runs fn under the per-attempt timeout, retrying transient failures up
// to MaxRetries times. The last error is returned once attempts exhaust.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		lastErr = r.attempt(ctx, fn)
		if lastErr == nil {
			r.record(operation, time.Since(start), true, "", attempt)
			return nil
		}
		if IsTerminal(lastErr) {
			r.logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempt":   attempt + 1,
			}).Warn("terminal error, not retrying: ", lastErr)
			r.record(operation, time.Since(start), false, lastErr.Error(), attempt)
			return lastErr
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		delay := r.backoff(attempt) + r.jitter()
		r.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt + 1,
			"delay_ms":  delay.Milliseconds(),
		}).Warn("retryable failure: ", lastErr)
		if err := r.sleep(ctx, delay); err != nil {
			r.record(operation, time.Since(start), false, err.Error(), attempt)
			return err
		}
	}

	r.record(operation, time.Since(start), false, lastErr.Error(), r.cfg.MaxRetries)
	return lastErr
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(attemptCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return errTimeout
		}
		return attemptCtx.Err()
	}
}

var errTimeout = errors.New("operation timed out")

func (r *Retrier) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(r.cfg.BaseDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt)))
	if delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	return delay
}

func (r *Retrier) record(operation string, duration time.Duration, success bool, errMsg string, retries int) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordSample(operation, duration, success, errMsg, retries)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestRetrier(cfg RetryConfig) (*Retrier, *[]time.Duration) {
	r := NewRetrier(cfg, testLogger(), nil)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	r.jitter = func() time.Duration { return 0 }
	return r, &slept
}

func TestRetrierExhaustsAfterMaxRetriesPlusOneAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	r, slept := newTestRetrier(cfg)

	attempts := 0
	wantErr := errors.New("connection reset")
	err := r.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error to surface, got %v", err)
	}
	if attempts != cfg.MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxRetries+1, attempts)
	}
	if len(*slept) != cfg.MaxRetries {
		t.Fatalf("expected %d backoff waits, got %d", cfg.MaxRetries, len(*slept))
	}
}

func TestRetrierBackoffBounds(t *testing.T) {
	cfg := DefaultRetryConfig()
	r, slept := newTestRetrier(cfg)

	_ = r.Do(context.Background(), "op", func(context.Context) error {
		return errors.New("timeout talking to remote")
	})

	var total time.Duration
	for i, d := range *slept {
		want := time.Duration(float64(cfg.BaseDelay) * pow(cfg.BackoffFactor, i))
		if want > cfg.MaxDelay {
			want = cfg.MaxDelay
		}
		if d != want {
			t.Fatalf("wait %d: expected %v, got %v", i, want, d)
		}
		total += d
	}

	// 1s + 2s + 4s for the default config
	if total != 7*time.Second {
		t.Fatalf("expected 7s total backoff without jitter, got %v", total)
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func TestRetrierDoesNotRetryTerminalErrors(t *testing.T) {
	r, slept := newTestRetrier(DefaultRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return errors.New(`duplicate key value violates unique constraint "products_pkey"`)
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("terminal error should not be retried, got %d attempts", attempts)
	}
	if len(*slept) != 0 {
		t.Fatalf("terminal error should not wait, slept %v", *slept)
	}
}

func TestRetrierSucceedsAfterTransientFailures(t *testing.T) {
	r, _ := newTestRetrier(DefaultRetryConfig())

	attempts := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetrierTimesOutSlowAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 1
	cfg.Timeout = 20 * time.Millisecond
	r, _ := newTestRetrier(cfg)

	attempts := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, errTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("timeouts are retryable, expected 2 attempts, got %d", attempts)
	}
}

func TestIsTerminalClassification(t *testing.T) {
	cases := []struct {
		err      error
		terminal bool
	}{
		{errors.New("permission denied for table products"), true},
		{errors.New("invalid input syntax for type uuid"), true},
		{errors.New("null value violates not-null constraint"), true},
		{errors.New("customer required for credit sale"), true},
		{errors.New("connection reset by peer"), false},
		{errors.New("i/o timeout"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsTerminal(tc.err); got != tc.terminal {
			t.Fatalf("IsTerminal(%v) = %v, want %v", tc.err, got, tc.terminal)
		}
	}
}

func TestRetrierRecordsSamples(t *testing.T) {
	rec := &captureRecorder{}
	r := NewRetrier(DefaultRetryConfig(), testLogger(), rec)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	r.jitter = func() time.Duration { return 0 }

	_ = r.Do(context.Background(), "flaky", func(context.Context) error {
		return errors.New("connection refused")
	})

	if len(rec.samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(rec.samples))
	}
	s := rec.samples[0]
	if s.operation != "flaky" || s.success || s.retries != 3 {
		t.Fatalf("unexpected sample: %+v", s)
	}
}

type captureRecorder struct {
	samples []sample
}

func (c *captureRecorder) RecordSample(operation string, duration time.Duration, success bool, errMsg string, retries int) {
	c.samples = append(c.samples, sample{operation: operation, duration: duration, success: success, errMsg: errMsg, retries: retries})
}

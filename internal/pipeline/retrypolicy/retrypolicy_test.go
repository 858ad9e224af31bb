package retrypolicy_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	pipelineerr "github.com/r3e-labs/inmarket-pipeline/internal/platform/pipelineerr"
	"github.com/r3e-labs/inmarket-pipeline/internal/pipeline/retrypolicy"
)

func TestDo_RetriesTransientFailureUntilSuccess(t *testing.T) {
	var attempts int32
	err := retrypolicy.Do(context.Background(), retrypolicy.Config{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       0.1,
	}, func() error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return pipelineerr.SourceUnreachable("nse-bhavcopy", errors.New("refused"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	var attempts int32
	err := retrypolicy.Do(context.Background(), retrypolicy.Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}, func() error {
		atomic.AddInt32(&attempts, 1)
		return pipelineerr.SourceUnreachable("nse-bhavcopy", errors.New("refused"))
	})

	if err == nil {
		t.Fatal("Do() expected error after exhausting retries")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDo_DoesNotRetryNonRetryableError(t *testing.T) {
	var attempts int32
	wantErr := pipelineerr.MalformedRecord("nse-bulk-deals", 7, "bad column count")

	err := retrypolicy.Do(context.Background(), retrypolicy.Config{
		MaxAttempts:  5,
		InitialDelay: 5 * time.Millisecond,
	}, func() error {
		atomic.AddInt32(&attempts, 1)
		return wantErr
	})

	if err != wantErr {
		t.Fatalf("Do() error = %v, want %v", err, wantErr)
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("attempts = %d, want 1 (non-retryable error should not retry)", attempts)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := retrypolicy.Do(ctx, retrypolicy.Config{
		MaxAttempts:  50,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   1.0,
	}, func() error {
		return pipelineerr.SourceUnreachable("nse-bhavcopy", errors.New("refused"))
	})

	if err == nil {
		t.Fatal("Do() expected error from context cancellation")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Do() took %v, want it to stop shortly after context deadline", elapsed)
	}
}

func TestWarehouseConfig_HasLongerDelaysThanDefault(t *testing.T) {
	def := retrypolicy.DefaultConfig()
	wh := retrypolicy.WarehouseConfig()

	if wh.InitialDelay <= def.InitialDelay {
		t.Fatalf("WarehouseConfig().InitialDelay = %v, want > DefaultConfig().InitialDelay = %v", wh.InitialDelay, def.InitialDelay)
	}
}

package saga

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
)

// backoffBase, backoffFactor, and backoffCap are spec.md §4.6's retry
// policy: "up to max_retries attempts with exponential backoff (base
// 100ms, factor 2, jittered +/-25%, capped at 30s)".
const (
	backoffBase   = 100 * time.Millisecond
	backoffFactor = 2
	backoffCap    = 30 * time.Second
	jitterPct     = 0.25
)

// backoffDelay returns the delay before retry n (0-indexed: the delay
// before the second overall attempt is backoffDelay(0), i.e. the 100ms
// base), jittered +/-25% around base*2^n capped at 30s.
func backoffDelay(n int) time.Duration {
	d := backoffBase

	for i := 0; i < n; i++ {
		d *= backoffFactor
		if d > backoffCap {
			d = backoffCap
			break
		}
	}

	return jitter(d)
}

func jitter(d time.Duration) time.Duration {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return d
	}

	// Map the random 64 bits onto [-jitterPct, +jitterPct].
	frac := float64(binary.BigEndian.Uint64(b[:])) / float64(^uint64(0))
	offset := (frac*2 - 1) * jitterPct

	jittered := time.Duration(float64(d) * (1 + offset))
	if jittered < 0 {
		jittered = 0
	}

	return jittered
}

// doWithRetry runs fn, retrying up to maxRetries times on a retryable
// error (constant.Retryable) with jittered exponential backoff between
// attempts. It stops immediately on a non-retryable error, on ctx
// cancellation, or once maxRetries is exhausted. retryCount reports how
// many retry attempts were actually made, for the caller's StepRecord.
func doWithRetry(ctx context.Context, clk clock.Clock, maxRetries int, fn func(ctx context.Context) error) (retryCount int, err error) {
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}

		if !constant.Retryable(err) {
			return attempt, err
		}

		if attempt >= maxRetries {
			return attempt, err
		}

		delay := backoffDelay(attempt)

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-clk.After(delay):
		}
	}
}

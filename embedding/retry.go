// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/catmat/core"
)

// retryable reports whether a failed embedding request may succeed when
// sent again. Caller cancellation and malformed model output never do.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrDimensionMismatch), errors.Is(err, ErrCountMismatch), errors.Is(err, ErrZeroVector):
		return false
	case errors.Is(err, core.ErrModelLoad), errors.Is(err, ErrClosed):
		return false
	}
	return true
}

// retryWithBackoff runs request up to maxAttempts times, sleeping
// baseDelay*2^(n-1) after the nth failure. It stops early on errors that
// retryable rejects and returns the last error seen.
func retryWithBackoff(ctx context.Context, logger *slog.Logger, maxAttempts int, baseDelay time.Duration, request func() error) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = request()
		switch {
		case lastErr == nil:
			if attempt > 1 {
				logger.Debug("embedding request succeeded after retry", "attempt", attempt)
			}
			return nil
		case !retryable(lastErr):
			return lastErr
		case attempt == maxAttempts:
			return lastErr
		}

		delay := baseDelay << (attempt - 1)
		logger.Debug("embedding request failed, retrying", "attempt", attempt,
			"max_attempts", maxAttempts, "delay", delay, "err", lastErr)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

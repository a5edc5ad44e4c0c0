/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package retry is the bounded exponential backoff loop the event
// Writer and the Compactor both run on manifest conflicts and IO
// failures.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds a retry loop's attempt count and backoff growth.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy retries a handful of times with a short base delay;
// ManifestConflict under real contention resolves in one or two
// rounds, so this is deliberately not aggressive.
var DefaultPolicy = Policy{MaxAttempts: 8, BaseDelay: 5 * time.Millisecond, MaxDelay: 500 * time.Millisecond}

// Retriable is implemented by errors that know whether they're worth
// retrying; Do consults it to decide whether to try again.
type Retriable interface {
	Retriable() bool
}

// Do runs fn until it returns a nil error, fn reports the error is not
// retriable, the context is cancelled, or the policy's attempt budget
// is exhausted. Backoff is exponential with full jitter, the
// randomization strategy that avoids synchronized retry storms between
// concurrent writers/compactors racing the same Manifest key.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	delay := p.BaseDelay
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if r, ok := err.(Retriable); ok && !r.Retriable() {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		wait := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

// Copyright 2026 The vmtest Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package retry

import (
	"context"
	"time"
)

// Retry calls fn until it returns nil, the backoff policy returns Stop, or
// ctx is done. notify, if non-nil, is called with each error before the
// corresponding wait.
func Retry(ctx context.Context, backoff Backoff, fn func() error, notify func(error, time.Duration)) error {
	var err error
	for {
		if err = fn(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		default:
		}
		wait := backoff.Next()
		if wait == Stop {
			return err
		}
		if notify != nil {
			notify(err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// ErrTimeout is returned by Poll when the timeout elapses before op stops
// reporting StatusNotReady.
var ErrTimeout = errors.New("dispatch: timed out waiting for queue")

// Poll runs op until it returns a status other than shm.StatusNotReady,
// calling yield between attempts. It gives up with ErrTimeout once timeout
// has elapsed on clock, or with ctx.Err() once ctx is done. A zero timeout
// waits for ctx only. The last status seen is always returned.
func Poll(ctx context.Context, clock Clock, timeout time.Duration, yield func(), op func() shm.Status) (shm.Status, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = clock.Now().Add(timeout)
	}
	for {
		st := op()
		if st != shm.StatusNotReady {
			return st, nil
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if timeout > 0 && !clock.Now().Before(deadline) {
			return st, ErrTimeout
		}
		yield()
	}
}

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

package shm

import (
	"context"
	"errors"
	"time"
)

// ErrSegmentClosed is returned when the peer marked the segment closed.
var ErrSegmentClosed = errors.New("shm: segment closed")

// handshakePollInterval is how often the ready flags are polled.
const handshakePollInterval = time.Millisecond

// WaitForClient waits for the client to mark itself as ready.
// The server calls this after creating the segment to wait for a client connection.
func (s *Segment) WaitForClient(ctx context.Context) error {
	return s.waitFor(ctx, s.H.ClientReady)
}

// WaitForServer waits for the server to mark itself as ready.
// The client calls this after opening a segment to wait for server confirmation.
func (s *Segment) WaitForServer(ctx context.Context) error {
	return s.waitFor(ctx, s.H.ServerReady)
}

func (s *Segment) waitFor(ctx context.Context, ready func() bool) error {
	ticker := time.NewTicker(handshakePollInterval)
	defer ticker.Stop()

	for {
		if s.H.Closed() {
			return ErrSegmentClosed
		}
		if ready() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// MarkClosed tells the peer that this side is going away. Queued bytes stay
// readable; the peer decides whether to drain them.
func (s *Segment) MarkClosed() {
	if s.H != nil {
		s.H.SetClosed(true)
	}
}

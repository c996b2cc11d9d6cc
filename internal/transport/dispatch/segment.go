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
	"fmt"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// Dial attaches a client to seg, which the server process created. It
// publishes the table fingerprint, marks the client ready and waits for the
// server.
func Dial(ctx context.Context, seg *shm.Segment, table *Table, opts Options) (*Client, error) {
	seg.H.SetTableFingerprint(table.Fingerprint())
	seg.H.SetClientReady(true)

	if err := seg.WaitForServer(ctx); err != nil {
		return nil, fmt.Errorf("dispatch: wait for server: %w", err)
	}
	cmd, reply, err := seg.ClientEndpoints()
	if err != nil {
		return nil, fmt.Errorf("dispatch: attach client: %w", err)
	}
	return NewClient(cmd, reply, table, opts), nil
}

// Listen waits for a client to attach to seg and returns a server bound to
// it. The client's method table must match table.
func Listen(ctx context.Context, seg *shm.Segment, table *Table, opts Options) (*Server, error) {
	if err := seg.WaitForClient(ctx); err != nil {
		return nil, fmt.Errorf("dispatch: wait for client: %w", err)
	}
	if got, want := seg.H.TableFingerprint(), table.Fingerprint(); got != want {
		return nil, fmt.Errorf("dispatch: method table mismatch: client %#x, server %#x", got, want)
	}
	cmd, reply, err := seg.ServerEndpoints()
	if err != nil {
		return nil, fmt.Errorf("dispatch: attach server: %w", err)
	}
	return NewServer(cmd, reply, table, opts), nil
}

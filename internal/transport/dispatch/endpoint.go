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
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// Wire codecs for the command and reply headers.
var (
	methodIDCodec = shm.Uint32
	seqCodec      = shm.Uint64
)

// endpoint holds what the client and the server share: the method table,
// options, telemetry and the lost state. mu serialises every queue operation
// of one side, since each queue endpoint is single-threaded.
type endpoint struct {
	role  string
	table *Table
	opts  Options
	tel   *telemetry

	mu   sync.Mutex
	lost error
}

func (e *endpoint) init(role string, table *Table, opts Options) {
	e.role = role
	e.table = table
	e.opts = opts.validate()
	e.tel = newTelemetry(e.opts)
}

// Lost returns the error that made the channel unusable, or nil.
func (e *endpoint) Lost() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lost
}

// markLost records err as the reason the channel is gone and returns it.
// Later operations fail with an Unavailable error carrying the same reason.
// The caller holds e.mu.
func (e *endpoint) markLost(ctx context.Context, err error) error {
	if e.lost != nil {
		return err
	}
	if status.Code(err) == codes.Unavailable {
		e.lost = err
	} else {
		e.lost = lostError("%s", status.Convert(err).Message())
	}
	e.opts.Logger.Warn("shm channel lost", "role", e.role, "err", err)
	e.tel.lost.Add(ctx, 1)
	return err
}

// poll is Poll with the endpoint's options, counting not-ready retries.
func (e *endpoint) poll(ctx context.Context, method string, op func() shm.Status) (shm.Status, error) {
	var retries int64
	st, err := Poll(ctx, e.opts.Clock, e.opts.Timeout, e.opts.Yield, func() shm.Status {
		st := op()
		if st == shm.StatusNotReady {
			retries++
		}
		return st
	})
	if retries > 0 {
		e.tel.retries.Add(ctx, retries, methodAttrs(method))
	}
	return st, err
}

// fail converts a failed queue operation to an error. A timeout always loses
// the channel. Any other failure loses it when the peer may have observed
// part of the exchange (inFlight), or when the queue itself reported an
// error other than TooSmall.
func (e *endpoint) fail(ctx context.Context, op string, st shm.Status, err error, inFlight bool) error {
	switch {
	case err != nil:
		werr := waitError(op, err)
		if inFlight || errors.Is(err, ErrTimeout) {
			e.markLost(ctx, werr)
		}
		return werr
	case st == shm.StatusTooSmall:
		serr := statusError(op, st)
		if inFlight {
			e.markLost(ctx, serr)
		}
		return serr
	default:
		return e.markLost(ctx, statusError(op, st))
	}
}

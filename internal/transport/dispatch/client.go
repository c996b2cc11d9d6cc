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

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// Client issues calls over a command queue and reads replies from a reply
// queue. It is safe for concurrent use; calls are serialised.
type Client struct {
	endpoint

	cmd   *shm.Producer
	reply *shm.Consumer

	seq   uint64
	local *Server
}

// NewClient returns a client writing commands to cmd and reading replies from
// reply.
func NewClient(cmd *shm.Producer, reply *shm.Consumer, table *Table, opts Options) *Client {
	c := &Client{cmd: cmd, reply: reply}
	c.init("client", table, opts)
	return c
}

// BindLocal makes s the target of in-process calls. While Options.InProcess
// returns true and no command is still queued, Call and Post invoke s's
// handlers directly and leave both queues untouched. Size limits and the
// lost-channel rules of the queues still apply.
func (c *Client) BindLocal(s *Server) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = s
}

// inProcess reports whether the next operation may bypass the queues. Queued
// commands must run first, so the direct path waits for an empty command
// queue. The caller holds c.mu.
func (c *Client) inProcess() bool {
	return c.local != nil && c.opts.InProcess() && c.cmd.IsEmpty()
}

// checkFits fails with the TooSmall error the queue path would return when
// size can never fit in a queue of the given capacity.
func checkFits(op string, size int, capacity uint64) error {
	if uint64(size) > capacity {
		return statusError(op, shm.StatusTooSmall)
	}
	return nil
}

// invokeLocal runs the local handler of id. A missing handler loses the
// channel, as it does when the server finds one in the command queue.
// The caller holds c.mu.
func (c *Client) invokeLocal(ctx context.Context, id MethodID, req any) (any, error) {
	out, err := c.local.invoke(ctx, id, req)
	if err != nil && status.Code(err) == codes.Unimplemented {
		return nil, c.markLost(ctx, err)
	}
	return out, err
}

// Call invokes the synchronous method m and waits for its reply.
func Call[Req, Resp any](ctx context.Context, c *Client, m SyncMethod[Req, Resp], req Req) (Resp, error) {
	ctx, span := c.tel.tracer.Start(ctx, "shm.dispatch/"+m.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("shm.method_id", int64(m.ID))))
	defer span.End()

	resp, err := call(ctx, c, m, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return resp, err
}

func call[Req, Resp any](ctx context.Context, c *Client, m SyncMethod[Req, Resp], req Req) (Resp, error) {
	var zero Resp
	if !c.table.has(m.Descriptor()) {
		return zero, status.Errorf(codes.Unimplemented, "method %q (id %d) is not in the method table", m.Name, m.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost != nil {
		return zero, c.lost
	}
	c.tel.calls.Add(ctx, 1, methodAttrs(m.Name))
	start := c.opts.Clock.Now()

	if c.inProcess() {
		size := methodIDCodec.MinSize(nil) + seqCodec.MinSize(nil) + shm.In(m.Request, req).MinSize()
		if err := checkFits("send "+m.Name, size, c.cmd.Capacity()); err != nil {
			return zero, err
		}
		out, err := c.invokeLocal(ctx, m.ID, req)
		if err != nil {
			return zero, err
		}
		resp, ok := out.(Resp)
		if !ok {
			return zero, status.Errorf(codes.Internal, "handler for %q returned %T", m.Name, out)
		}
		// The server would fail to queue this reply after running the handler.
		size = seqCodec.MinSize(nil) + m.Response.MinSize(&resp)
		if err := checkFits("reply "+m.Name, size, c.reply.Capacity()); err != nil {
			return zero, c.markLost(ctx, err)
		}
		c.tel.recordLatency(ctx, m.Name, c.opts.Clock.Now().Sub(start))
		return resp, nil
	}

	seq := c.seq + 1
	st, err := c.poll(ctx, m.Name, func() shm.Status {
		return c.cmd.TryInsert(
			shm.In(methodIDCodec, uint32(m.ID)),
			shm.In(seqCodec, seq),
			shm.In(m.Request, req))
	})
	if err != nil || st != shm.StatusSuccess {
		return zero, c.fail(ctx, "send "+m.Name, st, err, false)
	}
	c.seq = seq

	var (
		gotSeq uint64
		resp   Resp
	)
	st, err = c.poll(ctx, m.Name, func() shm.Status {
		return c.reply.TryRemove(shm.Out(seqCodec, &gotSeq), shm.Out(m.Response, &resp))
	})
	if err != nil || st != shm.StatusSuccess {
		return zero, c.fail(ctx, "receive "+m.Name+" reply", st, err, true)
	}
	if gotSeq != seq {
		return zero, c.markLost(ctx, lostError("reply sequence %d for %q, want %d", gotSeq, m.Name, seq))
	}

	c.tel.recordLatency(ctx, m.Name, c.opts.Clock.Now().Sub(start))
	return resp, nil
}

// Post sends the asynchronous method m without waiting for it to run.
func Post[Req any](ctx context.Context, c *Client, m AsyncMethod[Req], req Req) error {
	if !c.table.has(m.Descriptor()) {
		return status.Errorf(codes.Unimplemented, "method %q (id %d) is not in the method table", m.Name, m.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost != nil {
		return c.lost
	}
	c.tel.posts.Add(ctx, 1, methodAttrs(m.Name))

	if c.inProcess() {
		size := methodIDCodec.MinSize(nil) + shm.In(m.Request, req).MinSize()
		if err := checkFits("send "+m.Name, size, c.cmd.Capacity()); err != nil {
			return err
		}
		_, err := c.invokeLocal(ctx, m.ID, req)
		return err
	}

	st, err := c.poll(ctx, m.Name, func() shm.Status {
		return c.cmd.TryInsert(shm.In(methodIDCodec, uint32(m.ID)), shm.In(m.Request, req))
	})
	if err != nil || st != shm.StatusSuccess {
		return c.fail(ctx, "send "+m.Name, st, err, false)
	}
	return nil
}

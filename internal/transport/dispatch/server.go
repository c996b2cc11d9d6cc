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
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// Server reads commands from a command queue, runs their handlers and writes
// replies for synchronous methods.
type Server struct {
	endpoint

	cmd   *shm.Consumer
	reply *shm.Producer

	hmu      sync.RWMutex
	handlers map[MethodID]handler
}

type handler interface {
	// serve removes one command from s.cmd, runs it and replies if needed.
	serve(ctx context.Context, s *Server) error
	// invoke runs the handler on an in-process request.
	invoke(ctx context.Context, req any) (any, error)
}

// NewServer returns a server reading commands from cmd and writing replies
// to reply.
func NewServer(cmd *shm.Consumer, reply *shm.Producer, table *Table, opts Options) *Server {
	s := &Server{
		cmd:      cmd,
		reply:    reply,
		handlers: make(map[MethodID]handler),
	}
	s.init("server", table, opts)
	return s
}

// HandleSync registers fn as the handler of m.
func HandleSync[Req, Resp any](s *Server, m SyncMethod[Req, Resp], fn func(context.Context, Req) Resp) error {
	return s.register(m.Descriptor(), &syncHandler[Req, Resp]{m: m, fn: fn})
}

// HandleAsync registers fn as the handler of m.
func HandleAsync[Req any](s *Server, m AsyncMethod[Req], fn func(context.Context, Req)) error {
	return s.register(m.Descriptor(), &asyncHandler[Req]{m: m, fn: fn})
}

func (s *Server) register(d Descriptor, h handler) error {
	if !s.table.has(d) {
		return fmt.Errorf("dispatch: %s method %q (id %d) is not in the method table", d.Kind, d.Name, d.ID)
	}
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if _, ok := s.handlers[d.ID]; ok {
		return fmt.Errorf("dispatch: handler for %q (id %d) already registered", d.Name, d.ID)
	}
	s.handlers[d.ID] = h
	return nil
}

func (s *Server) handler(id MethodID) (handler, bool) {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	h, ok := s.handlers[id]
	return h, ok
}

// invoke runs the handler of id directly, for in-process calls.
func (s *Server) invoke(ctx context.Context, id MethodID, req any) (any, error) {
	h, ok := s.handler(id)
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "no handler for method id %d", id)
	}
	return h.invoke(ctx, req)
}

// ServeOne handles at most one queued command. It reports whether a command
// was handled; (false, nil) means the command queue was empty.
func (s *Server) ServeOne(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost != nil {
		return false, s.lost
	}

	var id uint32
	switch st := s.cmd.TryPeek(shm.Out(methodIDCodec, &id)); st {
	case shm.StatusSuccess:
	case shm.StatusNotReady:
		return false, nil
	default:
		return false, s.fail(ctx, "peek command", st, nil, true)
	}

	h, ok := s.handler(MethodID(id))
	if !ok {
		d, known := s.table.Lookup(MethodID(id))
		s.opts.Logger.Error("no handler for command", "method_id", id, "method", d.Name, "in_table", known)
		err := status.Errorf(codes.Unimplemented, "no handler for method id %d", id)
		s.markLost(ctx, err)
		return false, err
	}
	return true, h.serve(ctx, s)
}

// Serve handles commands until ctx is done or the channel is lost.
func (s *Server) Serve(ctx context.Context) error {
	for {
		served, err := s.ServeOne(ctx)
		if err != nil {
			return err
		}
		if served {
			continue
		}
		if err := ctx.Err(); err != nil {
			return status.FromContextError(err).Err()
		}
		s.opts.Yield()
	}
}

type syncHandler[Req, Resp any] struct {
	m  SyncMethod[Req, Resp]
	fn func(context.Context, Req) Resp
}

func (h *syncHandler[Req, Resp]) serve(ctx context.Context, s *Server) error {
	var (
		seq uint64
		req Req
	)
	st := s.cmd.TryRemove(shm.Skip(methodIDCodec), shm.Out(seqCodec, &seq), shm.Out(h.m.Request, &req))
	if st != shm.StatusSuccess {
		return s.fail(ctx, "receive "+h.m.Name, st, nil, true)
	}

	resp := h.fn(ctx, req)

	st, err := s.poll(ctx, h.m.Name, func() shm.Status {
		return s.reply.TryInsert(shm.In(seqCodec, seq), shm.In(h.m.Response, resp))
	})
	if err != nil || st != shm.StatusSuccess {
		if dueling, diag := shm.DiagnoseDuelingQueues(s.cmd.Queue(), s.reply.Queue()); dueling {
			s.opts.Logger.Warn("reply queue blocked", "method", h.m.Name, "diagnostic", diag)
		}
		return s.fail(ctx, "reply "+h.m.Name, st, err, true)
	}
	return nil
}

func (h *syncHandler[Req, Resp]) invoke(ctx context.Context, req any) (any, error) {
	r, ok := req.(Req)
	if !ok {
		return nil, status.Errorf(codes.Internal, "%q called with %T", h.m.Name, req)
	}
	return h.fn(ctx, r), nil
}

type asyncHandler[Req any] struct {
	m  AsyncMethod[Req]
	fn func(context.Context, Req)
}

func (h *asyncHandler[Req]) serve(ctx context.Context, s *Server) error {
	var req Req
	if st := s.cmd.TryRemove(shm.Skip(methodIDCodec), shm.Out(h.m.Request, &req)); st != shm.StatusSuccess {
		return s.fail(ctx, "receive "+h.m.Name, st, nil, true)
	}
	h.fn(ctx, req)
	return nil
}

func (h *asyncHandler[Req]) invoke(ctx context.Context, req any) (any, error) {
	r, ok := req.(Req)
	if !ok {
		return nil, status.Errorf(codes.Internal, "%q called with %T", h.m.Name, req)
	}
	h.fn(ctx, r)
	return nil, nil
}

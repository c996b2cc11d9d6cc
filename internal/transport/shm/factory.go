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
	"fmt"
	"unsafe"
)

// NewQueuePair allocates a private, cache-line aligned region for a queue of
// the given capacity and returns its two endpoints.
func NewQueuePair(capacity, userBytes uint64) (*Producer, *Consumer, error) {
	l, err := CalculateLayout(capacity, userBytes)
	if err != nil {
		return nil, nil, err
	}
	return NewQueuePairFromMemory(allocAligned(l.Size), capacity, userBytes)
}

// NewQueuePairFromMemory initialises a queue inside mem, which must hold at
// least CalculateLayout(capacity, userBytes).Size bytes, and returns its two
// endpoints. Both cursors are reset; any queued bytes are dropped.
func NewQueuePairFromMemory(mem []byte, capacity, userBytes uint64) (*Producer, *Consumer, error) {
	q, err := InitQueue(mem, capacity, userBytes)
	if err != nil {
		return nil, nil, err
	}
	return &Producer{q: q}, &Consumer{q: q}, nil
}

// InitQueue resets the cursors of the queue inside mem. The creator of a
// shared region calls it once, before either endpoint attaches.
func InitQueue(mem []byte, capacity, userBytes uint64) (*Queue, error) {
	q, err := newQueue(mem, capacity, userBytes)
	if err != nil {
		return nil, err
	}
	q.readCur.Store(0)
	q.writeCur.Store(0)
	return q, nil
}

// AttachProducer binds a producer to an initialised queue inside mem,
// resuming from the current write cursor.
func AttachProducer(mem []byte, capacity, userBytes uint64) (*Producer, error) {
	q, err := attach(mem, capacity, userBytes)
	if err != nil {
		return nil, err
	}
	return &Producer{q: q, write: q.writeCur.Load()}, nil
}

// AttachConsumer binds a consumer to an initialised queue inside mem,
// resuming from the current read cursor.
func AttachConsumer(mem []byte, capacity, userBytes uint64) (*Consumer, error) {
	q, err := attach(mem, capacity, userBytes)
	if err != nil {
		return nil, err
	}
	return &Consumer{q: q, read: q.readCur.Load()}, nil
}

func attach(mem []byte, capacity, userBytes uint64) (*Queue, error) {
	q, err := newQueue(mem, capacity, userBytes)
	if err != nil {
		return nil, err
	}
	if r, w := q.readCur.Load(), q.writeCur.Load(); !q.isValid(r, w) {
		return nil, fmt.Errorf("queue cursors out of range: read=%d write=%d buffer=%d", r, w, q.bufferSize())
	}
	return q, nil
}

// allocAligned returns size zeroed bytes whose first byte sits on a cache
// line boundary.
func allocAligned(size uint64) []byte {
	raw := make([]byte, size+CacheLineSize)
	base := uint64(uintptr(unsafe.Pointer(&raw[0])))
	off := alignUp(base, CacheLineSize) - base
	return raw[off : off+size : off+size]
}

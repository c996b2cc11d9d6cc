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
	"sync/atomic"
	"unsafe"
)

// QueueState is a snapshot of queue state for debugging and diagnostics.
type QueueState struct {
	Capacity uint64 // logical capacity in bytes
	Read     uint64 // read cursor
	Write    uint64 // write cursor
	Used     uint64 // bytes currently queued
}

// Queue is the part of a queue shared by both endpoints: the ring bytes, the
// two cursor words and the user region, all living inside one region.
//
// Queue never mutates a cursor. The Producer owns the write cursor and the
// Consumer owns the read cursor.
type Queue struct {
	layout Layout
	mem    []byte // whole region
	buf    []byte // ring bytes, len == layout.BufferSize
	user   []byte

	readCur  *atomic.Uint64
	writeCur *atomic.Uint64
}

// newQueue binds a Queue to mem. Cursors are left untouched.
func newQueue(mem []byte, capacity, userBytes uint64) (*Queue, error) {
	l, err := CalculateLayout(capacity, userBytes)
	if err != nil {
		return nil, err
	}
	if len(mem) == 0 {
		return nil, fmt.Errorf("queue region is empty")
	}
	if uint64(len(mem)) < l.Size {
		return nil, fmt.Errorf("queue region too small: got %d bytes, need %d", len(mem), l.Size)
	}

	readPtr := unsafe.Pointer(&mem[l.ReadCursorOffset])
	writePtr := unsafe.Pointer(&mem[l.WriteCursorOffset])
	if uintptr(readPtr)%cursorSize != 0 || uintptr(writePtr)%cursorSize != 0 {
		return nil, fmt.Errorf("queue region base %p is not %d-byte aligned", unsafe.Pointer(&mem[0]), cursorSize)
	}

	return &Queue{
		layout:   l,
		mem:      mem[:l.Size:l.Size],
		buf:      mem[:l.BufferSize:l.BufferSize],
		user:     mem[l.UserOffset:l.Size:l.Size],
		readCur:  (*atomic.Uint64)(readPtr),
		writeCur: (*atomic.Uint64)(writePtr),
	}, nil
}

// Capacity returns the logical capacity in bytes.
func (q *Queue) Capacity() uint64 { return q.layout.Capacity }

// Layout returns the region layout the queue was built with.
func (q *Queue) Layout() Layout { return q.layout }

// UserBytes returns the caller-owned trailing region. The queue never reads
// or writes it.
func (q *Queue) UserBytes() []byte { return q.user }

// Used returns the number of bytes currently queued. The value may be stale
// by the time it is returned.
func (q *Queue) Used() uint64 {
	return q.used(q.readCur.Load(), q.writeCur.Load())
}

// Free returns the number of bytes that can currently be inserted. The value
// may be stale by the time it is returned.
func (q *Queue) Free() uint64 {
	return q.free(q.readCur.Load(), q.writeCur.Load())
}

// DebugState returns a snapshot of the queue cursors.
func (q *Queue) DebugState() QueueState {
	r := q.readCur.Load()
	w := q.writeCur.Load()
	st := QueueState{Capacity: q.Capacity(), Read: r, Write: w}
	if q.isValid(r, w) {
		st.Used = q.used(r, w)
	}
	return st
}

// Ring arithmetic. All of it is pure and may run on stale cursor values.

func (q *Queue) bufferSize() uint64 { return q.layout.BufferSize }

func (q *Queue) used(read, write uint64) uint64 {
	return usedBytes(q.bufferSize(), read, write)
}

func (q *Queue) free(read, write uint64) uint64 {
	return q.layout.Capacity - q.used(read, write)
}

func (q *Queue) isEmpty(read, write uint64) bool { return read == write }

func (q *Queue) isFull(read, write uint64) bool { return q.free(read, write) == 0 }

func (q *Queue) isValid(read, write uint64) bool {
	return read < q.bufferSize() && write < q.bufferSize()
}

func usedBytes(bufSize, read, write uint64) uint64 {
	if write >= read {
		return write - read
	}
	return bufSize - read + write
}

// writeObject copies src into buf at *write, wrapping at len(buf), and
// advances *write. It fails with StatusNotReady when fewer than len(src)
// bytes are free between read and *write.
func writeObject(buf []byte, read uint64, write *uint64, src []byte) Status {
	size := uint64(len(buf))
	n := uint64(len(src))
	w := *write
	if size-1-usedBytes(size, read, w) < n {
		return StatusNotReady
	}
	if n == 0 {
		return StatusSuccess
	}

	first := size - w
	if first > n {
		first = n
	}
	copy(buf[w:w+first], src[:first])
	if rest := n - first; rest > 0 {
		copy(buf[:rest], src[first:])
	}

	*write = (w + n) % size
	return StatusSuccess
}

// readObject copies n bytes from buf at *read into dst, wrapping at len(buf),
// and advances *read. A nil dst skips the bytes. It fails with
// StatusNotReady when fewer than n bytes are queued between *read and write.
func readObject(buf []byte, write uint64, read *uint64, dst []byte, n uint64) Status {
	size := uint64(len(buf))
	r := *read
	if usedBytes(size, r, write) < n {
		return StatusNotReady
	}
	if dst != nil {
		if uint64(len(dst)) < n {
			return StatusFatalError
		}
		first := size - r
		if first > n {
			first = n
		}
		copy(dst[:first], buf[r:r+first])
		if rest := n - first; rest > 0 {
			copy(dst[first:n], buf[:rest])
		}
	}

	*read = (r + n) % size
	return StatusSuccess
}

// DiagnoseDuelingQueues checks if both queues of a command/reply pair are
// nearly full, which means both sides are blocked on each other.
func DiagnoseDuelingQueues(command, reply *Queue) (bool, string) {
	cs := command.DebugState()
	rs := reply.DebugState()

	csPct := float64(cs.Used) / float64(cs.Capacity) * 100
	rsPct := float64(rs.Used) / float64(rs.Capacity) * 100
	dueling := csPct >= 95.0 && rsPct >= 95.0

	diagnostic := "Queue state:\n"
	if dueling {
		diagnostic = "DUELING FULL QUEUES DETECTED:\n"
	}
	diagnostic += fmt.Sprintf("command: used=%d/%d (%.1f%%) read=%d write=%d\n",
		cs.Used, cs.Capacity, csPct, cs.Read, cs.Write)
	diagnostic += fmt.Sprintf("reply:   used=%d/%d (%.1f%%) read=%d write=%d\n",
		rs.Used, rs.Capacity, rsPct, rs.Read, rs.Write)
	if dueling {
		diagnostic += "The caller cannot insert commands and the server cannot insert replies; drain replies before issuing more commands."
	}
	return dueling, diagnostic
}

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

import "encoding/binary"

// noCopy may be embedded into structs which must not be copied after first
// use. See go vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Producer is the writing endpoint of a queue. It owns the write cursor.
//
// A Producer must be used by one goroutine at a time. It may be handed to
// another goroutine, but never shared.
type Producer struct {
	_ noCopy

	q     *Queue
	write uint64 // cached copy of the write cursor; only this endpoint stores it
}

// Queue returns the shared queue the producer writes to.
func (p *Producer) Queue() *Queue { return p.q }

// Capacity returns the logical queue capacity in bytes.
func (p *Producer) Capacity() uint64 { return p.q.Capacity() }

// Used returns the (possibly stale) number of queued bytes.
func (p *Producer) Used() uint64 { return p.q.used(p.q.readCur.Load(), p.write) }

// Free returns the (possibly stale) number of bytes that can be inserted.
func (p *Producer) Free() uint64 { return p.q.free(p.q.readCur.Load(), p.write) }

// IsEmpty reports whether the consumer has drained everything inserted.
func (p *Producer) IsEmpty() bool { return p.q.isEmpty(p.q.readCur.Load(), p.write) }

// IsFull reports whether no byte can currently be inserted.
func (p *Producer) IsFull() bool { return p.q.isFull(p.q.readCur.Load(), p.write) }

// TryInsert serializes args, in order, as one transaction.
//
// Either every argument is written and the write cursor is published, or
// nothing shared changes. StatusNotReady means there is not enough free space
// right now; StatusTooSmall means the queue can never hold the arguments.
func (p *Producer) TryInsert(args ...Encoder) Status {
	q := p.q
	read := q.readCur.Load() // pairs with the consumer's commit
	write := p.write
	if !q.isValid(read, write) {
		return StatusFatalError
	}

	view := ProducerView{buf: q.buf, read: read, write: write}

	var need uint64
	for _, a := range args {
		need += uint64(a.MinSize())
	}
	if need > q.Capacity() {
		return StatusTooSmall
	}
	if q.free(read, write) < need {
		return StatusNotReady
	}

	for _, a := range args {
		if st := a.Encode(&view); st != StatusSuccess {
			return st
		}
	}

	// A codec that writes less than it promised breaks the size check above.
	if q.used(write, view.write) < need {
		return StatusFatalError
	}

	p.write = view.write
	q.writeCur.Store(view.write) // publishes the bytes written above
	return StatusSuccess
}

// ProducerView is the transaction-scoped target codecs write into. Writes
// advance a tentative cursor that is only published when the whole
// TryInsert succeeds.
type ProducerView struct {
	buf   []byte
	read  uint64
	write uint64
}

// Write appends p to the transaction.
func (v *ProducerView) Write(p []byte) Status {
	return writeObject(v.buf, v.read, &v.write, p)
}

// WriteUint8 appends one byte.
func (v *ProducerView) WriteUint8(x uint8) Status {
	b := [1]byte{x}
	return v.Write(b[:])
}

// WriteUint32 appends x in little-endian order.
func (v *ProducerView) WriteUint32(x uint32) Status {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], x)
	return v.Write(b[:])
}

// WriteUint64 appends x in little-endian order.
func (v *ProducerView) WriteUint64(x uint64) Status {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], x)
	return v.Write(b[:])
}

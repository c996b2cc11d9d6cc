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

// Consumer is the reading endpoint of a queue. It owns the read cursor.
//
// A Consumer must be used by one goroutine at a time. It may be handed to
// another goroutine, but never shared.
type Consumer struct {
	_ noCopy

	q    *Queue
	read uint64 // cached copy of the read cursor; only this endpoint stores it
}

// Queue returns the shared queue the consumer reads from.
func (c *Consumer) Queue() *Queue { return c.q }

// Capacity returns the logical queue capacity in bytes.
func (c *Consumer) Capacity() uint64 { return c.q.Capacity() }

// Used returns the (possibly stale) number of queued bytes.
func (c *Consumer) Used() uint64 { return c.q.used(c.read, c.q.writeCur.Load()) }

// Free returns the (possibly stale) number of free bytes.
func (c *Consumer) Free() uint64 { return c.q.free(c.read, c.q.writeCur.Load()) }

// IsEmpty reports whether nothing is queued.
func (c *Consumer) IsEmpty() bool { return c.q.isEmpty(c.read, c.q.writeCur.Load()) }

// IsFull reports whether the producer cannot insert a single byte.
func (c *Consumer) IsFull() bool { return c.q.isFull(c.read, c.q.writeCur.Load()) }

// TryPeek deserializes outs, in order, without consuming anything. The read
// cursor is never published, so repeated peeks observe the same values.
func (c *Consumer) TryPeek(outs ...Decoder) Status {
	st, _ := c.tryRead(outs)
	return st
}

// TryRemove deserializes outs, in order, and consumes them as one
// transaction. Decoders built with Skip discard their value.
//
// On failure the read cursor is left where it was; output values may have
// been partially filled.
func (c *Consumer) TryRemove(outs ...Decoder) Status {
	st, read := c.tryRead(outs)
	if st != StatusSuccess {
		return st
	}
	c.read = read
	c.q.readCur.Store(read) // hands the bytes back to the producer
	return StatusSuccess
}

func (c *Consumer) tryRead(outs []Decoder) (Status, uint64) {
	q := c.q
	write := q.writeCur.Load() // pairs with the producer's commit
	read := c.read
	if !q.isValid(read, write) {
		return StatusFatalError, read
	}

	view := ConsumerView{buf: q.buf, write: write, read: read}

	var need uint64
	for _, o := range outs {
		need += uint64(o.MinSize())
	}
	if need > q.Capacity() {
		return StatusTooSmall, read
	}
	if q.used(read, write) < need {
		return StatusNotReady, read
	}

	for _, o := range outs {
		if st := o.Decode(&view); st != StatusSuccess {
			return st, read
		}
	}
	return StatusSuccess, view.read
}

// ConsumerView is the transaction-scoped source codecs read from. Reads
// advance a tentative cursor that is only published by a successful
// TryRemove.
type ConsumerView struct {
	buf   []byte
	write uint64
	read  uint64
}

// Read fills p from the transaction.
func (v *ConsumerView) Read(p []byte) Status {
	return readObject(v.buf, v.write, &v.read, p, uint64(len(p)))
}

// Skip discards n bytes.
func (v *ConsumerView) Skip(n uint64) Status {
	return readObject(v.buf, v.write, &v.read, nil, n)
}

// ReadUint8 reads one byte.
func (v *ConsumerView) ReadUint8() (uint8, Status) {
	var b [1]byte
	st := v.Read(b[:])
	return b[0], st
}

// ReadUint32 reads a little-endian uint32.
func (v *ConsumerView) ReadUint32() (uint32, Status) {
	var b [4]byte
	if st := v.Read(b[:]); st != StatusSuccess {
		return 0, st
	}
	return binary.LittleEndian.Uint32(b[:]), StatusSuccess
}

// ReadUint64 reads a little-endian uint64.
func (v *ConsumerView) ReadUint64() (uint64, Status) {
	var b [8]byte
	if st := v.Read(b[:]); st != StatusSuccess {
		return 0, st
	}
	return binary.LittleEndian.Uint64(b[:]), StatusSuccess
}

// Available returns the bytes still unread by this transaction.
func (v *ConsumerView) Available() uint64 {
	return usedBytes(uint64(len(v.buf)), v.read, v.write)
}

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
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is the alignment used for the cursor words so that the
// producer's and the consumer's cursors never share a cache line.
const CacheLineSize = uint64(unsafe.Sizeof(cpu.CacheLinePad{}))

const (
	// cursorSize is the size of one cursor word.
	cursorSize = 8

	// MaxCapacity bounds the logical queue capacity so layout arithmetic
	// cannot overflow.
	MaxCapacity = uint64(1) << 48
)

// Layout describes how one queue region is partitioned:
//
//	[ ring (Capacity+1) | pad | read cursor | pad | write cursor | pad | user ]
//
// Every offset is relative to the start of the region. Both endpoints derive
// the same Layout from (capacity, userBytes) alone.
type Layout struct {
	Capacity          uint64 // logical capacity in bytes
	BufferSize        uint64 // ring bytes, Capacity+1
	ReadCursorOffset  uint64 // cache-line aligned
	WriteCursorOffset uint64 // cache-line aligned, next line after the read cursor
	UserOffset        uint64 // start of the caller-owned trailing region
	UserSize          uint64
	Size              uint64 // total region size required
}

// CalculateLayout computes the region layout for a queue of the given logical
// capacity followed by userBytes of caller-owned memory.
func CalculateLayout(capacity, userBytes uint64) (Layout, error) {
	if capacity == 0 {
		return Layout{}, errors.New("queue capacity must be positive")
	}
	if capacity > MaxCapacity {
		return Layout{}, fmt.Errorf("queue capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}
	if userBytes > MaxCapacity {
		return Layout{}, fmt.Errorf("user region %d exceeds maximum %d", userBytes, MaxCapacity)
	}

	bufSize := capacity + 1
	readOff := alignUp(bufSize, CacheLineSize)
	writeOff := readOff + CacheLineSize
	userOff := writeOff + CacheLineSize

	return Layout{
		Capacity:          capacity,
		BufferSize:        bufSize,
		ReadCursorOffset:  readOff,
		WriteCursorOffset: writeOff,
		UserOffset:        userOff,
		UserSize:          userBytes,
		Size:              userOff + userBytes,
	}, nil
}

// HeaderOverhead returns the bytes a region needs beyond the ring itself.
func (l Layout) HeaderOverhead() uint64 {
	return l.UserOffset - l.BufferSize
}

// alignUp rounds n up to a multiple of align, which must be a power of two.
func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

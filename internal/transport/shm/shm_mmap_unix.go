//go:build unix

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
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CreateSegment creates and maps a new shared memory segment. The creator
// acts as the server: it initialises both queues and marks itself ready.
func CreateSegment(name string, opts SegmentOptions) (*Segment, error) {
	path := generateSegmentPath(name)

	layout, err := CalculateSegmentLayout(opts)
	if err != nil {
		return nil, fmt.Errorf("layout calculation failed: %w", err)
	}

	// Create the file with exclusive access
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(layout.TotalSize)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}

	mem, err := mmapFile(file, int(layout.TotalSize))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	segment := &Segment{
		File:   file,
		Mem:    mem,
		Path:   path,
		H:      (*SegmentHeader)(unsafe.Pointer(&mem[0])),
		layout: layout,
	}

	if _, err := InitQueue(segment.commandRegion(), opts.CommandCapacity, opts.UserBytes); err != nil {
		segment.Close()
		os.Remove(path)
		return nil, fmt.Errorf("command queue: %w", err)
	}
	if _, err := InitQueue(segment.replyRegion(), opts.ReplyCapacity, opts.UserBytes); err != nil {
		segment.Close()
		os.Remove(path)
		return nil, fmt.Errorf("reply queue: %w", err)
	}

	initSegmentHeader(segment.H, layout, opts)
	segment.H.SetServerReady(true)

	return segment, nil
}

// OpenSegment maps an existing shared memory segment for the client.
func OpenSegment(name string) (*Segment, error) {
	path := generateSegmentPath(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}

	size := info.Size()
	if size < SegmentHeaderSize {
		file.Close()
		return nil, fmt.Errorf("segment file too small: %d bytes", size)
	}

	mem, err := mmapFile(file, int(size))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap segment: %w", err)
	}

	hdr := (*SegmentHeader)(unsafe.Pointer(&mem[0]))
	if err := ValidateSegmentHeader(hdr); err != nil {
		munmapImpl(mem)
		file.Close()
		return nil, fmt.Errorf("invalid segment header: %w", err)
	}
	if uint64(size) < hdr.TotalSize() {
		munmapImpl(mem)
		file.Close()
		return nil, fmt.Errorf("segment file truncated: %d bytes, header says %d", size, hdr.TotalSize())
	}

	layout, err := CalculateSegmentLayout(SegmentOptions{
		CommandCapacity: hdr.CommandCapacity(),
		ReplyCapacity:   hdr.ReplyCapacity(),
		UserBytes:       hdr.UserBytes(),
	})
	if err != nil {
		munmapImpl(mem)
		file.Close()
		return nil, err
	}

	segment := &Segment{
		File:   file,
		Mem:    mem,
		Path:   path,
		H:      hdr,
		layout: layout,
	}
	segment.H.SetClientPID(uint32(os.Getpid()))

	return segment, nil
}

// mmapFile memory maps a file
func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

// munmapImpl unmaps a memory-mapped region
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}

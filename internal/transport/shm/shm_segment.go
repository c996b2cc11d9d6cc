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
	"os"
	"path/filepath"
	"sync/atomic"
)

// Memory layout constants
const (
	// Magic bytes for segment identification
	SegmentMagic = "SHMCMD\x00\x00"

	// Current segment format version
	SegmentVersion = uint32(1)

	// Segment header size
	SegmentHeaderSize = 128

	// Default queue capacities
	DefaultCommandCapacity = 1024 * 1024 // client -> server
	DefaultReplyCapacity   = 64 * 1024   // server -> client

	segmentFilePrefix = "shmcmd_"
)

// SegmentOptions configures the two queues of a segment.
type SegmentOptions struct {
	// CommandCapacity is the logical capacity of the client->server queue.
	CommandCapacity uint64
	// ReplyCapacity is the logical capacity of the server->client queue.
	ReplyCapacity uint64
	// UserBytes is the size of the caller-owned region trailing each queue.
	UserBytes uint64
}

// DefaultSegmentOptions returns the default queue capacities.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{
		CommandCapacity: DefaultCommandCapacity,
		ReplyCapacity:   DefaultReplyCapacity,
	}
}

// SegmentHeader is the header at the start of a shared segment.
type SegmentHeader struct {
	magic       [8]byte  // 0x00: "SHMCMD\0\0"
	version     uint32   // 0x08: format version
	flags       uint32   // 0x0C: reserved flags
	totalSize   uint64   // 0x10: total segment size
	cmdOff      uint64   // 0x18: offset of the command queue region
	cmdCap      uint64   // 0x20: command queue capacity
	replyOff    uint64   // 0x28: offset of the reply queue region
	replyCap    uint64   // 0x30: reply queue capacity
	userBytes   uint64   // 0x38: user bytes trailing each queue
	serverPID   uint32   // 0x40: server process ID
	clientPID   uint32   // 0x44: client process ID
	serverReady uint32   // 0x48: server ready flag (0->1)
	clientReady uint32   // 0x4C: client ready flag (0->1)
	closed      uint32   // 0x50: closed flag (0 open, 1 closed)
	pad         uint32   // 0x54: padding
	tableFP     uint64   // 0x58: method table fingerprint published by the client
	reserved    [32]byte // 0x60-0x7F: reserved
}

// Magic returns the magic bytes
func (h *SegmentHeader) Magic() [8]byte { return h.magic }

// Version returns the format version
func (h *SegmentHeader) Version() uint32 { return atomic.LoadUint32(&h.version) }

// TotalSize returns the total segment size
func (h *SegmentHeader) TotalSize() uint64 { return atomic.LoadUint64(&h.totalSize) }

// CommandCapacity returns the command queue capacity
func (h *SegmentHeader) CommandCapacity() uint64 { return atomic.LoadUint64(&h.cmdCap) }

// ReplyCapacity returns the reply queue capacity
func (h *SegmentHeader) ReplyCapacity() uint64 { return atomic.LoadUint64(&h.replyCap) }

// UserBytes returns the size of the user region trailing each queue
func (h *SegmentHeader) UserBytes() uint64 { return atomic.LoadUint64(&h.userBytes) }

// ServerPID returns the server process ID
func (h *SegmentHeader) ServerPID() uint32 { return atomic.LoadUint32(&h.serverPID) }

// ClientPID returns the client process ID
func (h *SegmentHeader) ClientPID() uint32 { return atomic.LoadUint32(&h.clientPID) }

// SetClientPID sets the client process ID
func (h *SegmentHeader) SetClientPID(pid uint32) { atomic.StoreUint32(&h.clientPID, pid) }

// ServerReady returns the server ready flag
func (h *SegmentHeader) ServerReady() bool { return atomic.LoadUint32(&h.serverReady) != 0 }

// SetServerReady sets the server ready flag
func (h *SegmentHeader) SetServerReady(ready bool) { atomic.StoreUint32(&h.serverReady, b2u(ready)) }

// ClientReady returns the client ready flag
func (h *SegmentHeader) ClientReady() bool { return atomic.LoadUint32(&h.clientReady) != 0 }

// SetClientReady sets the client ready flag
func (h *SegmentHeader) SetClientReady(ready bool) { atomic.StoreUint32(&h.clientReady, b2u(ready)) }

// Closed returns the closed flag
func (h *SegmentHeader) Closed() bool { return atomic.LoadUint32(&h.closed) != 0 }

// SetClosed sets the closed flag
func (h *SegmentHeader) SetClosed(closed bool) { atomic.StoreUint32(&h.closed, b2u(closed)) }

// TableFingerprint returns the method table fingerprint published by the client.
func (h *SegmentHeader) TableFingerprint() uint64 { return atomic.LoadUint64(&h.tableFP) }

// SetTableFingerprint publishes the client's method table fingerprint.
func (h *SegmentHeader) SetTableFingerprint(fp uint64) { atomic.StoreUint64(&h.tableFP, fp) }

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// SegmentLayout places the command and reply queue regions inside a segment.
type SegmentLayout struct {
	TotalSize     uint64
	CommandOffset uint64
	ReplyOffset   uint64
	Command       Layout
	Reply         Layout
}

// CalculateSegmentLayout calculates the memory layout for a segment holding
// a command queue and a reply queue.
func CalculateSegmentLayout(opts SegmentOptions) (SegmentLayout, error) {
	cmd, err := CalculateLayout(opts.CommandCapacity, opts.UserBytes)
	if err != nil {
		return SegmentLayout{}, fmt.Errorf("command queue: %w", err)
	}
	reply, err := CalculateLayout(opts.ReplyCapacity, opts.UserBytes)
	if err != nil {
		return SegmentLayout{}, fmt.Errorf("reply queue: %w", err)
	}

	cmdOff := alignUp(SegmentHeaderSize, CacheLineSize)
	replyOff := alignUp(cmdOff+cmd.Size, CacheLineSize)
	return SegmentLayout{
		TotalSize:     alignUp(replyOff+reply.Size, CacheLineSize),
		CommandOffset: cmdOff,
		ReplyOffset:   replyOff,
		Command:       cmd,
		Reply:         reply,
	}, nil
}

// ValidateSegmentHeader validates a segment header for consistency
func ValidateSegmentHeader(h *SegmentHeader) error {
	if string(h.magic[:]) != SegmentMagic {
		return errors.New("invalid magic bytes")
	}
	if h.Version() != SegmentVersion {
		return fmt.Errorf("unsupported version %d, expected %d", h.Version(), SegmentVersion)
	}

	expected, err := CalculateSegmentLayout(SegmentOptions{
		CommandCapacity: h.CommandCapacity(),
		ReplyCapacity:   h.ReplyCapacity(),
		UserBytes:       h.UserBytes(),
	})
	if err != nil {
		return fmt.Errorf("layout calculation failed: %w", err)
	}
	if h.TotalSize() != expected.TotalSize {
		return fmt.Errorf("total size mismatch: got %d, expected %d", h.TotalSize(), expected.TotalSize)
	}
	if got := atomic.LoadUint64(&h.cmdOff); got != expected.CommandOffset {
		return fmt.Errorf("command queue offset mismatch: got %d, expected %d", got, expected.CommandOffset)
	}
	if got := atomic.LoadUint64(&h.replyOff); got != expected.ReplyOffset {
		return fmt.Errorf("reply queue offset mismatch: got %d, expected %d", got, expected.ReplyOffset)
	}
	return nil
}

// initSegmentHeader writes a fresh header for layout l.
func initSegmentHeader(h *SegmentHeader, l SegmentLayout, opts SegmentOptions) {
	copy(h.magic[:], SegmentMagic)
	atomic.StoreUint32(&h.version, SegmentVersion)
	atomic.StoreUint64(&h.totalSize, l.TotalSize)
	atomic.StoreUint64(&h.cmdOff, l.CommandOffset)
	atomic.StoreUint64(&h.cmdCap, opts.CommandCapacity)
	atomic.StoreUint64(&h.replyOff, l.ReplyOffset)
	atomic.StoreUint64(&h.replyCap, opts.ReplyCapacity)
	atomic.StoreUint64(&h.userBytes, opts.UserBytes)
	atomic.StoreUint32(&h.serverPID, uint32(os.Getpid()))
}

// Segment represents a mapped shared memory segment holding a command queue
// (client -> server) and a reply queue (server -> client).
type Segment struct {
	File   *os.File       // File backing the shared memory
	Mem    []byte         // Memory-mapped region
	H      *SegmentHeader // Segment header at the start of Mem
	Path   string         // File path
	layout SegmentLayout
}

// Layout returns the segment layout.
func (s *Segment) Layout() SegmentLayout { return s.layout }

func (s *Segment) commandRegion() []byte {
	off := s.layout.CommandOffset
	return s.Mem[off : off+s.layout.Command.Size]
}

func (s *Segment) replyRegion() []byte {
	off := s.layout.ReplyOffset
	return s.Mem[off : off+s.layout.Reply.Size]
}

// ClientEndpoints returns the client's command producer and reply consumer.
func (s *Segment) ClientEndpoints() (*Producer, *Consumer, error) {
	cmd, err := AttachProducer(s.commandRegion(), s.layout.Command.Capacity, s.layout.Command.UserSize)
	if err != nil {
		return nil, nil, fmt.Errorf("command queue: %w", err)
	}
	reply, err := AttachConsumer(s.replyRegion(), s.layout.Reply.Capacity, s.layout.Reply.UserSize)
	if err != nil {
		return nil, nil, fmt.Errorf("reply queue: %w", err)
	}
	return cmd, reply, nil
}

// ServerEndpoints returns the server's command consumer and reply producer.
func (s *Segment) ServerEndpoints() (*Consumer, *Producer, error) {
	cmd, err := AttachConsumer(s.commandRegion(), s.layout.Command.Capacity, s.layout.Command.UserSize)
	if err != nil {
		return nil, nil, fmt.Errorf("command queue: %w", err)
	}
	reply, err := AttachProducer(s.replyRegion(), s.layout.Reply.Capacity, s.layout.Reply.UserSize)
	if err != nil {
		return nil, nil, fmt.Errorf("reply queue: %w", err)
	}
	return cmd, reply, nil
}

// Close unmaps the memory and closes the file. The file itself stays until
// RemoveSegment.
func (s *Segment) Close() error {
	var firstErr error

	if s.Mem != nil {
		if err := munmapImpl(s.Mem); err != nil && firstErr == nil {
			firstErr = err
		}
		s.Mem = nil
		s.H = nil
	}

	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}

	return firstErr
}

// generateSegmentPath generates the file path for a shared memory segment
func generateSegmentPath(name string) string {
	// Prefer /dev/shm (tmpfs) on Linux
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", segmentFilePrefix+name)
	}
	return filepath.Join(os.TempDir(), segmentFilePrefix+name)
}

// isDevShmAvailable checks if /dev/shm is available
func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}

func candidatePaths(name string) []string {
	return []string{
		filepath.Join("/dev/shm", segmentFilePrefix+name),
		filepath.Join(os.TempDir(), segmentFilePrefix+name),
	}
}

// RemoveSegment removes a shared memory segment file
func RemoveSegment(name string) error {
	var lastErr error
	for _, path := range candidatePaths(name) {
		if err := os.Remove(path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return os.ErrNotExist
}

// SegmentExists checks if a shared memory segment exists
func SegmentExists(name string) bool {
	for _, path := range candidatePaths(name) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

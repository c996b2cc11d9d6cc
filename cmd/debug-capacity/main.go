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

// Command debug-capacity prints the region layout of a command queue and
// probes which payloads it accepts.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jdashg/gecko-cinn-sub000/internal/logging"
	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

func main() {
	var (
		capacity  = flag.Uint64("cap", 65536, "logical queue capacity in bytes")
		userBytes = flag.Uint64("user", 0, "trailing user region in bytes")
		chunk     = flag.Int("chunk", 1000, "payload size for the backpressure test")
		logLevel  = flag.String("log", "info", "log level")
	)
	flag.Parse()
	logger := logging.New(logging.ParseLevel(*logLevel))
	if *chunk < 0 {
		logger.Error("chunk size must not be negative", "chunk", *chunk)
		os.Exit(2)
	}

	layout, err := shm.CalculateLayout(*capacity, *userBytes)
	if err != nil {
		logger.Error("invalid queue configuration", "cap", *capacity, "user", *userBytes, "err", err)
		os.Exit(1)
	}

	fmt.Printf("=== Queue Layout ===\n")
	fmt.Printf("Capacity:           %d bytes\n", layout.Capacity)
	fmt.Printf("Ring buffer:        %d bytes\n", layout.BufferSize)
	fmt.Printf("Read cursor:        offset %d\n", layout.ReadCursorOffset)
	fmt.Printf("Write cursor:       offset %d\n", layout.WriteCursorOffset)
	fmt.Printf("User region:        offset %d, %d bytes\n", layout.UserOffset, layout.UserSize)
	fmt.Printf("Region size:        %d bytes (%d overhead)\n", layout.Size, layout.HeaderOverhead())
	fmt.Printf("Cache line:         %d bytes\n", shm.CacheLineSize)

	seg, err := shm.CalculateSegmentLayout(shm.SegmentOptions{
		CommandCapacity: *capacity,
		ReplyCapacity:   *capacity,
		UserBytes:       *userBytes,
	})
	if err == nil {
		fmt.Printf("\n=== Segment Layout (equal queues) ===\n")
		fmt.Printf("Header:             %d bytes\n", shm.SegmentHeaderSize)
		fmt.Printf("Command queue:      offset %d\n", seg.CommandOffset)
		fmt.Printf("Reply queue:        offset %d\n", seg.ReplyOffset)
		fmt.Printf("Total:              %d bytes\n", seg.TotalSize)
	}

	prod, cons, err := shm.NewQueuePair(*capacity, *userBytes)
	if err != nil {
		logger.Error("failed to allocate queue", "err", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Single Insert Tests ===\n")
	overhead := shm.Bytes.MinSize(&[]byte{})
	fmt.Printf("Bytes codec overhead: %d bytes\n", overhead)
	testSizes := []int{10, 100, 1000, 5000, 10000, 32768, 65000, 65536}
	for _, size := range testSizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i % 256)
		}

		st := prod.TryInsert(shm.In(shm.Bytes, data))
		fmt.Printf("Size %d bytes (+%d): %v\n", size, overhead, st)
		if st != shm.StatusSuccess {
			continue
		}
		var back []byte
		if st := cons.TryRemove(shm.Out(shm.Bytes, &back)); st != shm.StatusSuccess || len(back) != size {
			logger.Error("read back failed", "size", size, "status", st, "got", len(back))
			os.Exit(1)
		}
	}

	fmt.Printf("\n=== Backpressure Test ===\n")
	data := make([]byte, *chunk)
	written := 0
	for i := 0; ; i++ {
		st := prod.TryInsert(shm.In(shm.Bytes, data))
		if st != shm.StatusSuccess {
			fmt.Printf("Stopped after %d chunks (%d payload bytes): %v\n", i, written, st)
			break
		}
		written += len(data)
		logger.Debug("chunk inserted", "chunk", i+1, "used", prod.Used(), "free", prod.Free())
	}

	q := prod.Queue()
	state := q.DebugState()
	fmt.Printf("Queue state: used=%d/%d read=%d write=%d full=%v\n",
		state.Used, state.Capacity, state.Read, state.Write, prod.IsFull())
}

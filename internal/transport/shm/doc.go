/*
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
 */

// Package shm provides a shared-memory command transport.
//
// A Queue is a fixed-capacity single-producer/single-consumer byte ring
// living in one contiguous region together with its read and write cursors.
// The Producer owns the write cursor and the Consumer owns the read cursor;
// neither side takes a lock. Every operation is a non-blocking transaction:
// TryInsert, TryPeek and TryRemove serialize or deserialize several values
// against a tentative cursor and publish it only when all of them succeed.
// A StatusNotReady result leaves the queue untouched and may be retried.
//
// Values travel through the queue with a Codec. Trivial covers fixed-size
// values without pointers; String, Bytes, Slice, Array, Optional, PairOf,
// Union and Typed compose them.
//
// A Segment maps a file under /dev/shm holding a command queue and a reply
// queue, so that two processes can each own one endpoint of both.
package shm

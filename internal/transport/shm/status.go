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

import "errors"

// Status is the result of every queue operation.
type Status uint8

const (
	// StatusSuccess means the whole transaction completed (and was committed,
	// where the operation commits).
	StatusSuccess Status = iota
	// StatusNotReady means the queue is currently too full (insert) or too
	// empty (peek/remove). Nothing was changed; retry the whole operation.
	StatusNotReady
	// StatusTypeError means a type tag read from the stream did not match the
	// expected one. The two endpoints disagree about what is being sent.
	StatusTypeError
	// StatusFatalError means the cursors are invalid or a codec broke its
	// contract. No further operation on the endpoint is safe.
	StatusFatalError
	// StatusTooSmall means the queue capacity is below the minimum encoded
	// size of the payload. Retrying can never succeed.
	StatusTooSmall
)

// Sentinel errors matching the non-success statuses.
var (
	ErrNotReady     = errors.New("shm: queue not ready")
	ErrTypeMismatch = errors.New("shm: type tag mismatch")
	ErrFatal        = errors.New("shm: queue in invalid state")
	ErrTooSmall     = errors.New("shm: payload can never fit in queue")
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusNotReady:
		return "NotReady"
	case StatusTypeError:
		return "TypeError"
	case StatusFatalError:
		return "FatalError"
	case StatusTooSmall:
		return "TooSmall"
	default:
		return "Unknown"
	}
}

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool { return s == StatusSuccess }

// Retryable reports whether retrying the same operation later may succeed.
func (s Status) Retryable() bool { return s == StatusNotReady }

// Err returns the sentinel error for s, or nil for StatusSuccess.
func (s Status) Err() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusNotReady:
		return ErrNotReady
	case StatusTypeError:
		return ErrTypeMismatch
	case StatusTooSmall:
		return ErrTooSmall
	default:
		return ErrFatal
	}
}

//go:build !unix

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

// ErrUnsupported is returned by segment operations on platforms without
// shared file mappings.
var ErrUnsupported = errors.New("shared memory segments not supported on this platform")

// CreateSegment is not supported on this platform
func CreateSegment(name string, opts SegmentOptions) (*Segment, error) {
	return nil, ErrUnsupported
}

// OpenSegment is not supported on this platform
func OpenSegment(name string) (*Segment, error) {
	return nil, ErrUnsupported
}

func munmapImpl(data []byte) error {
	return nil
}

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
	"strings"
	"testing"
	"time"
)

// testSegmentName returns a segment name unique to the running test.
func testSegmentName(t *testing.T, baseName string) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("%s-%s-%d", baseName, name, time.Now().UnixNano())
}

// createTestSegment creates a test segment with a unique name and registers
// cleanup with t.Cleanup so the file is removed even if the test fails.
func createTestSegment(t *testing.T, baseName string, opts SegmentOptions) (*Segment, string) {
	t.Helper()

	segName := testSegmentName(t, baseName)
	RemoveSegment(segName)

	seg, err := CreateSegment(segName, opts)
	if err != nil {
		t.Fatalf("Failed to create test segment %s: %v", segName, err)
	}

	t.Cleanup(func() {
		seg.Close()
		RemoveSegment(segName)
	})

	return seg, segName
}

// openTestSegment opens the client side of name and closes it on cleanup.
func openTestSegment(t *testing.T, name string) *Segment {
	t.Helper()

	seg, err := OpenSegment(name)
	if err != nil {
		t.Fatalf("Failed to open test segment %s: %v", name, err)
	}
	t.Cleanup(func() { seg.Close() })
	return seg
}

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
	"bytes"
	"testing"
)

func TestWriteObjectWraps(t *testing.T) {
	buf := make([]byte, 8)
	read, write := uint64(5), uint64(5)

	if st := writeObject(buf, read, &write, []byte("abcdef")); st != StatusSuccess {
		t.Fatalf("writeObject returned %v", st)
	}
	if write != 3 {
		t.Fatalf("write cursor = %d, want 3", write)
	}
	if want := []byte("def\x00\x00abc"); !bytes.Equal(buf, want) {
		t.Fatalf("buffer = %q, want %q", buf, want)
	}

	dst := make([]byte, 6)
	if st := readObject(buf, write, &read, dst, 6); st != StatusSuccess {
		t.Fatalf("readObject returned %v", st)
	}
	if read != 3 {
		t.Fatalf("read cursor = %d, want 3", read)
	}
	if string(dst) != "abcdef" {
		t.Fatalf("read %q, want %q", dst, "abcdef")
	}
}

func TestWriteObjectNotReady(t *testing.T) {
	buf := make([]byte, 8) // capacity 7
	read, write := uint64(0), uint64(4)

	if st := writeObject(buf, read, &write, make([]byte, 4)); st != StatusNotReady {
		t.Fatalf("writeObject into 3 free bytes returned %v, want NotReady", st)
	}
	if write != 4 {
		t.Fatalf("write cursor moved to %d on failure", write)
	}
	if st := writeObject(buf, read, &write, make([]byte, 3)); st != StatusSuccess {
		t.Fatalf("writeObject into 3 free bytes returned %v", st)
	}
	if write != 7 {
		t.Fatalf("write cursor = %d, want 7", write)
	}
}

func TestReadObjectSkipAndShortDestination(t *testing.T) {
	buf := []byte("0123456789")
	read := uint64(8)
	write := uint64(4)

	if st := readObject(buf, write, &read, nil, 3); st != StatusSuccess {
		t.Fatalf("skip returned %v", st)
	}
	if read != 1 {
		t.Fatalf("read cursor after skip = %d, want 1", read)
	}
	if st := readObject(buf, write, &read, make([]byte, 1), 2); st != StatusFatalError {
		t.Fatalf("short destination returned %v, want FatalError", st)
	}
	if st := readObject(buf, write, &read, make([]byte, 4), 4); st != StatusNotReady {
		t.Fatalf("over-read returned %v, want NotReady", st)
	}
	if read != 1 {
		t.Fatalf("read cursor moved to %d on failure", read)
	}
}

func TestUsedBytes(t *testing.T) {
	cases := []struct {
		size, read, write, want uint64
	}{
		{17, 0, 0, 0},
		{17, 3, 10, 7},
		{17, 10, 3, 10},
		{17, 1, 0, 16},
	}
	for _, c := range cases {
		if got := usedBytes(c.size, c.read, c.write); got != c.want {
			t.Errorf("usedBytes(%d, %d, %d) = %d, want %d", c.size, c.read, c.write, got, c.want)
		}
	}
}

func TestDiagnoseDuelingQueues(t *testing.T) {
	cmdP, _, err := NewQueuePair(16, 0)
	if err != nil {
		t.Fatal(err)
	}
	replyP, _, err := NewQueuePair(16, 0)
	if err != nil {
		t.Fatal(err)
	}

	if dueling, _ := DiagnoseDuelingQueues(cmdP.Queue(), replyP.Queue()); dueling {
		t.Fatal("empty queues reported as dueling")
	}

	fill := make([]byte, 16)
	for _, p := range []*Producer{cmdP, replyP} {
		if st := p.TryInsert(In(Array(Uint8, 16), fill)); st != StatusSuccess {
			t.Fatalf("fill returned %v", st)
		}
	}
	dueling, diag := DiagnoseDuelingQueues(cmdP.Queue(), replyP.Queue())
	if !dueling {
		t.Fatalf("full queues not reported as dueling:\n%s", diag)
	}
}

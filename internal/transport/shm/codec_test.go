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
	"reflect"
	"testing"
)

// roundTrip inserts v through c into a fresh queue and removes it again.
func roundTrip[T any](t *testing.T, c Codec[T], v T) T {
	t.Helper()
	p, cons := newTestQueue(t, 4096)
	expectStatus(t, "insert", p.TryInsert(In(c, v)), StatusSuccess)
	if used, size := int(p.Used()), c.MinSize(&v); used < size {
		t.Fatalf("MinSize = %d overestimates the %d-byte encoding", size, used)
	}
	if c.MinSize(&v) < c.MinSize(nil) {
		t.Fatalf("MinSize(nil) = %d exceeds MinSize(v) = %d", c.MinSize(nil), c.MinSize(&v))
	}

	var out T
	expectStatus(t, "remove", cons.TryRemove(Out(c, &out)), StatusSuccess)
	if !cons.IsEmpty() {
		t.Fatalf("%d bytes left after remove", cons.Used())
	}
	return out
}

// expectRoundTrip checks that v survives roundTrip unchanged.
func expectRoundTrip[T any](t *testing.T, c Codec[T], v T) {
	t.Helper()
	if got := roundTrip(t, c, v); !reflect.DeepEqual(got, v) {
		t.Fatalf("round trip of %#v gave %#v", v, got)
	}
}

func expectMinSize[T any](t *testing.T, c Codec[T], want int) {
	t.Helper()
	if got := c.MinSize(nil); got != want {
		t.Fatalf("MinSize(nil) = %d, want %d", got, want)
	}
}

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	fn()
}

type vec3 struct {
	X, Y, Z float32
	Tag     uint8
}

func TestTrivialCodec(t *testing.T) {
	expectRoundTrip(t, Trivial[vec3](), vec3{1, 2, 3, 4})
	expectRoundTrip(t, Int32, -5)
	expectRoundTrip(t, Bool, true)
	expectRoundTrip(t, Float64, 2.5)
}

func TestTrivialRejectsPointers(t *testing.T) {
	expectPanic(t, "Trivial[*int]", func() { Trivial[*int]() })
	expectPanic(t, "Trivial[string]", func() { Trivial[string]() })
	expectPanic(t, "Trivial[struct{B []byte}]", func() { Trivial[struct{ B []byte }]() })

	if n := Trivial[[4]uint16]().MinSize(nil); n != 8 {
		t.Fatalf("[4]uint16 MinSize = %d, want 8", n)
	}
}

func TestStringCodec(t *testing.T) {
	expectMinSize(t, String, 9)
	expectRoundTrip(t, String, "")
	expectRoundTrip(t, String, "héllo")
}

func TestBytesCodec(t *testing.T) {
	expectMinSize(t, Bytes, 1)
	if got := roundTrip(t, Bytes, nil); got != nil {
		t.Fatalf("nil round trip gave %#v", got)
	}
	if got := roundTrip(t, Bytes, []byte{}); got == nil || len(got) != 0 {
		t.Fatalf("empty round trip gave %#v, want empty non-nil", got)
	}
	expectRoundTrip(t, Bytes, []byte{1, 2, 3})
}

func TestSizedCorruptStream(t *testing.T) {
	p, c := newTestQueue(t, 64)
	var s string

	expectStatus(t, "insert", p.TryInsert(In(Uint8, flagPresent), In(Uint64, 1000)), StatusSuccess)
	expectStatus(t, "remove oversized length", c.TryRemove(Out(String, &s)), StatusFatalError)
	expectStatus(t, "skip", c.TryRemove(Skip(Uint8), Skip(Uint64)), StatusSuccess)

	expectStatus(t, "insert", p.TryInsert(In(Uint8, 7), In(Uint64, 0)), StatusSuccess)
	expectStatus(t, "remove bad flag", c.TryRemove(Out(String, &s)), StatusTypeError)
}

func TestSliceCodec(t *testing.T) {
	ints := Slice(Int32)
	expectMinSize(t, ints, 8)
	expectRoundTrip(t, ints, []int32{1, -2, 3})
	if got := roundTrip(t, ints, nil); len(got) != 0 {
		t.Fatalf("nil slice round trip gave %v", got)
	}

	expectRoundTrip(t, Slice(String), []string{"a", "", "ccc"})
	expectRoundTrip(t, Slice(Slice(Uint8)), [][]uint8{{1}, {2, 3}})
}

func TestSliceCorruptCount(t *testing.T) {
	p, c := newTestQueue(t, 64)
	expectStatus(t, "insert", p.TryInsert(In(Uint64, 1<<40)), StatusSuccess)
	var out []uint32
	expectStatus(t, "remove", c.TryRemove(Out(Slice(Uint32), &out)), StatusFatalError)
}

func TestSliceSkip(t *testing.T) {
	p, c := newTestQueue(t, 128)
	expectStatus(t, "insert", p.TryInsert(
		In(Slice(String), []string{"x", "yy"}),
		In(Slice(Uint16), []uint16{4, 5}),
		In(Uint8, 9)), StatusSuccess)

	var v uint8
	expectStatus(t, "remove", c.TryRemove(Skip(Slice(String)), Skip(Slice(Uint16)), Out(Uint8, &v)), StatusSuccess)
	if v != 9 {
		t.Fatalf("removed %d, want 9", v)
	}
}

func TestArrayCodec(t *testing.T) {
	arr := Array(Int16, 3)
	expectMinSize(t, arr, 6)
	expectRoundTrip(t, arr, []int16{7, 8, 9})

	p, _ := newTestQueue(t, 64)
	expectStatus(t, "insert short array", p.TryInsert(In(arr, []int16{1, 2})), StatusFatalError)
	if !p.IsEmpty() {
		t.Fatalf("failed insert left %d bytes", p.Used())
	}

	expectRoundTrip(t, Array(String, 2), []string{"a", "b"})
}

func TestOptionalCodec(t *testing.T) {
	opt := Optional(Int32)
	expectMinSize(t, opt, 1)
	if got := roundTrip(t, opt, nil); got != nil {
		t.Fatalf("absent round trip gave %v", *got)
	}

	v := int32(11)
	got := roundTrip(t, opt, &v)
	if got == nil || *got != v {
		t.Fatalf("round trip of %d gave %v", v, got)
	}
}

func TestPairCodec(t *testing.T) {
	pc := PairOf(String, Float64)
	expectMinSize(t, pc, 17)
	expectRoundTrip(t, pc, Pair[string, float64]{First: "pi", Second: 3.14})
}

type shape interface{ sides() int }

type rect struct{ W, H float64 }

func (rect) sides() int { return 4 }

type circle struct{ R float32 }

func (circle) sides() int { return 0 }

type triangle struct{ A, B, C float32 }

func (triangle) sides() int { return 3 }

func shapeCodec() Codec[shape] {
	// The largest case comes first on purpose.
	return Union(
		Case[shape](Trivial[rect]()),
		Case[shape](Trivial[circle]()),
	)
}

func TestUnionMinSizeIsMinimum(t *testing.T) {
	u := shapeCodec()
	expectMinSize(t, u, tagSize+4)

	for _, v := range []shape{rect{1, 2}, circle{3}} {
		if u.MinSize(nil) > u.MinSize(&v) {
			t.Fatalf("MinSize(nil) = %d exceeds MinSize(%T) = %d", u.MinSize(nil), v, u.MinSize(&v))
		}
	}

	// A queue sized exactly for the smallest case must carry it.
	p, c, err := NewQueuePair(uint64(u.MinSize(nil)), 0)
	if err != nil {
		t.Fatalf("NewQueuePair failed: %v", err)
	}
	expectStatus(t, "insert circle", p.TryInsert(In(u, shape(circle{2.5}))), StatusSuccess)

	var out shape
	expectStatus(t, "remove circle", c.TryRemove(Out(u, &out)), StatusSuccess)
	if out != shape(circle{2.5}) {
		t.Fatalf("removed %#v, want circle{2.5}", out)
	}

	expectStatus(t, "insert rect", p.TryInsert(In(u, shape(rect{1, 1}))), StatusTooSmall)
}

func TestUnionRoundTrip(t *testing.T) {
	u := shapeCodec()
	expectRoundTrip(t, u, shape(rect{3, 4}))
	expectRoundTrip(t, u, shape(circle{1}))
}

func TestUnionErrors(t *testing.T) {
	u := shapeCodec()
	p, c := newTestQueue(t, 64)

	expectStatus(t, "insert unknown case", p.TryInsert(In(u, shape(triangle{1, 1, 1}))), StatusFatalError)
	if !p.IsEmpty() {
		t.Fatalf("failed insert left %d bytes", p.Used())
	}

	expectStatus(t, "insert", p.TryInsert(In(Uint8, 5), In(Trivial[circle](), circle{1})), StatusSuccess)
	var out shape
	expectStatus(t, "remove unknown tag", c.TryRemove(Out(u, &out)), StatusTypeError)

	expectPanic(t, "Case of unrelated type", func() { Case[shape](Int32) })
	expectPanic(t, "empty Union", func() { Union[shape]() })
}

func TestTypedCodec(t *testing.T) {
	a := Typed(1, String)
	b := Typed(2, String)
	expectMinSize(t, a, 13)
	expectRoundTrip(t, a, "hi")

	p, c := newTestQueue(t, 64)
	expectStatus(t, "insert", p.TryInsert(In(a, "hi")), StatusSuccess)
	used := c.Used()

	var s string
	expectStatus(t, "remove wrong type", c.TryRemove(Out(b, &s)), StatusTypeError)
	if c.Used() != used {
		t.Fatalf("used = %d after failed remove, want %d", c.Used(), used)
	}
	expectStatus(t, "remove", c.TryRemove(Out(a, &s)), StatusSuccess)
	if s != "hi" {
		t.Fatalf("removed %q, want hi", s)
	}
}

type command struct {
	Name string
	Args []int32
	Next *uint64
}

var commandCodec = Funcs[command]{
	Size: func(v *command) int {
		if v == nil {
			return String.MinSize(nil) + Slice(Int32).MinSize(nil) + Optional(Uint64).MinSize(nil)
		}
		return String.MinSize(&v.Name) + Slice(Int32).MinSize(&v.Args) + Optional(Uint64).MinSize(&v.Next)
	},
	Encode: func(pv *ProducerView, v *command) Status {
		if st := String.Write(pv, &v.Name); st != StatusSuccess {
			return st
		}
		if st := Slice(Int32).Write(pv, &v.Args); st != StatusSuccess {
			return st
		}
		return Optional(Uint64).Write(pv, &v.Next)
	},
	Decode: func(cv *ConsumerView, out *command) Status {
		var name *string
		var args *[]int32
		var next **uint64
		if out != nil {
			name, args, next = &out.Name, &out.Args, &out.Next
		}
		if st := String.Read(cv, name); st != StatusSuccess {
			return st
		}
		if st := Slice(Int32).Read(cv, args); st != StatusSuccess {
			return st
		}
		return Optional(Uint64).Read(cv, next)
	},
}

func TestFuncsCodec(t *testing.T) {
	n := uint64(99)
	expectRoundTrip[command](t, commandCodec, command{Name: "draw", Args: []int32{1, 2}, Next: &n})
}

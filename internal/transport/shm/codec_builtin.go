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
	"math"
	"reflect"
	"unsafe"
)

// Wire layouts (little-endian):
//
//	string/bytes: uint8 present (0 = void, 1 = present), uint64 length, bytes
//	slice:        uint64 count, elements
//	array:        elements (count fixed by the codec)
//	optional:     uint8 present, payload if present
//	pair:         first, second
//	union:        uint8 case index, payload
//	typed:        uint32 type id, payload
const (
	flagVoid    = 0
	flagPresent = 1

	flagSize   = 1
	lengthSize = 8
	tagSize    = 1
	typeIDSize = 4
)

// String encodes Go strings. A string is always present on the wire; a void
// string written by another codec reads back as "".
var String Codec[string] = stringCodec{}

type stringCodec struct{}

func (stringCodec) MinSize(v *string) int {
	if v == nil {
		return flagSize + lengthSize
	}
	return flagSize + lengthSize + len(*v)
}

func (stringCodec) Write(pv *ProducerView, v *string) Status {
	if st := pv.WriteUint8(flagPresent); st != StatusSuccess {
		return st
	}
	if st := pv.WriteUint64(uint64(len(*v))); st != StatusSuccess {
		return st
	}
	if len(*v) == 0 {
		return StatusSuccess
	}
	return pv.Write(unsafe.Slice(unsafe.StringData(*v), len(*v)))
}

func (stringCodec) Read(cv *ConsumerView, out *string) Status {
	b, present, st := readSized(cv, out == nil)
	if st != StatusSuccess {
		return st
	}
	if out != nil {
		*out = ""
		if present && len(b) > 0 {
			*out = unsafe.String(&b[0], len(b))
		}
	}
	return StatusSuccess
}

// Bytes encodes byte slices. A nil slice travels as void and reads back as
// nil; an empty non-nil slice reads back as empty and non-nil.
var Bytes Codec[[]byte] = bytesCodec{}

type bytesCodec struct{}

func (bytesCodec) MinSize(v *[]byte) int {
	if v == nil || *v == nil {
		return flagSize
	}
	return flagSize + lengthSize + len(*v)
}

func (bytesCodec) Write(pv *ProducerView, v *[]byte) Status {
	if *v == nil {
		return pv.WriteUint8(flagVoid)
	}
	if st := pv.WriteUint8(flagPresent); st != StatusSuccess {
		return st
	}
	if st := pv.WriteUint64(uint64(len(*v))); st != StatusSuccess {
		return st
	}
	return pv.Write(*v)
}

func (bytesCodec) Read(cv *ConsumerView, out *[]byte) Status {
	b, present, st := readSized(cv, out == nil)
	if st != StatusSuccess {
		return st
	}
	if out != nil {
		if present {
			*out = b
		} else {
			*out = nil
		}
	}
	return StatusSuccess
}

// readSized reads a flag, then a length and that many bytes if present. With
// skip set the bytes are discarded and b is nil.
func readSized(cv *ConsumerView, skip bool) (b []byte, present bool, st Status) {
	flag, st := cv.ReadUint8()
	if st != StatusSuccess {
		return nil, false, st
	}
	switch flag {
	case flagVoid:
		return nil, false, StatusSuccess
	case flagPresent:
	default:
		return nil, false, StatusTypeError
	}

	n, st := cv.ReadUint64()
	if st != StatusSuccess {
		return nil, false, st
	}
	// A committed transaction is always complete, so a length beyond the
	// queued bytes means the stream is corrupt.
	if n > cv.Available() {
		return nil, false, StatusFatalError
	}
	if skip {
		return nil, true, cv.Skip(n)
	}
	b = make([]byte, n)
	if st := cv.Read(b); st != StatusSuccess {
		return nil, false, st
	}
	return b, true, StatusSuccess
}

type sliceCodec[E any] struct {
	elem Codec[E]
	bulk int // element size when elem is trivially copyable, else 0
}

// Slice returns a codec for []E writing the element count followed by each
// element. Trivially copyable elements are copied in one block. A nil slice
// reads back as an empty one.
func Slice[E any](elem Codec[E]) Codec[[]E] {
	c := sliceCodec[E]{elem: elem}
	if ts, ok := elem.(trivialSizer); ok {
		c.bulk = ts.trivialSize()
	}
	return c
}

func (c sliceCodec[E]) MinSize(v *[]E) int {
	if v == nil {
		return lengthSize
	}
	if c.bulk > 0 {
		return lengthSize + c.bulk*len(*v)
	}
	n := lengthSize
	for i := range *v {
		n += c.elem.MinSize(&(*v)[i])
	}
	return n
}

func (c sliceCodec[E]) Write(pv *ProducerView, v *[]E) Status {
	s := *v
	if st := pv.WriteUint64(uint64(len(s))); st != StatusSuccess {
		return st
	}
	if c.bulk > 0 {
		if len(s) == 0 {
			return StatusSuccess
		}
		return pv.Write(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), c.bulk*len(s)))
	}
	for i := range s {
		if st := c.elem.Write(pv, &s[i]); st != StatusSuccess {
			return st
		}
	}
	return StatusSuccess
}

func (c sliceCodec[E]) Read(cv *ConsumerView, out *[]E) Status {
	n, st := cv.ReadUint64()
	if st != StatusSuccess {
		return st
	}
	if minElem := c.elem.MinSize(nil); minElem > 0 && n > cv.Available()/uint64(minElem) {
		return StatusFatalError
	}
	if n > math.MaxInt32 {
		return StatusFatalError
	}
	return readElems(cv, c.elem, c.bulk, int(n), out)
}

// readElems reads n elements into *out, reusing its backing array when large
// enough. A nil out skips them.
func readElems[E any](cv *ConsumerView, elem Codec[E], bulk, n int, out *[]E) Status {
	if out == nil {
		if bulk > 0 {
			return cv.Skip(uint64(bulk) * uint64(n))
		}
		for i := 0; i < n; i++ {
			if st := elem.Read(cv, nil); st != StatusSuccess {
				return st
			}
		}
		return StatusSuccess
	}

	s := *out
	if cap(s) >= n {
		s = s[:n]
	} else {
		s = make([]E, n)
	}
	if bulk > 0 {
		if n > 0 {
			if st := cv.Read(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), bulk*n)); st != StatusSuccess {
				return st
			}
		}
	} else {
		for i := range s {
			if st := elem.Read(cv, &s[i]); st != StatusSuccess {
				return st
			}
		}
	}
	*out = s
	return StatusSuccess
}

type arrayCodec[E any] struct {
	elem Codec[E]
	bulk int
	n    int
}

// Array returns a codec for slices of exactly n elements. The count is not
// written. Writing a slice of any other length fails with StatusFatalError.
func Array[E any](elem Codec[E], n int) Codec[[]E] {
	if n < 0 {
		panic("shm: negative array length")
	}
	c := arrayCodec[E]{elem: elem, n: n}
	if ts, ok := elem.(trivialSizer); ok {
		c.bulk = ts.trivialSize()
	}
	return c
}

func (c arrayCodec[E]) MinSize(v *[]E) int {
	if v == nil || len(*v) != c.n {
		return c.n * c.elem.MinSize(nil)
	}
	if c.bulk > 0 {
		return c.n * c.bulk
	}
	total := 0
	for i := range *v {
		total += c.elem.MinSize(&(*v)[i])
	}
	return total
}

func (c arrayCodec[E]) Write(pv *ProducerView, v *[]E) Status {
	s := *v
	if len(s) != c.n {
		return StatusFatalError
	}
	if c.bulk > 0 {
		if c.n == 0 {
			return StatusSuccess
		}
		return pv.Write(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), c.bulk*c.n))
	}
	for i := range s {
		if st := c.elem.Write(pv, &s[i]); st != StatusSuccess {
			return st
		}
	}
	return StatusSuccess
}

func (c arrayCodec[E]) Read(cv *ConsumerView, out *[]E) Status {
	return readElems(cv, c.elem, c.bulk, c.n, out)
}

type optionalCodec[T any] struct {
	c Codec[T]
}

// Optional returns a codec for *T where nil means absent.
func Optional[T any](c Codec[T]) Codec[*T] {
	return optionalCodec[T]{c: c}
}

func (o optionalCodec[T]) MinSize(v **T) int {
	if v == nil || *v == nil {
		return flagSize
	}
	return flagSize + o.c.MinSize(*v)
}

func (o optionalCodec[T]) Write(pv *ProducerView, v **T) Status {
	if *v == nil {
		return pv.WriteUint8(flagVoid)
	}
	if st := pv.WriteUint8(flagPresent); st != StatusSuccess {
		return st
	}
	return o.c.Write(pv, *v)
}

func (o optionalCodec[T]) Read(cv *ConsumerView, out **T) Status {
	flag, st := cv.ReadUint8()
	if st != StatusSuccess {
		return st
	}
	switch flag {
	case flagVoid:
		if out != nil {
			*out = nil
		}
		return StatusSuccess
	case flagPresent:
	default:
		return StatusTypeError
	}
	if out == nil {
		return o.c.Read(cv, nil)
	}
	x := new(T)
	if st := o.c.Read(cv, x); st != StatusSuccess {
		return st
	}
	*out = x
	return StatusSuccess
}

// Pair holds two values encoded back to back.
type Pair[A, B any] struct {
	First  A
	Second B
}

type pairCodec[A, B any] struct {
	a Codec[A]
	b Codec[B]
}

// PairOf returns a codec writing First and then Second.
func PairOf[A, B any](a Codec[A], b Codec[B]) Codec[Pair[A, B]] {
	return pairCodec[A, B]{a: a, b: b}
}

func (p pairCodec[A, B]) MinSize(v *Pair[A, B]) int {
	if v == nil {
		return p.a.MinSize(nil) + p.b.MinSize(nil)
	}
	return p.a.MinSize(&v.First) + p.b.MinSize(&v.Second)
}

func (p pairCodec[A, B]) Write(pv *ProducerView, v *Pair[A, B]) Status {
	if st := p.a.Write(pv, &v.First); st != StatusSuccess {
		return st
	}
	return p.b.Write(pv, &v.Second)
}

func (p pairCodec[A, B]) Read(cv *ConsumerView, out *Pair[A, B]) Status {
	var first *A
	var second *B
	if out != nil {
		first, second = &out.First, &out.Second
	}
	if st := p.a.Read(cv, first); st != StatusSuccess {
		return st
	}
	return p.b.Read(cv, second)
}

// UnionCase is one branch of a Union. Build it with Case.
type UnionCase[T any] interface {
	matches(v T) bool
	minSize(v *T) int
	write(pv *ProducerView, v *T) Status
	read(cv *ConsumerView, out *T) Status
}

type unionCase[T, B any] struct {
	c Codec[B]
}

// Case returns the Union branch holding values of dynamic type B. B must be
// assignable to T, which is normally an interface type.
func Case[T, B any](c Codec[B]) UnionCase[T] {
	if !reflect.TypeFor[B]().AssignableTo(reflect.TypeFor[T]()) {
		panic(fmt.Sprintf("shm: union case %v is not assignable to %v", reflect.TypeFor[B](), reflect.TypeFor[T]()))
	}
	return unionCase[T, B]{c: c}
}

func (u unionCase[T, B]) matches(v T) bool {
	_, ok := any(v).(B)
	return ok
}

func (u unionCase[T, B]) minSize(v *T) int {
	if v == nil {
		return u.c.MinSize(nil)
	}
	b := any(*v).(B)
	return u.c.MinSize(&b)
}

func (u unionCase[T, B]) write(pv *ProducerView, v *T) Status {
	b := any(*v).(B)
	return u.c.Write(pv, &b)
}

func (u unionCase[T, B]) read(cv *ConsumerView, out *T) Status {
	if out == nil {
		return u.c.Read(cv, nil)
	}
	var b B
	if st := u.c.Read(cv, &b); st != StatusSuccess {
		return st
	}
	*out = any(b).(T)
	return StatusSuccess
}

type unionCodec[T any] struct {
	cases []UnionCase[T]
}

// Union returns a tagged-union codec. The tag is the index of the first case
// matching the value's dynamic type. Writing a value no case matches fails
// with StatusFatalError; reading an unknown tag fails with StatusTypeError.
func Union[T any](cases ...UnionCase[T]) Codec[T] {
	if len(cases) == 0 || len(cases) > math.MaxUint8+1 {
		panic(fmt.Sprintf("shm: union needs 1..256 cases, got %d", len(cases)))
	}
	return unionCodec[T]{cases: cases}
}

func (u unionCodec[T]) index(v T) int {
	for i, c := range u.cases {
		if c.matches(v) {
			return i
		}
	}
	return -1
}

// MinSize without a value is the smallest case, never the first or the
// largest one: a consumer must not wait for bytes the smallest case does not
// need.
func (u unionCodec[T]) MinSize(v *T) int {
	if v == nil {
		least := u.cases[0].minSize(nil)
		for _, c := range u.cases[1:] {
			least = min(least, c.minSize(nil))
		}
		return tagSize + least
	}
	i := u.index(*v)
	if i < 0 {
		return tagSize
	}
	return tagSize + u.cases[i].minSize(v)
}

func (u unionCodec[T]) Write(pv *ProducerView, v *T) Status {
	i := u.index(*v)
	if i < 0 {
		return StatusFatalError
	}
	if st := pv.WriteUint8(uint8(i)); st != StatusSuccess {
		return st
	}
	return u.cases[i].write(pv, v)
}

func (u unionCodec[T]) Read(cv *ConsumerView, out *T) Status {
	tag, st := cv.ReadUint8()
	if st != StatusSuccess {
		return st
	}
	if int(tag) >= len(u.cases) {
		return StatusTypeError
	}
	return u.cases[tag].read(cv, out)
}

type typedCodec[T any] struct {
	id uint32
	c  Codec[T]
}

// Typed prefixes every value with a run-time type id. Reading a different id
// fails with StatusTypeError; the enclosing transaction is not committed.
func Typed[T any](id uint32, c Codec[T]) Codec[T] {
	return typedCodec[T]{id: id, c: c}
}

func (t typedCodec[T]) MinSize(v *T) int {
	return typeIDSize + t.c.MinSize(v)
}

func (t typedCodec[T]) Write(pv *ProducerView, v *T) Status {
	if st := pv.WriteUint32(t.id); st != StatusSuccess {
		return st
	}
	return t.c.Write(pv, v)
}

func (t typedCodec[T]) Read(cv *ConsumerView, out *T) Status {
	id, st := cv.ReadUint32()
	if st != StatusSuccess {
		return st
	}
	if id != t.id {
		return StatusTypeError
	}
	return t.c.Read(cv, out)
}

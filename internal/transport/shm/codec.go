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
	"reflect"
	"unsafe"
)

// Codec is the serialization contract for values of type T.
//
// MinSize must never exceed the number of bytes Write produces for the same
// value. Called with nil it must return the smallest encoding of any T; the
// consumer uses that bound before any value has been read.
//
// Read with a nil out skips over one encoded value.
type Codec[T any] interface {
	MinSize(v *T) int
	Write(pv *ProducerView, v *T) Status
	Read(cv *ConsumerView, out *T) Status
}

// Encoder is one argument of a TryInsert transaction.
type Encoder interface {
	MinSize() int
	Encode(pv *ProducerView) Status
}

// Decoder is one output of a TryPeek or TryRemove transaction.
type Decoder interface {
	MinSize() int
	Decode(cv *ConsumerView) Status
}

// In binds v to its codec as a TryInsert argument.
func In[T any](c Codec[T], v T) Encoder {
	return &inArg[T]{c: c, v: v}
}

// Out binds the destination out to its codec as a TryPeek/TryRemove output.
// A nil out discards the value.
func Out[T any](c Codec[T], out *T) Decoder {
	return outArg[T]{c: c, out: out}
}

// Skip returns a Decoder that discards one value of c's type.
func Skip[T any](c Codec[T]) Decoder {
	return outArg[T]{c: c}
}

type inArg[T any] struct {
	c Codec[T]
	v T
}

func (a *inArg[T]) MinSize() int { return a.c.MinSize(&a.v) }
func (a *inArg[T]) Encode(pv *ProducerView) Status { return a.c.Write(pv, &a.v) }

type outArg[T any] struct {
	c   Codec[T]
	out *T
}

func (a outArg[T]) MinSize() int { return a.c.MinSize(nil) }
func (a outArg[T]) Decode(cv *ConsumerView) Status { return a.c.Read(cv, a.out) }

// Trivially copyable values.

// Predeclared codecs for the basic fixed-size types.
var (
	Bool    = Trivial[bool]()
	Int8    = Trivial[int8]()
	Int16   = Trivial[int16]()
	Int32   = Trivial[int32]()
	Int64   = Trivial[int64]()
	Uint8   = Trivial[uint8]()
	Uint16  = Trivial[uint16]()
	Uint32  = Trivial[uint32]()
	Uint64  = Trivial[uint64]()
	Float32 = Trivial[float32]()
	Float64 = Trivial[float64]()
)

// trivialSizer is implemented by codecs whose values are copied as raw
// memory of a fixed size. Slice uses it to copy elements in bulk.
type trivialSizer interface {
	trivialSize() int
}

type trivialCodec[T any] struct {
	size int
}

// Trivial returns the codec for a fixed-size type without pointers: numbers,
// bools, named types over them, arrays and structs made only of such fields.
// Values are copied as raw memory, so both endpoints must share the same
// architecture. It panics if T holds pointers, slices, strings, maps,
// channels, funcs or interfaces.
func Trivial[T any]() Codec[T] {
	t := reflect.TypeFor[T]()
	if !isTrivial(t) {
		panic(fmt.Sprintf("shm: %v is not trivially copyable", t))
	}
	return trivialCodec[T]{size: int(t.Size())}
}

func isTrivial(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return isTrivial(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !isTrivial(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (c trivialCodec[T]) trivialSize() int { return c.size }

func (c trivialCodec[T]) MinSize(*T) int { return c.size }

func (c trivialCodec[T]) Write(pv *ProducerView, v *T) Status {
	if c.size == 0 {
		return StatusSuccess
	}
	return pv.Write(unsafe.Slice((*byte)(unsafe.Pointer(v)), c.size))
}

func (c trivialCodec[T]) Read(cv *ConsumerView, out *T) Status {
	if out == nil {
		return cv.Skip(uint64(c.size))
	}
	if c.size == 0 {
		return StatusSuccess
	}
	return cv.Read(unsafe.Slice((*byte)(unsafe.Pointer(out)), c.size))
}

// Funcs assembles a Codec from three functions, for types such as method
// argument structs that compose other codecs. Decode receives a nil out when
// the value is being skipped.
type Funcs[T any] struct {
	Size   func(v *T) int
	Encode func(pv *ProducerView, v *T) Status
	Decode func(cv *ConsumerView, out *T) Status
}

func (f Funcs[T]) MinSize(v *T) int { return f.Size(v) }
func (f Funcs[T]) Write(pv *ProducerView, v *T) Status { return f.Encode(pv, v) }
func (f Funcs[T]) Read(cv *ConsumerView, out *T) Status { return f.Decode(cv, out) }

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

package dispatch

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// MethodID identifies a remote method on the wire.
type MethodID uint32

// Kind classifies a method as synchronous or asynchronous.
type Kind uint8

const (
	// KindSync methods return a value; the caller waits for the reply.
	KindSync Kind = iota + 1
	// KindAsync methods are fire-and-forget.
	KindAsync
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Descriptor is the untyped description of a method, as kept in a Table.
type Descriptor struct {
	ID   MethodID
	Name string
	Kind Kind
}

// Describer is implemented by SyncMethod and AsyncMethod.
type Describer interface {
	Descriptor() Descriptor
}

// SyncMethod describes a method whose caller blocks for a Resp. Only Call
// accepts it.
type SyncMethod[Req, Resp any] struct {
	ID       MethodID
	Name     string
	Request  shm.Codec[Req]
	Response shm.Codec[Resp]
}

// Descriptor implements Describer.
func (m SyncMethod[Req, Resp]) Descriptor() Descriptor {
	return Descriptor{ID: m.ID, Name: m.Name, Kind: KindSync}
}

// AsyncMethod describes a fire-and-forget method. Only Post accepts it.
type AsyncMethod[Req any] struct {
	ID      MethodID
	Name    string
	Request shm.Codec[Req]
}

// Descriptor implements Describer.
func (m AsyncMethod[Req]) Descriptor() Descriptor {
	return Descriptor{ID: m.ID, Name: m.Name, Kind: KindAsync}
}

// Table is the method table shared by both endpoints of a channel. Both
// sides must build identical tables; Fingerprint lets them check.
type Table struct {
	byID map[MethodID]Descriptor
	fp   uint64
}

// NewTable builds a table from method descriptors. Duplicate IDs are an
// error.
func NewTable(methods ...Describer) (*Table, error) {
	t := &Table{byID: make(map[MethodID]Descriptor, len(methods))}
	for _, m := range methods {
		d := m.Descriptor()
		if prev, ok := t.byID[d.ID]; ok {
			return nil, fmt.Errorf("method id %d used by both %q and %q", d.ID, prev.Name, d.Name)
		}
		if d.Kind != KindSync && d.Kind != KindAsync {
			return nil, fmt.Errorf("method %q has invalid kind %d", d.Name, d.Kind)
		}
		t.byID[d.ID] = d
	}
	t.fp = t.fingerprint()
	return t, nil
}

// MustTable is NewTable that panics on error, for package-level tables.
func MustTable(methods ...Describer) *Table {
	t, err := NewTable(methods...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the descriptor registered under id.
func (t *Table) Lookup(id MethodID) (Descriptor, bool) {
	d, ok := t.byID[id]
	return d, ok
}

// Len returns the number of methods.
func (t *Table) Len() int { return len(t.byID) }

// Fingerprint returns a hash over every (id, kind, name) in the table,
// independent of registration order.
func (t *Table) Fingerprint() uint64 { return t.fp }

func (t *Table) fingerprint() uint64 {
	ids := make([]MethodID, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	h := xxhash.New()
	var b [5]byte
	for _, id := range ids {
		d := t.byID[id]
		binary.LittleEndian.PutUint32(b[:4], uint32(d.ID))
		b[4] = byte(d.Kind)
		h.Write(b[:])
		h.WriteString(d.Name)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// has reports whether d is registered exactly as given.
func (t *Table) has(d Descriptor) bool {
	got, ok := t.byID[d.ID]
	return ok && got == d
}

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
	"net/url"
	"strconv"
)

// Address is a parsed shm:// address.
type Address struct {
	Name    string
	Options SegmentOptions
}

// ParseAddress parses shm URLs of the form
//
//	shm://name?cap=1048576&reply=65536&user=0
//
// Missing parameters take the DefaultSegmentOptions values.
func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("parse shm address: %w", err)
	}
	if u.Scheme != "shm" {
		return Address{}, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	name := u.Host
	if name == "" {
		// Allow shm:///name via path
		name = u.Path
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
	}
	if name == "" {
		return Address{}, fmt.Errorf("missing shm name")
	}

	opts := DefaultSegmentOptions()
	q := u.Query()
	for _, p := range []struct {
		key string
		dst *uint64
	}{
		{"cap", &opts.CommandCapacity},
		{"reply", &opts.ReplyCapacity},
		{"user", &opts.UserBytes},
	} {
		s := q.Get(p.key)
		if s == "" {
			continue
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return Address{}, fmt.Errorf("invalid %s: %w", p.key, err)
		}
		*p.dst = v
	}
	if opts.CommandCapacity == 0 || opts.ReplyCapacity == 0 {
		return Address{}, fmt.Errorf("queue capacities must be positive")
	}
	return Address{Name: name, Options: opts}, nil
}

// String formats a back into shm:// form.
func (a Address) String() string {
	return fmt.Sprintf("shm://%s?cap=%d&reply=%d&user=%d",
		a.Name, a.Options.CommandCapacity, a.Options.ReplyCapacity, a.Options.UserBytes)
}

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

// Package dispatch runs typed method calls over a pair of shm queues.
//
// A client writes commands to the command queue: a method id, a sequence
// number for synchronous methods, then the request. The server removes each
// command whole, runs the registered handler and, for synchronous methods,
// writes the sequence number and response to the reply queue. Waiting for
// space or for a reply spins with a yield callback until a timeout measured
// on an injected clock.
//
// Any failure that leaves the two sides out of step marks the channel lost;
// every later operation then fails with codes.Unavailable.
package dispatch

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
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jdashg/gecko-cinn-sub000/internal/transport/shm"
)

// IsChannelLost reports whether err means the channel can no longer be used.
func IsChannelLost(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func lostError(format string, args ...any) error {
	return status.Errorf(codes.Unavailable, "shm channel lost: "+format, args...)
}

// statusError converts a queue status other than success or not-ready.
func statusError(op string, st shm.Status) error {
	if st == shm.StatusTooSmall {
		return status.Errorf(codes.ResourceExhausted, "%s: %v", op, st.Err())
	}
	return lostError("%s: %v", op, st.Err())
}

// waitError converts a Poll failure.
func waitError(op string, err error) error {
	if errors.Is(err, ErrTimeout) {
		return status.Errorf(codes.DeadlineExceeded, "%s: %v", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Unknown, fmt.Sprintf("%s: %v", op, err))
}

// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sigmatcp

import (
	"fmt"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
)

// Encode serializes resp as a response frame.
func Encode(resp Response) []byte {
	return AppendResponse(nil, resp)
}

// AppendResponse appends the response frame for resp to dst. The total
// length field always covers the header and the data actually appended.
//
// A ReadResult reports len(Data) as its data length, so a failed read
// carries a header only. An Ack reports the number of bytes the write
// command carried.
func AppendResponse(dst []byte, resp Response) []byte {
	switch r := resp.(type) {
	case ReadResult:
		return frame.AppendResponse(dst, r.Chip, r.Register, byte(r.Status), uint32(len(r.Data)), r.Data) //nolint:gosec // bounded by max payload
	case Ack:
		return frame.AppendResponse(dst, r.Chip, r.Register, byte(r.Status), uint32(r.Length), nil) //nolint:gosec // bounded by max payload
	default:
		panic(fmt.Sprintf("sigmatcp: unhandled response type %T", resp))
	}
}

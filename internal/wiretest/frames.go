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

package wiretest

import "github.com/ZaparooProject/go-sigmatcp/internal/frame"

// ReadRequest builds a read request the way SigmaStudio sends it,
// including the two trailing pad bytes.
func ReadRequest(chip uint8, register uint16, length uint32) []byte {
	return frame.AppendReadRequest(nil, chip, register, length)
}

// WriteRequest builds a non-safeload write request on channel 0.
func WriteRequest(chip uint8, register uint16, data []byte) []byte {
	return frame.AppendWriteRequest(nil, 0, 0, chip, register, data)
}

// Concat joins frames into one stream.
func Concat(frames ...[]byte) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

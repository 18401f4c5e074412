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

// Status is the result byte carried in every response frame.
type Status uint8

const (
	// StatusSuccess reports that every bus transaction completed.
	StatusSuccess Status = frame.StatusSuccess
	// StatusFailure reports a rejected command or a failed transaction.
	StatusFailure Status = frame.StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Response is the outcome of dispatching one Command. The set of
// implementations is closed: ReadResult and Ack.
type Response interface {
	// Succeeded reports whether the status is StatusSuccess.
	Succeeded() bool
	// Cause returns the error behind a failure, or nil. It is never
	// encoded on the wire.
	Cause() error
	response()
}

// ReadResult answers a ReadCommand. Data is empty on failure.
type ReadResult struct {
	Err      error
	Data     []byte
	Register uint16
	Chip     uint8
	Status   Status
}

// Succeeded implements Response
func (r ReadResult) Succeeded() bool { return r.Status == StatusSuccess }

// Cause implements Response
func (r ReadResult) Cause() error { return r.Err }

func (ReadResult) response() {}

// Ack answers a WriteCommand. Length is the number of bytes the command
// asked to write.
type Ack struct {
	Err      error
	Length   int
	Register uint16
	Chip     uint8
	Status   Status
}

// Succeeded implements Response
func (a Ack) Succeeded() bool { return a.Status == StatusSuccess }

// Cause implements Response
func (a Ack) Cause() error { return a.Err }

func (Ack) response() {}

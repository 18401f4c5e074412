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

// CommandKind identifies a request frame type by its control byte.
type CommandKind uint8

const (
	// KindWrite is a register write request.
	KindWrite CommandKind = frame.KindWrite
	// KindRead is a register read request.
	KindRead CommandKind = frame.KindRead
)

func (k CommandKind) String() string {
	switch k {
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Command is a decoded, validated request. The set of implementations is
// closed: WriteCommand and ReadCommand.
type Command interface {
	fmt.Stringer
	Kind() CommandKind
	Target() (chip uint8, register uint16)
	command()
}

// WriteCommand writes Data to consecutive registers starting at Register.
type WriteCommand struct {
	Data     []byte
	Register uint16
	Chip     uint8
	Channel  uint8
	Safeload bool
}

// Kind implements Command
func (WriteCommand) Kind() CommandKind { return KindWrite }

// Target implements Command
func (c WriteCommand) Target() (chip uint8, register uint16) { return c.Chip, c.Register }

func (WriteCommand) command() {}

func (c WriteCommand) String() string {
	return fmt.Sprintf("write chip=0x%02x reg=0x%04x len=%d safeload=%t channel=%d",
		c.Chip, c.Register, len(c.Data), c.Safeload, c.Channel)
}

// ReadCommand reads Length bytes from consecutive registers starting at Register.
type ReadCommand struct {
	Length   int
	Register uint16
	Chip     uint8
}

// Kind implements Command
func (ReadCommand) Kind() CommandKind { return KindRead }

// Target implements Command
func (c ReadCommand) Target() (chip uint8, register uint16) { return c.Chip, c.Register }

func (ReadCommand) command() {}

func (c ReadCommand) String() string {
	return fmt.Sprintf("read chip=0x%02x reg=0x%04x len=%d", c.Chip, c.Register, c.Length)
}

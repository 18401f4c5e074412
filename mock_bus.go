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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
)

// MockBus provides a register-file Bus for testing. It records every
// transaction and can fail a chosen transaction.
type MockBus struct {
	regs         map[uint8][]byte
	failErr      error
	transactions []Transaction
	maxTransfer  int
	failAt       int
	delay        time.Duration
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
	mu           sync.RWMutex
	closed       bool
}

// ErrMockFailure is returned by MockBus when no other error was injected.
var ErrMockFailure = errors.New("mock bus failure")

// NewMockBus creates a mock bus with the given transfer limit.
func NewMockBus(maxTransfer int) *MockBus {
	if maxTransfer <= 0 {
		maxTransfer = 4096
	}
	return &MockBus{
		regs:        make(map[uint8][]byte),
		maxTransfer: maxTransfer,
	}
}

// registers returns the chip's register file, creating it on first use.
// Callers hold m.mu.
func (m *MockBus) registers(chip uint8) []byte {
	regs, ok := m.regs[chip]
	if !ok {
		regs = make([]byte, frame.AddressSpace)
		m.regs[chip] = regs
	}
	return regs
}

// begin records a transaction and reports the injected error, if any.
func (m *MockBus) begin(tx Transaction) error {
	cur := m.inFlight.Add(1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	m.mu.Lock()
	m.transactions = append(m.transactions, tx)
	n := len(m.transactions)
	closed := m.closed
	failAt, failErr := m.failAt, m.failErr
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	switch {
	case closed:
		return ErrBusClosed
	case failAt > 0 && n >= failAt:
		if failErr == nil {
			return ErrMockFailure
		}
		return failErr
	case tx.Length > m.maxTransfer:
		return ErrTransferTooLarge
	case int(tx.Register)+tx.Length > frame.AddressSpace:
		return ErrAddressOverflow
	default:
		return nil
	}
}

func (m *MockBus) end() {
	m.inFlight.Add(-1)
}

// Write implements Bus
func (m *MockBus) Write(chip uint8, register uint16, data []byte) error {
	defer m.end()
	if err := m.begin(Transaction{Chip: chip, Register: register, Length: len(data), Dir: DirWrite}); err != nil {
		return err
	}

	m.mu.Lock()
	copy(m.registers(chip)[register:], data)
	m.mu.Unlock()
	return nil
}

// Read implements Bus
func (m *MockBus) Read(chip uint8, register uint16, n int) ([]byte, error) {
	defer m.end()
	if err := m.begin(Transaction{Chip: chip, Register: register, Length: n, Dir: DirRead}); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	m.mu.Lock()
	copy(out, m.registers(chip)[register:])
	m.mu.Unlock()
	return out, nil
}

// MaxTransferSize implements Bus
func (m *MockBus) MaxTransferSize() int {
	return m.maxTransfer
}

// Type implements Bus
func (*MockBus) Type() BusType {
	return BusMock
}

// Close implements Bus
func (m *MockBus) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Test helper methods

// FailAt makes transaction n (1-based, counted from the last Reset) and
// every later one fail with err. n <= 0 disables injection.
func (m *MockBus) FailAt(n int, err error) {
	m.mu.Lock()
	m.failAt = n
	m.failErr = err
	m.mu.Unlock()
}

// SetDelay makes every transaction take at least d.
func (m *MockBus) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// Poke sets registers directly without recording a transaction.
func (m *MockBus) Poke(chip uint8, register uint16, data []byte) {
	m.mu.Lock()
	copy(m.registers(chip)[register:], data)
	m.mu.Unlock()
}

// Peek returns register contents without recording a transaction.
func (m *MockBus) Peek(chip uint8, register uint16, n int) []byte {
	out := make([]byte, n)
	m.mu.Lock()
	copy(out, m.registers(chip)[register:])
	m.mu.Unlock()
	return out
}

// Transactions returns a copy of the transaction log.
func (m *MockBus) Transactions() []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

// MaxInFlight reports the highest number of transactions ever observed
// running at the same time.
func (m *MockBus) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}

// Reset clears the transaction log and fault injection.
func (m *MockBus) Reset() {
	m.mu.Lock()
	m.transactions = nil
	m.failAt = 0
	m.failErr = nil
	m.mu.Unlock()
}

var _ Bus = (*MockBus)(nil)

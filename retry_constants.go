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

import "time"

// Accept backoff constants control the listener after a failed Accept,
// typically file descriptor exhaustion.
const (
	// AcceptInitialBackoff is the first delay after a failed Accept.
	AcceptInitialBackoff = 5 * time.Millisecond
	// AcceptMaxBackoff caps the delay between failed Accepts.
	AcceptMaxBackoff = 1 * time.Second
)

// Dial retry constants control client connections to a server.
const (
	// DialRetries is the number of attempts to connect.
	DialRetries = 3
	// DialInitialBackoff is the initial delay between connection attempts.
	DialInitialBackoff = 100 * time.Millisecond
	// DialMaxBackoff is the maximum delay between connection attempts.
	DialMaxBackoff = 1 * time.Second
	// DialRetryTimeout is the overall timeout for all connection attempts.
	DialRetryTimeout = 10 * time.Second
)

// Device wait constants control the startup wait for a chip on the bus.
const (
	// DeviceWaitInterval is the delay between bus scans while no chip answers.
	DeviceWaitInterval = 1 * time.Second
	// DefaultDeviceWaitTimeout bounds the startup wait.
	DefaultDeviceWaitTimeout = 60 * time.Second
)

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

//go:build !linux

package sigmatcp

import (
	"fmt"
	"net"
	"time"
)

// tuneConn enables keepalive. TCP_USER_TIMEOUT is Linux-only.
func tuneConn(conn net.Conn, userTimeout time.Duration) error {
	tcp, ok := conn.(*net.TCPConn)
	if !ok || userTimeout <= 0 {
		return nil
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return fmt.Errorf("set keepalive: %w", err)
	}
	return nil
}

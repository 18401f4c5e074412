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

// Package detection finds buses a SigmaDSP can sit on (i2c-dev adapters,
// spidev ports) and serial ports the protocol can be served over. Bus
// specific detectors live in subpackages and register themselves on
// import.
package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
)

// Mode is how far detection goes beyond listing device nodes
type Mode int

const (
	// Passive only lists bus and port device nodes
	Passive Mode = iota
	// Probe also addresses every chip slot on I2C buses
	Probe
)

func (m Mode) String() string {
	if m == Probe {
		return "probe"
	}
	return "passive"
}

// DeviceInfo describes one detected bus or port
type DeviceInfo struct {
	// Additional metadata (e.g., VID:PID for USB serial adapters)
	Metadata map[string]string
	// Bus type: "i2c", "spi", "uart"
	Bus string
	// Connection path (e.g., "/dev/i2c-1", "SPI0.0", "/dev/ttyUSB0")
	Path string
	// Human-readable name
	Name string
	// Chip addresses that answered a probe, I2C only
	Addresses []uint8
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	if len(d.Addresses) == 0 {
		return fmt.Sprintf("%s bus at %s", d.Bus, d.Path)
	}
	addrs := make([]string, len(d.Addresses))
	for i, a := range d.Addresses {
		addrs[i] = fmt.Sprintf("0x%02x", a)
	}
	return fmt.Sprintf("%s bus at %s (chips: %s)", d.Bus, d.Path, strings.Join(addrs, ", "))
}

// Options configures the detection behavior
type Options struct {
	// Device paths to explicitly ignore (e.g., ["/dev/ttyS0", "COM2"])
	IgnorePaths []string
	// Which buses to check (empty = all)
	Buses []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions lists device nodes without probing, cached briefly.
func DefaultOptions() Options {
	return Options{
		Mode:        Passive,
		Timeout:     5 * time.Second,
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector finds devices of one bus type
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Bus returns the bus type this detector handles
	Bus() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no devices were detected
	ErrNoDevicesFound = errors.New("no devices found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

var (
	registryMu syncutil.Mutex
	registry   []Detector
)

// RegisterDetector adds a detector to the registry
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by bus type
func getDetectors(buses []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(buses) == 0 {
		return append([]Detector(nil), registry...)
	}

	var filtered []Detector
	for _, d := range registry {
		for _, b := range buses {
			if d.Bus() == b {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every selected detector in parallel and merges the
// results. Devices are returned even when some detectors fail.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := getDetectors(opts.Buses)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified buses")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func() {
			results <- runSingleDetector(ctx, d, opts)
		}()
	}
	return collectDetectionResults(ctx, results, len(detectors))
}

// runSingleDetector performs detection for a single detector
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, found := getCached(detector.Bus(), opts.Mode, opts.CacheTTL); found {
			// Cached results bypass Detect, so filter again
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", detector.Bus(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(detector.Bus(), opts.Mode, devices)
		} else {
			clearCacheForBus(detector.Bus())
		}
	}

	return detectionResult{devices: filterDevices(devices, opts)}
}

// collectDetectionResults gathers results from all detector goroutines
func collectDetectionResults(
	ctx context.Context,
	results chan detectionResult,
	numDetectors int,
) ([]DeviceInfo, error) {
	var allDevices []DeviceInfo
	var errs []error

	for range numDetectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				allDevices = append(allDevices, res.devices...)
			}
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(allDevices) > 0 {
		return allDevices, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

// filterDevices drops devices whose path is ignored.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// IsPathIgnored reports whether devicePath matches an entry in
// ignorePaths, ignoring case and redundant path elements.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

// normalizedPath normalizes a device path for comparison
func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForBus removes cached results for one bus type
func ClearDetectionCacheForBus(bus string) {
	clearCacheForBus(bus)
}

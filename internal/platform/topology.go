// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package platform reports the CPU topology a benchmark ran on.
//
// Pool sizes default to the number of CPUs the process may actually use,
// which under a cgroup cpuset or taskset can be smaller than the number
// of CPUs in the machine.
package platform

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Topology describes the CPUs visible to the process.
type Topology struct {
	// LogicalCPUs is runtime.NumCPU().
	LogicalCPUs int `json:"logical_cpus" yaml:"logical_cpus"`

	// AllowedCPUs is the size of the scheduler affinity mask. Falls back
	// to LogicalCPUs where affinity cannot be read.
	AllowedCPUs int `json:"allowed_cpus" yaml:"allowed_cpus"`

	// PhysicalCores is 0 when undetectable.
	PhysicalCores int `json:"physical_cores" yaml:"physical_cores"`

	// ThreadsPerCore is 1 when undetectable.
	ThreadsPerCore int `json:"threads_per_core" yaml:"threads_per_core"`

	// Brand is the CPU brand string, empty when undetectable.
	Brand string `json:"brand,omitempty" yaml:"brand,omitempty"`

	// GOMAXPROCS is the Go scheduler's parallelism at detection time.
	GOMAXPROCS int `json:"gomaxprocs" yaml:"gomaxprocs"`
}

// Detect reads the current topology. It never fails.
func Detect() Topology {
	t := Topology{
		LogicalCPUs:    runtime.NumCPU(),
		PhysicalCores:  cpuid.CPU.PhysicalCores,
		ThreadsPerCore: cpuid.CPU.ThreadsPerCore,
		Brand:          cpuid.CPU.BrandName,
		GOMAXPROCS:     runtime.GOMAXPROCS(0),
	}
	if t.ThreadsPerCore < 1 {
		t.ThreadsPerCore = 1
	}
	t.AllowedCPUs = allowedCPUs()
	if t.AllowedCPUs < 1 {
		t.AllowedCPUs = t.LogicalCPUs
	}
	return t
}

// DefaultWorkers is the pool size used when none is configured: the CPUs
// the process is allowed to run on, at least 1.
func (t Topology) DefaultWorkers() uint32 {
	n := t.AllowedCPUs
	if n < 1 {
		n = t.LogicalCPUs
	}
	if n < 1 {
		n = 1
	}
	return uint32(n)
}

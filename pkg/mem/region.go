/*
 * Copyright 2022-2023 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mem

import (
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/sys"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
	"golang.org/x/time/rate"
)

const (
	// MemImage indicates that the memory pages within the region are mapped
	// into the view of an image section.
	MemImage uint32 = 0x1000000
	// MemMapped indicates that the memory pages within the region are mapped
	// into the view of a section.
	MemMapped uint32 = 0x40000
	// MemPrivate indicates that the memory pages within the region are private,
	// that is, not shared by other processes.
	MemPrivate uint32 = 0x20000
)

// RegionInfo describes the properties of a range of pages inside
// the probed address space.
type RegionInfo struct {
	BaseAddress va.Address
	RegionSize  uint64
	Type        uint32
	Protect     uint32
	State       uint32
	space       AddressSpace
}

// IsMapped determines if the region is backed by a section object.
func (r RegionInfo) IsMapped() bool { return r.Type == MemImage || r.Type == MemMapped }

// GetMappedFile returns the name of the memory-mapped file backing
// this region, if any.
func (r RegionInfo) GetMappedFile() string {
	var size uint32 = windows.MAX_PATH
	n := make([]uint16, size)
	if sys.GetMappedFileName(r.space.Handle(), r.BaseAddress.Uintptr(), &n[0], size) > 0 {
		return windows.UTF16ToString(n)
	}
	return ""
}

// ProtectMask returns protection in mask notation.
func (r RegionInfo) ProtectMask() string {
	switch r.Protect {
	case windows.PAGE_READONLY:
		return "R"
	case windows.PAGE_READWRITE:
		return "RW"
	case windows.PAGE_EXECUTE_READ:
		return "RX"
	case windows.PAGE_EXECUTE_READWRITE:
		return "RWX"
	case windows.PAGE_EXECUTE_WRITECOPY:
		return "RWXC"
	case windows.PAGE_EXECUTE:
		return "X"
	case windows.PAGE_WRITECOPY:
		return "WC"
	case windows.PAGE_NOACCESS:
		return "NA"
	case windows.PAGE_WRITECOMBINE:
		return "WCB"
	case windows.PAGE_GUARD, windows.PAGE_GUARD | windows.PAGE_READWRITE:
		return "PG"
	case windows.PAGE_NOCACHE:
		return "NC"
	case 0:
		return "-"
	default:
		return "?"
	}
}

const (
	burst = 500 // limiter initial bucket size
	limit = 300 // rate of 300 region queries per second
)

// RegionProber examines metadata about the ranges of pages within a process
// virtual address space. To avoid putting too much pressure on VirtualQueryEx
// calls against noisy processes, the prober employs a token bucket limiter.
type RegionProber struct {
	space AddressSpace
	lim   *rate.Limiter
}

// NewRegionProber creates a fresh prober for the given address space.
func NewRegionProber(space AddressSpace) *RegionProber {
	return &RegionProber{space: space, lim: rate.NewLimiter(limit, burst)}
}

// Query fetches region information for the base address. It returns nil
// when the region can't be consulted or the probe rate is exceeded.
func (p *RegionProber) Query(addr va.Address) *RegionInfo {
	if !p.lim.Allow() {
		return nil
	}
	var mbi windows.MemoryBasicInformation
	err := windows.VirtualQueryEx(
		p.space.Handle(),
		addr.Uintptr(),
		&mbi,
		unsafe.Sizeof(mbi),
	)
	if err != nil {
		return nil
	}
	return &RegionInfo{
		BaseAddress: va.Address(mbi.BaseAddress),
		RegionSize:  uint64(mbi.RegionSize),
		Type:        mbi.Type,
		Protect:     mbi.Protect,
		State:       mbi.State,
		space:       p.space,
	}
}

// Walk traverses all consecutive regions of the address space starting at the
// given base address and invokes the callback for each resolved region. The
// traversal stops when the callback returns false or the region query fails.
func (p *RegionProber) Walk(addr va.Address, cb func(RegionInfo) bool) {
	for {
		r := p.Query(addr)
		if r == nil {
			return
		}
		if !cb(*r) {
			return
		}
		addr = r.BaseAddress.Inc(r.RegionSize)
	}
}
